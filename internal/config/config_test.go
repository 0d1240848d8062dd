package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Snapshot.Backend != "filesystem" {
		t.Errorf("backend = %s", cfg.Snapshot.Backend)
	}
	if _, err := cfg.Source("tx_license"); err != nil {
		t.Errorf("tx_license default missing: %v", err)
	}
	dc, err := cfg.Destination(domain.DestGHL)
	if err != nil {
		t.Fatalf("ghl default missing: %v", err)
	}
	if !dc.AutoApprove || dc.MinConfidenceForAuto != 70 {
		t.Errorf("ghl policy = %+v", dc)
	}
	if dc.RetryPolicy != domain.RetryNever {
		t.Errorf("retry policy = %s", dc.RetryPolicy)
	}
}

func TestLoadMergesOverridesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
destinations:
  ghl:
    display_name: GHL Override
    auto_approve: true
    min_confidence_for_auto: 90
sources:
  nv_license:
    state_code: NV
    key_fields: [license_number]
    id_field: license_number
    number_field: license_number
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ghl, _ := cfg.Destination(domain.DestGHL)
	if ghl.MinConfidenceForAuto != 90 {
		t.Errorf("override not applied: %+v", ghl)
	}
	if ghl.Name != domain.DestGHL {
		t.Errorf("name not backfilled from map key: %q", ghl.Name)
	}
	if ghl.RetryPolicy != domain.RetryNever {
		t.Errorf("retry policy not defaulted: %q", ghl.RetryPolicy)
	}

	// Destinations absent from the file keep their compiled-in policy.
	lob, err := cfg.Destination(domain.DestLobLetter)
	if err != nil {
		t.Fatalf("lob_letter lost: %v", err)
	}
	if lob.AutoApprove || lob.DelayHours != 48 {
		t.Errorf("lob_letter policy = %+v", lob)
	}

	if _, err := cfg.Source("nv_license"); err != nil {
		t.Errorf("file-defined source missing: %v", err)
	}
	if _, err := cfg.Source("tx_license"); err != nil {
		t.Errorf("default source lost after merge: %v", err)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://etl@localhost/etl_test")
	t.Setenv("REDIS_ADDR", "localhost:6390")
	t.Setenv("SEND_CONCURRENCY", "8")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Database.URL != "postgres://etl@localhost/etl_test" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6390" {
		t.Errorf("redis = %+v, want enabled via REDIS_ADDR", cfg.Redis)
	}
	if cfg.Send.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Send.Concurrency)
	}
}

func TestUnknownSourceAndDestination(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.Source("mars_license"); err == nil {
		t.Error("unknown source must error")
	}
	if _, err := cfg.Destination("fax"); err == nil {
		t.Error("unknown destination must error")
	}
}

func TestValidationRuleSpecsParseFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
sources:
  tx_license:
    state_code: TX
    key_fields: [LIC_ID]
    id_field: LIC_ID
    number_field: LIC_NBR
    rules:
      - rule: row_count_min
        params: { min_rows: 1000 }
      - rule: field_populated
        params: { field: LIC_NBR, min_pct: 0.99 }
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sc, _ := cfg.Source("tx_license")
	if len(sc.Rules) != 2 {
		t.Fatalf("rules = %d", len(sc.Rules))
	}
	if sc.Rules[0].Rule != "row_count_min" || sc.Rules[0].Params["min_rows"] != 1000 {
		t.Errorf("rule 0 = %+v", sc.Rules[0])
	}
}
