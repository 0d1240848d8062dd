package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
)

func TestParseCSVRepairsRaggedRows(t *testing.T) {
	data := []byte("LIC_ID,LAST_NME,CITY\n" +
		"1,Smith,Austin\n" +
		"2,Patel\n" + // short row: padded
		"3,Wong,Houston,EXTRA\n") // long row: truncated
	ds, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if ds.RowCount() != 3 {
		t.Fatalf("rows = %d, want 3", ds.RowCount())
	}
	if got := ds.Value(1, "CITY"); got != "" {
		t.Errorf("padded cell = %q, want empty", got)
	}
	if got := ds.Value(2, "CITY"); got != "Houston" {
		t.Errorf("truncated row city = %q", got)
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	ds, err := ParseCSV([]byte("\xef\xbb\xbfLIC_ID,CITY\n1,Austin\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if !ds.HasColumn("LIC_ID") {
		t.Errorf("BOM not stripped, headers = %v", ds.Headers())
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	ds, err := ParseCSV([]byte("LIC_ID,CITY\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if ds.RowCount() != 0 {
		t.Errorf("rows = %d, want 0", ds.RowCount())
	}
}

func TestParseCSVEmptyFile(t *testing.T) {
	if _, err := ParseCSV(nil); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestResolveColumnAlias(t *testing.T) {
	ds := NewDataset([]string{"LIC_ID", "LAST_MNE"}, nil)
	aliases := map[string][]string{"LAST_NME": {"LAST_MNE"}}

	name, ok := ds.ResolveColumn("LAST_NME", aliases)
	if !ok || name != "LAST_MNE" {
		t.Errorf("ResolveColumn = %q,%v, want alias LAST_MNE", name, ok)
	}
	if name, ok = ds.ResolveColumn("LIC_ID", aliases); !ok || name != "LIC_ID" {
		t.Errorf("exact match = %q,%v", name, ok)
	}
	if _, ok = ds.ResolveColumn("NPI", aliases); ok {
		t.Error("unknown column resolved")
	}
}

func TestMapRecords(t *testing.T) {
	sc := config.SourceConfig{
		IDField:     "LIC_ID",
		NumberField: "LIC_NBR",
		StatusField: "LIC_STA_CDE",
		ZipField:    "ZIP",
	}
	ds := NewDataset([]string{"LIC_ID", "LIC_NBR", "LIC_STA_CDE", "ZIP"}, [][]string{
		{" 1 ", "100", " 20 ", "78701-1234"},
		{"2", "200", "n/a", "78702"},
	})
	recs, err := MapRecords(ds, sc)
	if err != nil {
		t.Fatalf("MapRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].LicenseID != "1" || recs[0].StatusCode != 20 {
		t.Errorf("record 0 = %+v, want trimmed id and parsed status", recs[0])
	}
	if recs[0].ZipCode != "78701" {
		t.Errorf("zip = %q, want truncated to 5", recs[0].ZipCode)
	}
	// Unparseable status maps to 0, outside both status sets.
	if recs[1].StatusCode != 0 {
		t.Errorf("status = %d, want 0", recs[1].StatusCode)
	}
}

func TestMapRecordsMissingRequiredColumn(t *testing.T) {
	sc := config.SourceConfig{IDField: "LIC_ID", NumberField: "LIC_NBR"}
	ds := NewDataset([]string{"LIC_ID"}, nil)
	if _, err := MapRecords(ds, sc); err == nil {
		t.Fatal("expected error for missing required column")
	}
}

func TestFilesystemStore(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tx", "2026-08-24")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	csv := "LIC_ID,CITY\n1,Austin\n2,Dallas\n"
	if err := os.WriteFile(filepath.Join(dir, "dentist.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, extra := range []string{"current", "raw", "notes"} {
		if err := os.MkdirAll(filepath.Join(root, "tx", extra), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	store := NewFilesystemStore(root)
	ctx := context.Background()

	ds, err := store.Read(ctx, "TX", "dentist", "2026-08-24")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ds.RowCount() != 2 {
		t.Errorf("rows = %d", ds.RowCount())
	}

	if _, err = store.Read(ctx, "TX", "hygienist", "2026-08-24"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing snapshot err = %v, want ErrNotFound", err)
	}
	if _, err = store.Read(ctx, "TX", "dentist", "24/08/2026"); err == nil {
		t.Error("expected error for malformed date")
	}

	dates, err := store.ListDates(ctx, "tx")
	if err != nil {
		t.Fatalf("ListDates: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2026-08-24" {
		t.Errorf("dates = %v, want only the dated directory", dates)
	}
	if dates, _ = store.ListDates(ctx, "wa"); dates != nil {
		t.Errorf("unknown state dates = %v, want nil", dates)
	}
}
