package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Server       ServerConfig                                 `yaml:"server"`
	Database     DatabaseConfig                               `yaml:"database"`
	Redis        RedisConfig                                  `yaml:"redis"`
	Snapshot     SnapshotConfig                               `yaml:"snapshot"`
	Snowflake    SnowflakeConfig                              `yaml:"snowflake"`
	Send         SendConfig                                   `yaml:"send"`
	GHL          GHLConfig                                    `yaml:"ghl"`
	Instantly    InstantlyConfig                              `yaml:"instantly"`
	Lob          LobConfig                                    `yaml:"lob"`
	Webhook      WebhookConfig                                `yaml:"webhook"`
	Sources      map[string]SourceConfig                      `yaml:"sources"`
	Destinations map[domain.Destination]domain.DestinationConfig `yaml:"destinations"`
}

// ServerConfig holds the status API server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection for the load registry,
// export queue, history ledger and suppression list.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the rate-limiter backend. When disabled, sends are
// not rate limited.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// SnapshotConfig selects and parameterizes the snapshot store backend.
type SnapshotConfig struct {
	// Backend is "filesystem", "s3" or "snowflake".
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	S3Region   string `yaml:"s3_region"`
	AWSProfile string `yaml:"aws_profile"`
}

// GetAWSProfile returns the AWS profile, empty on ECS/Lambda so the IAM
// role credential chain is used.
func (c SnapshotConfig) GetAWSProfile() string {
	if p := os.Getenv("AWS_PROFILE_OVERRIDE"); p != "" {
		if p == "none" || p == "iam" {
			return ""
		}
		return p
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// SnowflakeConfig holds the production registry mirror connection.
type SnowflakeConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Table     string `yaml:"table"`
	Enabled   bool   `yaml:"enabled"`
}

// SendConfig bounds the send worker pool.
type SendConfig struct {
	Concurrency    int `yaml:"concurrency"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-call send timeout.
func (c SendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GHLConfig holds GoHighLevel CRM credentials.
type GHLConfig struct {
	APIKey     string `yaml:"api_key"`
	LocationID string `yaml:"location_id"`
	BaseURL    string `yaml:"base_url"`
}

// InstantlyConfig holds Instantly cold-email credentials.
type InstantlyConfig struct {
	APIKey     string `yaml:"api_key"`
	CampaignID string `yaml:"campaign_id"`
	BaseURL    string `yaml:"base_url"`
}

// LobConfig holds Lob print-mail credentials and message templates.
// Templates are Liquid; they render against the export payload.
type LobConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	FromAddressID    string `yaml:"from_address_id"`
	PostcardTemplate string `yaml:"postcard_template"`
	LetterTemplate   string `yaml:"letter_template"`
}

// WebhookConfig holds the generic trigger webhook endpoint.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// RuleSpec is one configured validation rule: a name plus free-form
// parameters. Specs are compiled into concrete rule types by the
// validation engine; an unknown name surfaces as a warning result.
type RuleSpec struct {
	Rule   string         `yaml:"rule"`
	Params map[string]any `yaml:"params"`
}

// SourceConfig describes one registry schema: the key and column
// layout, the status-code semantics, accepted column aliases, and the
// validation rule list.
//
// Status-code sets are configuration, not validated against the live
// registry's code list. If a registry renumbers statuses, detection
// silently stops firing for the affected transitions; the detector
// logs the sets in use at startup so drift is at least visible.
type SourceConfig struct {
	StateCode         string              `yaml:"state_code"`
	KeyFields         []string            `yaml:"key_fields"`
	IDField           string              `yaml:"id_field"`
	NumberField       string              `yaml:"number_field"`
	StatusField       string              `yaml:"status_field"`
	StatusDescField   string              `yaml:"status_desc_field"`
	FirstNameField    string              `yaml:"first_name_field"`
	LastNameField     string              `yaml:"last_name_field"`
	CityField         string              `yaml:"city_field"`
	CountyField       string              `yaml:"county_field"`
	ZipField          string              `yaml:"zip_field"`
	ActiveStatuses    []int               `yaml:"active_statuses"`
	LapsedStatuses    []int               `yaml:"lapsed_statuses"`
	ProfessionalTypes []string            `yaml:"professional_types"`
	Aliases           map[string][]string `yaml:"aliases"`
	Rules             []RuleSpec          `yaml:"rules"`
}

// Load reads and parses the configuration file. A missing file is not
// an error: compiled-in defaults cover every source and destination, so
// the CLIs work against a bare environment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SNAPSHOT_DATA_DIR"); v != "" {
		cfg.Snapshot.DataDir = v
	}
	if v := os.Getenv("SNAPSHOT_S3_BUCKET"); v != "" {
		cfg.Snapshot.S3Bucket = v
	}
	if v := os.Getenv("GHL_API_KEY"); v != "" {
		cfg.GHL.APIKey = v
	}
	if v := os.Getenv("GHL_LOCATION_ID"); v != "" {
		cfg.GHL.LocationID = v
	}
	if v := os.Getenv("INSTANTLY_API_KEY"); v != "" {
		cfg.Instantly.APIKey = v
	}
	if v := os.Getenv("LOB_API_KEY"); v != "" {
		cfg.Lob.APIKey = v
	}
	if v := os.Getenv("TRIGGER_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Snowflake.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}
	if v := os.Getenv("SEND_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Send.Concurrency = n
		}
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = "filesystem"
	}
	if cfg.Snapshot.DataDir == "" {
		cfg.Snapshot.DataDir = "data/licenses"
	}
	if cfg.Snapshot.S3Region == "" {
		cfg.Snapshot.S3Region = "us-east-1"
	}
	if cfg.Send.Concurrency == 0 {
		cfg.Send.Concurrency = 4
	}
	if cfg.Send.TimeoutSeconds == 0 {
		cfg.Send.TimeoutSeconds = 30
	}
	if cfg.GHL.BaseURL == "" {
		cfg.GHL.BaseURL = "https://rest.gohighlevel.com/v1"
	}
	if cfg.Instantly.BaseURL == "" {
		cfg.Instantly.BaseURL = "https://api.instantly.ai/api/v1"
	}
	if cfg.Lob.BaseURL == "" {
		cfg.Lob.BaseURL = "https://api.lob.com/v1"
	}
	if cfg.Snowflake.Database == "" {
		cfg.Snowflake.Database = "DENTAL_DATA_LAKE"
	}
	if cfg.Snowflake.Schema == "" {
		cfg.Snowflake.Schema = "LICENSES"
	}
	if cfg.Snowflake.Table == "" {
		cfg.Snowflake.Table = "LICENSE_SNAPSHOTS"
	}

	// Sources and destinations in the file override the defaults
	// entry-by-entry; unnamed entries keep their compiled-in config.
	defSources := DefaultSources()
	if cfg.Sources == nil {
		cfg.Sources = defSources
	} else {
		for name, sc := range defSources {
			if _, ok := cfg.Sources[name]; !ok {
				cfg.Sources[name] = sc
			}
		}
	}

	defDests := DefaultDestinations()
	if cfg.Destinations == nil {
		cfg.Destinations = defDests
	} else {
		for name, dc := range defDests {
			if _, ok := cfg.Destinations[name]; !ok {
				cfg.Destinations[name] = dc
			}
		}
	}
	for name, dc := range cfg.Destinations {
		if dc.Name == "" {
			dc.Name = name
		}
		if dc.RetryPolicy == "" {
			dc.RetryPolicy = domain.RetryNever
		}
		cfg.Destinations[name] = dc
	}
}

// Source returns the configuration for a source type. Unknown source
// types are a configuration error, never silently defaulted.
func (c *Config) Source(sourceType string) (SourceConfig, error) {
	sc, ok := c.Sources[sourceType]
	if !ok {
		return SourceConfig{}, fmt.Errorf("unknown source type: %q", sourceType)
	}
	return sc, nil
}

// Destination returns the policy for a destination. Unknown destinations
// are a configuration error.
func (c *Config) Destination(dest domain.Destination) (domain.DestinationConfig, error) {
	dc, ok := c.Destinations[dest]
	if !ok {
		return domain.DestinationConfig{}, fmt.Errorf("unknown destination: %q", dest)
	}
	return dc, nil
}
