package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const envPrefix = "KITCHECK"

type StorageConfig struct {
	Backend     string // memory, sqlite, postgres, badger or firestore
	SQLitePath  string
	PostgresDSN string
	BadgerPath  string
}

type DetectorConfig struct {
	Backend       string // mock, http or gemini
	URL           string
	Timeout       time.Duration
	MinConfidence float64
	Model         string
}

type CatalogConfig struct {
	// File is a YAML catalog; it wins over Classes.
	File    string
	Classes []string
}

type Config struct {
	Mode Mode

	Port     string
	LogLevel string
	APIKey   string

	GCPProjectID string
	GCPLocation  string

	Storage  StorageConfig
	Detector DetectorConfig
	Catalog  CatalogConfig

	DefaultThreshold  float64
	AllowPartialIssue bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeLocal))
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_key", "")

	v.SetDefault("gcp.project", "")
	v.SetDefault("gcp.location", "us-central1")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.sqlite_path", "kitcheck.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.badger_path", "data/badger")

	v.SetDefault("detector.backend", "mock")
	v.SetDefault("detector.url", "")
	v.SetDefault("detector.timeout", "30s")
	v.SetDefault("detector.min_confidence", 0.25)
	v.SetDefault("detector.model", "gemini-2.5-flash")

	v.SetDefault("catalog.file", "")
	v.SetDefault("catalog.classes", "")

	v.SetDefault("session.default_threshold", 0.98)
	v.SetDefault("policy.allow_partial_issue", false)
}

// Load reads KITCHECK_* environment variables on top of the defaults and,
// when KITCHECK_CONFIG names one, a config file (yaml, toml or json).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	timeout, err := time.ParseDuration(v.GetString("detector.timeout"))
	if err != nil {
		return nil, fmt.Errorf("detector.timeout: %w", err)
	}

	cfg := &Config{
		Mode:     Mode(strings.ToLower(v.GetString("mode"))),
		Port:     v.GetString("port"),
		LogLevel: v.GetString("log_level"),
		APIKey:   v.GetString("api_key"),

		GCPProjectID: v.GetString("gcp.project"),
		GCPLocation:  v.GetString("gcp.location"),

		Storage: StorageConfig{
			Backend:     strings.ToLower(v.GetString("storage.backend")),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
			BadgerPath:  v.GetString("storage.badger_path"),
		},
		Detector: DetectorConfig{
			Backend:       strings.ToLower(v.GetString("detector.backend")),
			URL:           v.GetString("detector.url"),
			Timeout:       timeout,
			MinConfidence: v.GetFloat64("detector.min_confidence"),
			Model:         v.GetString("detector.model"),
		},
		Catalog: CatalogConfig{
			File:    v.GetString("catalog.file"),
			Classes: splitList(v.Get("catalog.classes")),
		},

		DefaultThreshold:  v.GetFloat64("session.default_threshold"),
		AllowPartialIssue: v.GetBool("policy.allow_partial_issue"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		return fmt.Errorf("mode must be local or gcp, got %q", c.Mode)
	}
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("KITCHECK_GCP_PROJECT must be set in gcp mode")
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %q", c.Port)
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must not be empty")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	case "badger":
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("storage.badger_path must not be empty")
		}
	case "firestore":
		if c.GCPProjectID == "" {
			return fmt.Errorf("gcp.project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Detector.Backend {
	case "mock":
	case "http":
		if c.Detector.URL == "" {
			return fmt.Errorf("detector.url is required for the http detector")
		}
	case "gemini":
		if c.GCPProjectID == "" || c.GCPLocation == "" {
			return fmt.Errorf("gcp.project and gcp.location are required for the gemini detector")
		}
	default:
		return fmt.Errorf("unknown detector backend %q", c.Detector.Backend)
	}

	if c.Detector.Timeout <= 0 {
		return fmt.Errorf("detector.timeout must be positive, got %s", c.Detector.Timeout)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be within [0,1], got %v", c.Detector.MinConfidence)
	}
	if c.DefaultThreshold <= 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("session.default_threshold must be within (0,1], got %v", c.DefaultThreshold)
	}
	return nil
}

// splitList accepts a list from a config file or a comma separated string
// from the environment.
func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
