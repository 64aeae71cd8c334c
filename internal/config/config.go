package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CurrentVersion is the config schema version written by DefaultConfig
const CurrentVersion = 1

const (
	// ModeDevelopment allows a destructive reset when the schema cannot be upgraded
	ModeDevelopment = "development"
	// ModeProduction surfaces schema upgrade errors and never wipes data
	ModeProduction = "production"
)

// Backend kinds
const (
	BackendLocal    = "local"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// EnvPrefix is the prefix for environment overrides (FINLEDGER_MODE, FINLEDGER_BACKEND_DSN, ...)
const EnvPrefix = "FINLEDGER"

// Config represents the complete finledger configuration
type Config struct {
	Version   int             `json:"version" mapstructure:"version"`
	Mode      string          `json:"mode" mapstructure:"mode"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Backend   BackendConfig   `json:"backend" mapstructure:"backend"`
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
	Live      LiveConfig      `json:"live" mapstructure:"live"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Backup    BackupConfig    `json:"backup" mapstructure:"backup"`
}

// StorageConfig contains embedded store settings
type StorageConfig struct {
	// Path is the database file; relative paths resolve against the data directory
	Path          string `json:"path" mapstructure:"path"`
	BusyTimeoutMs int    `json:"busyTimeoutMs" mapstructure:"busyTimeoutMs"`
}

// BackendConfig selects the record backend used by the ledger service
type BackendConfig struct {
	Kind     string `json:"kind" mapstructure:"kind"`
	DSN      string `json:"dsn,omitempty" mapstructure:"dsn"`
	UserID   string `json:"userId" mapstructure:"userId"`
	MaxConns int    `json:"maxConns" mapstructure:"maxConns"`
}

// RetentionConfig contains retention policy settings
type RetentionConfig struct {
	// PoliciesFile, when set, replaces Policies with the contents of a TOML file
	PoliciesFile string                  `json:"policiesFile,omitempty" mapstructure:"policiesFile"`
	Schedule     string                  `json:"schedule" mapstructure:"schedule"`
	Policies     []RetentionPolicyConfig `json:"policies" mapstructure:"policies"`
}

// RetentionPolicyConfig is one table's retention window
type RetentionPolicyConfig struct {
	Table           string `json:"table" mapstructure:"table"`
	RetentionMonths int    `json:"retentionMonths" mapstructure:"retentionMonths"`
	Enabled         bool   `json:"enabled" mapstructure:"enabled"`
}

// LiveConfig contains live query settings
type LiveConfig struct {
	// CoalesceMs delays re-evaluation after a change so bursts of commits produce one callback
	CoalesceMs int `json:"coalesceMs" mapstructure:"coalesceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format"`
	Level      string `json:"level" mapstructure:"level"`
	File       bool   `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// BackupConfig contains export settings
type BackupConfig struct {
	Compress bool `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Mode:    ModeProduction,
		Storage: StorageConfig{
			Path:          "",
			BusyTimeoutMs: 5000,
		},
		Backend: BackendConfig{
			Kind:     BackendLocal,
			UserID:   "local",
			MaxConns: 4,
		},
		Retention: RetentionConfig{
			Schedule: "0 3 * * *", // 3 AM daily
			Policies: []RetentionPolicyConfig{
				{Table: "auditLogs", RetentionMonths: 12, Enabled: true},
				{Table: "familyTransfers", RetentionMonths: 36, Enabled: false},
				{Table: "txns", RetentionMonths: 84, Enabled: false},
				{Table: "medicines", RetentionMonths: 24, Enabled: false},
			},
		},
		Live: LiveConfig{
			CoalesceMs: 0,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			File:       false,
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
		Backup: BackupConfig{
			Compress: true,
		},
	}
}

// LoadConfig loads configuration from <dataDir>/config.json and FINLEDGER_* env vars.
// A missing file yields the defaults with env overrides applied.
func LoadConfig(dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v, DefaultConfig())

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dataDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every scalar key so env overrides apply even without a file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.busyTimeoutMs", d.Storage.BusyTimeoutMs)
	v.SetDefault("backend.kind", d.Backend.Kind)
	v.SetDefault("backend.dsn", d.Backend.DSN)
	v.SetDefault("backend.userId", d.Backend.UserID)
	v.SetDefault("backend.maxConns", d.Backend.MaxConns)
	v.SetDefault("retention.policiesFile", d.Retention.PoliciesFile)
	v.SetDefault("retention.schedule", d.Retention.Schedule)
	v.SetDefault("retention.policies", d.Retention.Policies)
	v.SetDefault("live.coalesceMs", d.Live.CoalesceMs)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
	v.SetDefault("backup.compress", d.Backup.Compress)
}

// Save writes the configuration to <dataDir>/config.json
func (c *Config) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	configPath := filepath.Join(dataDir, "config.json")

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// IsDevelopment reports whether destructive schema resets are allowed
func (c *Config) IsDevelopment() bool {
	return c.Mode == ModeDevelopment
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}

	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return &ConfigError{Field: "mode", Message: "must be development or production"}
	}

	switch c.Backend.Kind {
	case BackendLocal, BackendMemory:
	case BackendPostgres, BackendMySQL:
		if c.Backend.DSN == "" {
			return &ConfigError{Field: "backend.dsn", Message: "required for " + c.Backend.Kind}
		}
	default:
		return &ConfigError{Field: "backend.kind", Message: "unknown backend " + c.Backend.Kind}
	}

	if c.Storage.BusyTimeoutMs < 0 {
		return &ConfigError{Field: "storage.busyTimeoutMs", Message: "must not be negative"}
	}

	for _, p := range c.Retention.Policies {
		if p.Table == "" {
			return &ConfigError{Field: "retention.policies", Message: "table is required"}
		}
		if p.RetentionMonths <= 0 {
			return &ConfigError{Field: "retention.policies", Message: "retentionMonths must be positive for " + p.Table}
		}
	}

	if c.Live.CoalesceMs < 0 {
		return &ConfigError{Field: "live.coalesceMs", Message: "must not be negative"}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: "unknown level " + c.Logging.Level}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
