// Package config loads commsd and comms settings from an optional
// comms.yaml, then COMMS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/vault"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/sdk"
)

// EnvPrefix is prepended to every environment key, so data_dir is read
// from COMMS_DATA_DIR.
const EnvPrefix = "COMMS"

type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// QuotaBytes caps the store. File payloads are kept base64 encoded, so
	// files smaller than max_file_size fail with storage full when the
	// quota is under about 4/3 of the archive they have to share it with.
	QuotaBytes int64  `mapstructure:"quota_bytes"`
	StoreAddr  string `mapstructure:"store_addr"`
	MasterKey  string `mapstructure:"master_key"`

	Port       string `mapstructure:"port"`
	HTTPPort   string `mapstructure:"http_port"`
	DisableTLS bool   `mapstructure:"disable_tls"`

	MaxFileSize      int64         `mapstructure:"max_file_size"`
	StorageBudget    int64         `mapstructure:"storage_budget"`
	UploadWorkers    int           `mapstructure:"upload_workers"`
	PayloadCacheSize int           `mapstructure:"payload_cache_size"`
	PayloadCacheTTL  time.Duration `mapstructure:"payload_cache_ttl"`

	LogLevelName string     `mapstructure:"log_level"`
	LogFormat    string     `mapstructure:"log_format"`
	LogLevel     slog.Level `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("backend", sdk.BackendFile)
	v.SetDefault("sqlite_path", "")
	v.SetDefault("quota_bytes", engine.DefaultQuota)
	v.SetDefault("store_addr", "")
	v.SetDefault("master_key", "")

	v.SetDefault("port", "7101")
	v.SetDefault("http_port", "7102")
	v.SetDefault("disable_tls", false)

	v.SetDefault("max_file_size", files.MaxFileSize)
	v.SetDefault("storage_budget", files.StorageBudget)
	v.SetDefault("upload_workers", files.DefaultUploadWorkers)
	v.SetDefault("payload_cache_size", 64)
	v.SetDefault("payload_cache_ttl", 5*time.Minute)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads configuration. When path is empty, comms.yaml is looked up in
// the working directory and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("comms")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	level, err := parseLogLevel(c.LogLevelName)
	if err != nil {
		return err
	}
	c.LogLevel = level

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format: must be json or text, got %q", c.LogFormat)
	}
	switch c.Backend {
	case sdk.BackendFile, sdk.BackendSQLite, sdk.BackendMemory:
	default:
		return fmt.Errorf("backend: unknown value %q", c.Backend)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size: must be positive, got %d", c.MaxFileSize)
	}
	if c.StorageBudget <= 0 {
		return fmt.Errorf("storage_budget: must be positive, got %d", c.StorageBudget)
	}
	if c.UploadWorkers < 1 {
		return fmt.Errorf("upload_workers: must be at least 1, got %d", c.UploadWorkers)
	}
	if c.QuotaBytes < 0 {
		return fmt.Errorf("quota_bytes: must not be negative, got %d", c.QuotaBytes)
	}
	if c.MasterKey != "" {
		if _, err := vault.ParseMasterKey(c.MasterKey); err != nil {
			return fmt.Errorf("master_key: %w", err)
		}
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log_level: unknown level %q", s)
}

// StoreOptions translates the storage settings for sdk.Open.
func (c *Config) StoreOptions(logger *slog.Logger) sdk.Options {
	var key []byte
	if c.MasterKey != "" {
		// validate already rejected malformed keys
		key, _ = vault.ParseMasterKey(c.MasterKey)
	}
	sqlitePath := c.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(c.DataDir, "comms.db")
	}
	return sdk.Options{
		Addr:       c.StoreAddr,
		DisableTLS: c.DisableTLS,
		DataDir:    c.DataDir,
		Backend:    c.Backend,
		SQLitePath: sqlitePath,
		Quota:      c.QuotaBytes,
		MasterKey:  key,
		Logger:     logger,
	}
}

// ArchiveOptions returns the files.Archive settings.
func (c *Config) ArchiveOptions() []files.Option {
	return []files.Option{
		files.WithMaxFileSize(c.MaxFileSize),
		files.WithBudget(c.StorageBudget),
		files.WithUploadWorkers(c.UploadWorkers),
		files.WithPayloadCache(c.PayloadCacheSize, c.PayloadCacheTTL),
	}
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
