package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kalambet/notebook/internal/datasync"
	"github.com/kalambet/notebook/internal/kv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Sync    SyncConfig
	Seed    SeedConfig
	Backup  BackupConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir    string
	Namespace  string
	QuotaBytes int
}

type SyncConfig struct {
	// Interval is a time.ParseDuration string.
	Interval string
	// Remote routes store operations through SQLite instead of local
	// simulation.
	Remote bool
}

type SeedConfig struct {
	Enabled bool
}

type BackupConfig struct {
	// Dir defaults to <data_dir>/backups when empty.
	Dir string
}

type LogConfig struct {
	Level string
}

// DefaultQuotaBytes matches a browser localStorage origin limit.
const DefaultQuotaBytes = 5 << 20

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		Storage: StorageConfig{
			DataDir:    defaultDataDir(),
			Namespace:  kv.DefaultPrefix,
			QuotaBytes: DefaultQuotaBytes,
		},
		Sync: SyncConfig{Interval: datasync.DefaultInterval.String()},
		Seed: SeedConfig{Enabled: true},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads configuration from the JSON file at FilePath. Environment
// variables (NOTEBOOK_*) override file values.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("storage.quota_bytes must not be negative")
	}
	if d, err := time.ParseDuration(c.Sync.Interval); err != nil || d <= 0 {
		return fmt.Errorf("sync.interval %q is not a positive duration", c.Sync.Interval)
	}
	return nil
}

// SyncInterval is the parsed sync.interval.
func (c Config) SyncInterval() time.Duration {
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil || d <= 0 {
		return datasync.DefaultInterval
	}
	return d
}

func (c Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.DataDir, "backups")
}
