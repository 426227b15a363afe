// Package config loads engine tuning from an optional YAML file plus env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type PoolConfig struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"maxAttempts"`
	BackoffMs   int `yaml:"backoffMs"`
}

func (p PoolConfig) Backoff() time.Duration { return time.Duration(p.BackoffMs) * time.Millisecond }

type ProviderTuning struct {
	TimeoutSec int     `yaml:"timeoutSec"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
}

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	// EncryptionSecret protects provider credential bundles at rest.
	EncryptionSecret string `yaml:"encryptionSecret"`

	Jobs struct {
		SyncWithProvider PoolConfig `yaml:"syncWithProvider"`
		CheckStatus      PoolConfig `yaml:"checkStatus"`
		Persistence      PoolConfig `yaml:"persistence"` // create-order / update-order
		BulkStatusCheck  PoolConfig `yaml:"bulkStatusCheck"`
	} `yaml:"jobs"`

	Reconciler struct {
		IntervalSec int `yaml:"intervalSec"`
		BatchSize   int `yaml:"batchSize"`
		PacingMs    int `yaml:"pacingMs"`
	} `yaml:"reconciler"`

	DuplicateWindowHours int `yaml:"duplicateWindowHours"`

	Providers map[string]ProviderTuning `yaml:"providers"`
}

// Defaults mirror the production tuning: 5-minute reconciler cadence, batches of
// ten with one second of pacing, three create attempts, 24h duplicate window.
func defaults() *Config {
	c := &Config{Port: "8080", DuplicateWindowHours: 24}
	c.Jobs.SyncWithProvider = PoolConfig{Workers: 4, MaxAttempts: 3, BackoffMs: 2000}
	c.Jobs.CheckStatus = PoolConfig{Workers: 4, MaxAttempts: 2, BackoffMs: 1000}
	c.Jobs.Persistence = PoolConfig{Workers: 8, MaxAttempts: 3, BackoffMs: 500}
	c.Jobs.BulkStatusCheck = PoolConfig{Workers: 1, MaxAttempts: 1, BackoffMs: 1000}
	c.Reconciler.IntervalSec = 300
	c.Reconciler.BatchSize = 10
	c.Reconciler.PacingMs = 1000
	c.Providers = map[string]ProviderTuning{}
	return c
}

// Load reads CONFIG_FILE if set, then applies env overrides on top.
func Load() (*Config, error) {
	c := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	c.Port = envStr("PORT", c.Port)
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = envStr("REDIS_URL", c.RedisURL)
	c.EncryptionSecret = envStr("ENCRYPTION_SECRET", c.EncryptionSecret)
	c.Reconciler.IntervalSec = envInt("RECONCILER_INTERVAL_SEC", c.Reconciler.IntervalSec)
	c.Reconciler.BatchSize = envInt("RECONCILER_BATCH_SIZE", c.Reconciler.BatchSize)
	c.Reconciler.PacingMs = envInt("RECONCILER_PACING_MS", c.Reconciler.PacingMs)
	c.DuplicateWindowHours = envInt("DUPLICATE_WINDOW_HOURS", c.DuplicateWindowHours)
	c.Jobs.SyncWithProvider.MaxAttempts = envInt("SYNC_MAX_ATTEMPTS", c.Jobs.SyncWithProvider.MaxAttempts)
	c.Jobs.SyncWithProvider.Workers = envInt("SYNC_WORKERS", c.Jobs.SyncWithProvider.Workers)
	return c, nil
}

// Tuning returns per-provider tuning, falling back to conservative defaults.
func (c *Config) Tuning(slug string) ProviderTuning {
	t, ok := c.Providers[slug]
	if !ok {
		t = ProviderTuning{}
	}
	if t.TimeoutSec <= 0 {
		t.TimeoutSec = 15
	}
	if t.RPS <= 0 {
		t.RPS = 5
	}
	if t.Burst <= 0 {
		t.Burst = 5
	}
	return t
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
