// Package config loads service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WebhookSecrets holds the per-vendor inbound webhook credentials. An empty
// secret disables the vendor's receiver (requests fail closed with 500).
type WebhookSecrets struct {
	CloudbedsToken string `yaml:"cloudbeds_token"`
	OperaSecret    string `yaml:"opera_secret"`
}

type Config struct {
	ListenAddr   string         `yaml:"listen_addr"`
	DatabaseURL  string         `yaml:"database_url"`
	RedisURL     string         `yaml:"redis_url"`
	MasterKey    string         `yaml:"master_key"` // base64, 32 bytes decoded
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
	SyncInterval time.Duration  `yaml:"sync_interval"`
	Webhooks     WebhookSecrets `yaml:"webhooks"`
}

// Load reads the YAML file at path (if non-empty), then applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		SyncInterval: 15 * time.Minute,
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	setIfEnv(&c.ListenAddr, "LISTEN_ADDR")
	setIfEnv(&c.DatabaseURL, "DATABASE_URL")
	setIfEnv(&c.RedisURL, "REDIS_URL")
	setIfEnv(&c.MasterKey, "PMS_MASTER_KEY")
	setIfEnv(&c.LogLevel, "LOG_LEVEL")
	setIfEnv(&c.LogFormat, "LOG_FORMAT")
	setIfEnv(&c.Webhooks.CloudbedsToken, "CLOUDBEDS_WEBHOOK_TOKEN")
	setIfEnv(&c.Webhooks.OperaSecret, "OPERA_WEBHOOK_SECRET")
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.SyncInterval = d
		}
	}
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
