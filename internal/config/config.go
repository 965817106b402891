package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tanklog/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Remote         Remote `toml:"remote"`
	Daemon         Daemon `toml:"daemon"`
}

// Remote holds the remote record-store settings. OwnerID is the remote owner
// identity obtained at sign-in; empty means signed out (local-only mode).
type Remote struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	OwnerID string `toml:"owner_id"`
}

// Daemon holds background sync tuning.
type Daemon struct {
	ProbeInterval     duration `toml:"probe_interval"`
	ReconcileInterval duration `toml:"reconcile_interval"`
}

// duration wraps time.Duration so it round-trips through TOML as a string.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ProbeInterval returns the connectivity probe interval, defaulting to 15s.
func (c *Config) ProbeInterval() time.Duration {
	if c.Daemon.ProbeInterval == 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Daemon.ProbeInterval)
}

// ReconcileInterval returns the periodic reconcile interval, defaulting to 5m.
func (c *Config) ReconcileInterval() time.Duration {
	if c.Daemon.ReconcileInterval == 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Daemon.ReconcileInterval)
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
// The file carries the remote API key, hence the 0600 mode.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
