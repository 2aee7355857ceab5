package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is absent from config.toml.
const (
	DefaultSocketURL     = "wss://api.fitpulse.app/ws/chat"
	DefaultAPIBaseURL    = "https://api.fitpulse.app"
	DefaultTypingWindowS = 3
	DefaultReceiptMS     = 500
	DefaultCacheFlushMS  = 1000
)

// Config represents the global ~/.fitchat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	SocketURL      string `toml:"socket_url"`
	APIBaseURL     string `toml:"api_base_url"`

	// Timing knobs, zero means default.
	TypingWindowSeconds int `toml:"typing_window_seconds"`
	ReceiptWindowMillis int `toml:"receipt_window_millis"`
	CacheFlushMillis    int `toml:"cache_flush_millis"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist yet.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SocketURL == "" {
		c.SocketURL = DefaultSocketURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.TypingWindowSeconds <= 0 {
		c.TypingWindowSeconds = DefaultTypingWindowS
	}
	if c.ReceiptWindowMillis <= 0 {
		c.ReceiptWindowMillis = DefaultReceiptMS
	}
	if c.CacheFlushMillis <= 0 {
		c.CacheFlushMillis = DefaultCacheFlushMS
	}
}

// Save writes config to the given path, creating parent dirs as needed.
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
