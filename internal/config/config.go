// Package config holds all application configuration: a TOML file for the
// durable settings, flags and environment variables for the per-run knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	BaseURL string        `toml:"base_url"`
	Store   StoreConfig   `toml:"store"`
	Harvest HarvestConfig `toml:"harvest"`
	Cache   CacheConfig   `toml:"cache"`
	Browser BrowserConfig `toml:"browser"`
	Pause   PauseConfig   `toml:"pause"`
}

// StoreConfig is the persistence endpoint.
type StoreConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// HarvestConfig bounds the per-account loop.
type HarvestConfig struct {
	HoursWindow         int  `toml:"hours_window"`
	MaxPostsReturned    int  `toml:"max_posts_returned"`
	MaxScrolls          int  `toml:"max_scrolls"`
	MaxConsecutiveNoNew int  `toml:"max_consecutive_no_new"`
	CollectCap          int  `toml:"collect_cap"`
	ExpandTruncated     bool `toml:"expand_truncated"`
	Shuffle             bool `toml:"shuffle"`
}

// CacheConfig controls snapshot reuse.
type CacheConfig struct {
	Enabled  bool   `toml:"enabled"`
	TTLHours int    `toml:"ttl_hours"`
	Dir      string `toml:"dir"`
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	Headless      bool   `toml:"headless"`
	ProfilePath   string `toml:"profile_path"`
	UserAgent     string `toml:"user_agent"`
	SelectorsPath string `toml:"selectors_path"`
	CookiesPath   string `toml:"cookies_path"`
}

// PauseConfig bounds the random sleep between accounts.
type PauseConfig struct {
	MinSeconds int `toml:"min_seconds"`
	MaxSeconds int `toml:"max_seconds"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	cacheDir, _ := os.UserCacheDir()
	return &Config{
		BaseURL: "https://x.com",
		Store: StoreConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "rookery",
			Database: "rookery",
			SSLMode:  "disable",
		},
		Harvest: HarvestConfig{
			HoursWindow:         24,
			MaxPostsReturned:    15,
			MaxScrolls:          40,
			MaxConsecutiveNoNew: 5,
			CollectCap:          100,
			ExpandTruncated:     true,
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTLHours: 6,
			Dir:      filepath.Join(cacheDir, "rookery", "harvests"),
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Pause: PauseConfig{
			MinSeconds: 2,
			MaxSeconds: 35,
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// fine when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pause.MinSeconds < 0 || c.Pause.MaxSeconds < c.Pause.MinSeconds {
		return fmt.Errorf("invalid pause range [%d, %d]", c.Pause.MinSeconds, c.Pause.MaxSeconds)
	}
	if c.Harvest.CollectCap <= 0 || c.Harvest.MaxScrolls <= 0 {
		return fmt.Errorf("harvest loop bounds must be positive")
	}
	return nil
}
