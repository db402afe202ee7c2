// Package config loads the repro daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	LogLevel string         `yaml:"log_level"`
	Store    StoreConfig    `yaml:"store"`
	Browser  BrowserConfig  `yaml:"browser"`
	Debounce DebounceConfig `yaml:"debounce"`
	Recorder RecorderConfig `yaml:"recorder"`
	Report   ReportConfig   `yaml:"report"`
	MCP      MCPConfig      `yaml:"mcp"`
	Pages    []PageConfig   `yaml:"pages"`
}

// StoreConfig locates the recordings database.
type StoreConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Mode             string        `yaml:"mode"` // headless | headful | http
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	UserAgent        string        `yaml:"user_agent"`
}

// DebounceConfig controls how DOM changes are batched into patches.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// RecorderConfig sizes the live recording buffer.
type RecorderConfig struct {
	MaxBytes         int           `yaml:"max_bytes"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	TailBuffer       int           `yaml:"tail_buffer"`
	// PersistEvicted stores events pushed out of the buffer.
	PersistEvicted bool `yaml:"persist_evicted"`
}

// ReportConfig tunes bug reports.
type ReportConfig struct {
	ConsoleLimit int    `yaml:"console_limit"`
	MinLevel     string `yaml:"min_level"`
}

// MCPConfig enables the MCP endpoint on the HTTP listener.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PageConfig is a page recorded from startup.
type PageConfig struct {
	URL     string `yaml:"url"`
	Acquire string `yaml:"acquire"` // auto | http | browser
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration of an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8420"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/repro.db"
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = 5 * time.Second
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if c.Recorder.MaxBytes <= 0 {
		c.Recorder.MaxBytes = 64 << 20
	}
	if c.Recorder.SnapshotInterval <= 0 {
		c.Recorder.SnapshotInterval = 30 * time.Second
	}
	if c.Recorder.TailBuffer <= 0 {
		c.Recorder.TailBuffer = 1024
	}
	if c.Report.ConsoleLimit <= 0 {
		c.Report.ConsoleLimit = 50
	}
	if c.Report.MinLevel == "" {
		c.Report.MinLevel = "warn"
	}
	if c.MCP.Path == "" {
		c.MCP.Path = "/mcp"
	}
	for i := range c.Pages {
		if c.Pages[i].Acquire == "" {
			c.Pages[i].Acquire = "auto"
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful", "http":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless, headful or http", c.Browser.Mode)
	}
	for i, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: pages[%d]: url is required", i)
		}
		switch p.Acquire {
		case "auto", "http", "browser":
		default:
			return fmt.Errorf("config: pages[%d]: acquire %q: want auto, http or browser", i, p.Acquire)
		}
	}
	return nil
}
