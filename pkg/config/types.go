package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent spool configuration stored as config.toml
// in the .spool/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Backend     BackendConfig     `toml:"backend"`
	Cache       CacheConfig       `toml:"cache"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Hydration   HydrationConfig   `toml:"hydration"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Annotate    AnnotateConfig    `toml:"annotate"`
}

// BackendConfig selects where logs are read from.
type BackendConfig struct {
	Provider string `toml:"provider,omitempty"`
	Root     string `toml:"root,omitempty"`
}

// CacheConfig selects the persistent read-through cache driver.
type CacheConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// HydrationConfig tunes the background content loader.
type HydrationConfig struct {
	BatchSize int `toml:"batch_size,omitempty"`
}

// EventStreamConfig selects where hydration progress events are published.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// AnnotateConfig holds annotation source settings.
type AnnotateConfig struct {
	Provider string `toml:"provider,omitempty"`
	Enabled  bool   `toml:"enabled,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"backend.provider": {
		get: func(c *Config) string { return c.Backend.Provider },
		set: func(c *Config, v string) error { c.Backend.Provider = v; return nil },
	},
	"backend.root": {
		get: func(c *Config) string { return c.Backend.Root },
		set: func(c *Config, v string) error { c.Backend.Root = v; return nil },
	},
	"cache.provider": {
		get: func(c *Config) string { return c.Cache.Provider },
		set: func(c *Config, v string) error { c.Cache.Provider = v; return nil },
	},
	"cache.sqlite_path": {
		get: func(c *Config) string { return c.Cache.SQLitePath },
		set: func(c *Config, v string) error { c.Cache.SQLitePath = v; return nil },
	},
	"cache.postgres_dsn": {
		get: func(c *Config) string { return c.Cache.PostgresDSN },
		set: func(c *Config, v string) error { c.Cache.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"hydration.batch_size": {
		get: func(c *Config) string {
			if c.Hydration.BatchSize == 0 {
				return ""
			}
			return strconv.Itoa(c.Hydration.BatchSize)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid value for hydration.batch_size: %q", v)
			}
			c.Hydration.BatchSize = n
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"annotate.provider": {
		get: func(c *Config) string { return c.Annotate.Provider },
		set: func(c *Config, v string) error { c.Annotate.Provider = v; return nil },
	},
	"annotate.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Annotate.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for annotate.enabled: %w", err)
			}
			c.Annotate.Enabled = b
			return nil
		},
	},
}
