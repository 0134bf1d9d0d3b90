// Package config provides the console's HCL configuration.
//
// A config file is optional: every field has a default, environment
// variables (RAMPART_*) override the file, and command-line flags override both.
package config

import (
	"time"
)

// Config is the console configuration.
type Config struct {
	Server  *ServerConfig  `hcl:"server,block"`
	Session *SessionConfig `hcl:"session,block"`
	Cache   *CacheConfig   `hcl:"cache,block"`
	Console *ConsoleConfig `hcl:"console,block"`
	Log     *LogConfig     `hcl:"log,block"`
}

// ServerConfig locates the WAF management API.
type ServerConfig struct {
	URL      string `hcl:"url,optional"`
	Timeout  string `hcl:"timeout,optional"`
	Insecure bool   `hcl:"insecure,optional"`

	// Fingerprint pins the server certificate (SHA-256 of the leaf, hex).
	Fingerprint string `hcl:"fingerprint,optional"`
}

// Storage backends for the persisted session token.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// SessionConfig selects where the session token is persisted.
type SessionConfig struct {
	Storage string `hcl:"storage,optional"`
	Path    string `hcl:"path,optional"`
}

// CacheConfig tunes the resource query cache.
type CacheConfig struct {
	StaleTime string `hcl:"stale_time,optional"`
	GCTime    string `hcl:"gc_time,optional"`
}

// ConsoleConfig tunes the interactive console.
type ConsoleConfig struct {
	PollInterval string `hcl:"poll_interval,optional"`
	Language     string `hcl:"language,optional"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `hcl:"level,optional"`
	JSON  bool   `hcl:"json,optional"`
	File  string `hcl:"file,optional"`
}

// Defaults.
const (
	DefaultServerURL    = "http://localhost:8080/api"
	DefaultTimeout      = 10 * time.Second
	DefaultStaleTime    = 5 * time.Minute
	DefaultGCTime       = 10 * time.Minute
	DefaultPollInterval = 10 * time.Second
	MinPollInterval     = time.Second
)

// Default returns a fully populated configuration.
func Default() *Config {
	return &Config{
		Server: &ServerConfig{
			URL:     DefaultServerURL,
			Timeout: DefaultTimeout.String(),
		},
		Session: &SessionConfig{
			Storage: StorageFile,
		},
		Cache: &CacheConfig{
			StaleTime: DefaultStaleTime.String(),
			GCTime:    DefaultGCTime.String(),
		},
		Console: &ConsoleConfig{
			PollInterval: DefaultPollInterval.String(),
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// applyDefaults fills blocks and fields the file left out.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Server == nil {
		c.Server = d.Server
	}
	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.Timeout == "" {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.Session == nil {
		c.Session = d.Session
	}
	if c.Session.Storage == "" {
		c.Session.Storage = d.Session.Storage
	}
	if c.Cache == nil {
		c.Cache = d.Cache
	}
	if c.Cache.StaleTime == "" {
		c.Cache.StaleTime = d.Cache.StaleTime
	}
	if c.Cache.GCTime == "" {
		c.Cache.GCTime = d.Cache.GCTime
	}
	if c.Console == nil {
		c.Console = d.Console
	}
	if c.Console.PollInterval == "" {
		c.Console.PollInterval = d.Console.PollInterval
	}
	if c.Log == nil {
		c.Log = d.Log
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Timeout is the fixed per-request deadline.
func (c *Config) Timeout() time.Duration {
	return parseOr(c.Server.Timeout, DefaultTimeout)
}

// StaleTime is how long a list result is served from cache.
func (c *Config) StaleTime() time.Duration {
	return parseOr(c.Cache.StaleTime, DefaultStaleTime)
}

// GCTime is how long an unobserved cache entry survives.
func (c *Config) GCTime() time.Duration {
	return parseOr(c.Cache.GCTime, DefaultGCTime)
}

// PollInterval is the telemetry refresh period.
func (c *Config) PollInterval() time.Duration {
	return parseOr(c.Console.PollInterval, DefaultPollInterval)
}

func parseOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
