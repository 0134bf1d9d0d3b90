package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("RAMPART_SERVER", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, cfg.Server.URL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout())
	assert.Equal(t, StorageFile, cfg.Session.Storage)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval())
}

func TestParse(t *testing.T) {
	src := `
server {
  url     = "https://waf.example.com/api"
  timeout = "5s"
}
session {
  storage = "sqlite"
  path    = "/tmp/rampart.db"
}
cache {
  stale_time = "30s"
}
console {
  poll_interval = "15s"
  language      = "zh"
}
log {
  level = "debug"
  json  = true
}
`
	cfg, err := Parse("rampart.hcl", []byte(src))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://waf.example.com/api", cfg.Server.URL)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, StorageSQLite, cfg.Session.Storage)
	assert.Equal(t, "/tmp/rampart.db", cfg.SessionPath())
	assert.Equal(t, 30*time.Second, cfg.StaleTime())
	assert.Equal(t, DefaultGCTime, cfg.GCTime(), "unset field falls back to default")
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
	assert.Equal(t, "zh", cfg.Console.Language)
	assert.True(t, cfg.Log.JSON)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("bad", []byte(`server { url = `))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"RAMPART_SERVER":        "https://other.example.com",
		"RAMPART_TOKEN_STORAGE": "MEMORY",
		"RAMPART_LANG":          "zh-CN",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "https://other.example.com", cfg.Server.URL)
	assert.Equal(t, StorageMemory, cfg.Session.Storage)
	assert.Equal(t, "zh-CN", cfg.Console.Language)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad url", func(c *Config) { c.Server.URL = "waf.example.com" }, true},
		{"bad timeout", func(c *Config) { c.Server.Timeout = "soon" }, true},
		{"poll too fast", func(c *Config) { c.Console.PollInterval = "100ms" }, true},
		{"unknown storage", func(c *Config) { c.Session.Storage = "redis" }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"short fingerprint", func(c *Config) { c.Server.Fingerprint = "ab:cd" }, true},
		{"fingerprint", func(c *Config) { c.Server.Fingerprint = strings.Repeat("ab:", 31) + "ab" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "https://waf.example.com/api"
	cfg.Console.Language = "en"
	cfg.Server.Fingerprint = strings.Repeat("0f", 32)

	path := filepath.Join(t.TempDir(), "rampart.hcl")
	require.NoError(t, cfg.WriteFile(path, false))
	assert.Error(t, cfg.WriteFile(path, false), "refuses to overwrite")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	parsed, err := Parse(path, data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, parsed.Server)
	assert.Equal(t, cfg.Cache, parsed.Cache)
	assert.Equal(t, cfg.Console, parsed.Console)
}
