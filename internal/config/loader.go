package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/rampart/internal/brand"
)

// Load reads the config file at path. A missing file is not an error: the
// defaults are returned. Environment overrides are applied and the result
// is validated.
func Load(path string) (*Config, error) {
	var cfg *Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg, err = Parse(path, data)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		cfg = Default()
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes HCL source into a Config with defaults applied.
// filename is only used in diagnostics and must end in .hcl.
func Parse(filename string, data []byte) (*Config, error) {
	if filepath.Ext(filename) != ".hcl" {
		filename += ".hcl"
	}

	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ApplyEnv overrides fields from RAMPART_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	prefix := brand.ConfigEnvPrefix + "_"
	if v := getenv(prefix + "SERVER"); v != "" {
		c.Server.URL = v
	}
	if v := getenv(prefix + "TIMEOUT"); v != "" {
		c.Server.Timeout = v
	}
	if v := getenv(prefix + "FINGERPRINT"); v != "" {
		c.Server.Fingerprint = v
	}
	if v := getenv(prefix + "TOKEN_STORAGE"); v != "" {
		c.Session.Storage = strings.ToLower(v)
	}
	if v := getenv(prefix + "LANG"); v != "" {
		c.Console.Language = v
	}
	if v := getenv(prefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// SessionPath returns where the token is persisted for the configured backend.
func (c *Config) SessionPath() string {
	if c.Session.Path != "" {
		return expandHome(c.Session.Path)
	}
	name := brand.SessionFileName
	if c.Session.Storage == StorageSQLite {
		name = brand.DatabaseFileName
	}
	return filepath.Join(brand.GetStateDir(), name)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
