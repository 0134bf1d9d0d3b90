package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Render serializes the config as HCL.
func (c *Config) Render() []byte {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	server := root.AppendNewBlock("server", nil).Body()
	server.SetAttributeValue("url", cty.StringVal(c.Server.URL))
	server.SetAttributeValue("timeout", cty.StringVal(c.Server.Timeout))
	if c.Server.Insecure {
		server.SetAttributeValue("insecure", cty.True)
	}
	if c.Server.Fingerprint != "" {
		server.SetAttributeValue("fingerprint", cty.StringVal(c.Server.Fingerprint))
	}
	root.AppendNewline()

	session := root.AppendNewBlock("session", nil).Body()
	session.SetAttributeValue("storage", cty.StringVal(c.Session.Storage))
	if c.Session.Path != "" {
		session.SetAttributeValue("path", cty.StringVal(c.Session.Path))
	}
	root.AppendNewline()

	cache := root.AppendNewBlock("cache", nil).Body()
	cache.SetAttributeValue("stale_time", cty.StringVal(c.Cache.StaleTime))
	cache.SetAttributeValue("gc_time", cty.StringVal(c.Cache.GCTime))
	root.AppendNewline()

	console := root.AppendNewBlock("console", nil).Body()
	console.SetAttributeValue("poll_interval", cty.StringVal(c.Console.PollInterval))
	if c.Console.Language != "" {
		console.SetAttributeValue("language", cty.StringVal(c.Console.Language))
	}
	root.AppendNewline()

	log := root.AppendNewBlock("log", nil).Body()
	log.SetAttributeValue("level", cty.StringVal(c.Log.Level))
	log.SetAttributeValue("json", cty.BoolVal(c.Log.JSON))
	if c.Log.File != "" {
		log.SetAttributeValue("file", cty.StringVal(c.Log.File))
	}

	return hclwrite.Format(f.Bytes())
}

// WriteFile writes the config to path, refusing to overwrite unless force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, c.Render(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
