package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"grimm.is/rampart/internal/logging"
)

// ValidationError aggregates every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks the configuration for values the console cannot run with.
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("server.url %q must be an http(s) URL", c.Server.URL))
	}

	checkDuration := func(field, value string, min time.Duration) {
		d, err := time.ParseDuration(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s %q is not a duration", field, value))
			return
		}
		if d < min {
			problems = append(problems, fmt.Sprintf("%s must be at least %s", field, min))
		}
	}
	checkDuration("server.timeout", c.Server.Timeout, 100*time.Millisecond)
	checkDuration("cache.stale_time", c.Cache.StaleTime, 0)
	checkDuration("cache.gc_time", c.Cache.GCTime, 0)
	checkDuration("console.poll_interval", c.Console.PollInterval, MinPollInterval)

	if fp := strings.ReplaceAll(c.Server.Fingerprint, ":", ""); fp != "" {
		if b, err := hex.DecodeString(fp); err != nil || len(b) != sha256.Size {
			problems = append(problems, "server.fingerprint must be a SHA-256 hex digest")
		}
	}

	switch c.Session.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		problems = append(problems, fmt.Sprintf("session.storage %q must be one of file, sqlite, memory", c.Session.Storage))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level: "+err.Error())
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
