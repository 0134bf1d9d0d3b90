package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// OpenFile creates a logger that appends to path. The console uses this
// because the alternate screen owns stdout/stderr while it runs.
// The returned close function flushes and closes the file.
func OpenFile(path string, cfg Config) (*Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	cfg.Output = f
	return New(cfg), f.Close, nil
}
