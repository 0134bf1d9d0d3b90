// Package brand provides centralized branding constants for the console.
//
// The brand identity is loaded from brand.json at compile time via go:embed,
// so scripts and docs generators can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	ConfigDirName    string `json:"configDirName"`
	StateDirName     string `json:"stateDirName"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	SessionFileName  string `json:"sessionFileName"`
	DatabaseFileName string `json:"databaseFileName"`
	TokenStorageKey  string `json:"tokenStorageKey"`
	Copyright        string `json:"copyright"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Vendor = b.Vendor
	Website = b.Website
	Repository = b.Repository
	Description = b.Description
	Tagline = b.Tagline
	ConfigEnvPrefix = b.ConfigEnvPrefix
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	SessionFileName = b.SessionFileName
	DatabaseFileName = b.DatabaseFileName
	TokenStorageKey = b.TokenStorageKey
	Copyright = b.Copyright
	License = b.License
}

var (
	Name             string
	LowerName        string
	Vendor           string
	Website          string
	Repository       string
	Description      string
	Tagline          string
	ConfigEnvPrefix  string
	BinaryName       string
	ConfigFileName   string
	SessionFileName  string
	DatabaseFileName string

	// TokenStorageKey is the single well-known key the session token is
	// persisted under, whatever the storage backend.
	TokenStorageKey string

	Copyright string
	License   string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: RAMPART_CONFIG_DIR > RAMPART_PREFIX/config > $XDG_CONFIG_HOME/rampart
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, b.ConfigDirName)
	}
	return filepath.Join(".", b.ConfigDirName)
}

// GetStateDir returns the directory holding the persisted session.
// Priority: RAMPART_STATE_DIR > RAMPART_PREFIX/state > $HOME/.rampart
func GetStateDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, b.StateDirName)
	}
	return b.StateDirName
}

// DefaultConfigPath is the config file looked up when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
