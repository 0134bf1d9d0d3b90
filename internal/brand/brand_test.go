package brand

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	b := Get()
	assert.NotEmpty(t, b.Name)
	assert.NotEmpty(t, Version, "Version defaults to dev")
	assert.Equal(t, "rampart.auth.token", TokenStorageKey)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, Name+"/1.0.0", UserAgent("1.0.0"))
	assert.Equal(t, Name+"/dev", UserAgent(""))
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/tmp/rampart-config")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "/tmp/rampart-state")

	assert.Equal(t, "/tmp/rampart-config", GetConfigDir())
	assert.Equal(t, "/tmp/rampart-state", GetStateDir())
	assert.Equal(t, filepath.Join("/tmp/rampart-config", ConfigFileName), DefaultConfigPath())

	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/opt/rampart")

	assert.Equal(t, "/opt/rampart/config", GetConfigDir())
	assert.Equal(t, "/opt/rampart/state", GetStateDir())
}
