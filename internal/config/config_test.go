package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoad_ParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harel.toml")
	data := `
[extract]
start = "{{%"
end = "%}}"

[server]
listen = "0.0.0.0:9090"
cache_db = "/var/lib/harel/cache.db"
token_secret = "abcdefghijklmnopqrstuvwxyz012345"
unauth_delay_millis = 250
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "{{%", cfg.Extract.Start)
	assert.Equal(t, "%}}", cfg.Extract.End)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Listen)
	assert.Equal(t, "/var/lib/harel/cache.db", cfg.Server.CacheDBPath)
	assert.Equal(t, 250, cfg.Server.UnauthDelayMillis)
}

func TestExtract_ToOptions(t *testing.T) {
	e := Extract{Start: "<<", End: ">>"}
	opts := e.ToOptions()
	assert.Equal(t, "<<", opts.Start)
	assert.Equal(t, ">>", opts.End)
}
