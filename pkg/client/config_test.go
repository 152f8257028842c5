package client

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "/data/mudclient/transcript.db", cfg.Local.TranscriptDB)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	// The written file loads back to the same values
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[connection]\nserver = \"mud.example.com\"\n\n[notify]\non_disconnect = true\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mud.example.com", cfg.Connection.Server)
	assert.Equal(t, 2277, cfg.Connection.Port)
	assert.Equal(t, 80, cfg.Terminal.FallbackWidth)
	assert.True(t, cfg.Notify.OnDisconnect)
	assert.Equal(t, "mud.example.com:2277", cfg.ServerAddress())
}

func TestLoadConfigParseErrorHasLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[connection]\nserver = \"a\"\nport = = 3\n"), 0644))

	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Path)
	assert.Equal(t, 3, cfgErr.LineNumber)
}

func TestLoadConfigValidationCollectsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[connection]\nport = 70000\n\n[terminal]\nfallback_width = 0\n\n[metrics]\nlisten_addr = \"nope\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Zero(t, cfgErr.LineNumber)
	assert.Contains(t, cfgErr.Message, "Invalid port number: 70000")
	assert.Contains(t, cfgErr.Message, "Invalid fallback width: 0")
	assert.Contains(t, cfgErr.Message, "Invalid metrics listen address")
}

func TestServerAddress(t *testing.T) {
	cases := []struct {
		server string
		port   int
		want   string
	}{
		{"localhost", 2277, "localhost:2277"},
		{"localhost:9000", 2277, "localhost:9000"},
		{"ssh://mud.example.com", 2277, "ssh://mud.example.com"},
		{"localhost", 0, "localhost"},
		{"::1", 2277, "[::1]:2277"},
		{"  ", 2277, ""},
	}
	for _, tc := range cases {
		cfg := Config{Connection: ConnectionSection{Server: tc.server, Port: tc.port}}
		assert.Equal(t, tc.want, cfg.ServerAddress(), "server %q", tc.server)
	}
}

func TestOptionalPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Config{Local: LocalSection{TranscriptDB: "~/t.db"}}
	p, err := cfg.TranscriptPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "t.db"), p)

	p, err = cfg.LogFilePath()
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestResetConfigWithBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("broken = = ="), 0644))

	require.NoError(t, ResetConfig(path, true))

	_, err := LoadConfig(path)
	require.NoError(t, err)

	matches, err := filepath.Glob(path + ".backup-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "broken = = =", string(data))
}
