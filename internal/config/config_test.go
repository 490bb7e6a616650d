package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreate_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "bridge.toml")

	cfg, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written to disk")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Backend, loaded.Backend)
	assert.Equal(t, cfg.Plugins.AllowedImports, loaded.Plugins.AllowedImports)
}

func TestSave_RoundTripsAutojoinChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	cfg := DefaultConfig()
	cfg.Bot.Channels = []string{"#one", "&two"}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"#one", "&two"}, loaded.Bot.Channels)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name:    "primary channel must be a channel",
			mutate:  func(c *Config) { c.Bot.Channel = "lolo" },
			wantErr: "bot.channel must be a channel name",
		},
		{
			name:    "autojoin entry must be a channel",
			mutate:  func(c *Config) { c.Bot.Channels = []string{"#ok", "nick"} },
			wantErr: "bot.channels entry",
		},
		{
			name:    "backend must be websocket",
			mutate:  func(c *Config) { c.Backend.URL = "http://localhost:8765" },
			wantErr: "backend.url must be a ws://",
		},
		{
			name:    "heartbeat timeout positive",
			mutate:  func(c *Config) { c.Backend.HeartbeatTimeout = 0 },
			wantErr: "backend.heartbeat_timeout must be positive",
		},
		{
			name: "reconnect bounds ordered",
			mutate: func(c *Config) {
				c.Limits.ReconnectDelayMin = 120
				c.Limits.ReconnectDelayMax = 60
			},
			wantErr: "cannot be greater than reconnect_delay_max",
		},
		{
			name: "fetch needs hosts",
			mutate: func(c *Config) {
				c.Plugins.AllowFetch = true
				c.Plugins.AllowedHosts = nil
			},
			wantErr: "plugins.allowed_hosts",
		},
		{
			name:    "prefix without whitespace",
			mutate:  func(c *Config) { c.Bot.CommandPrefix = "! " },
			wantErr: "must not contain whitespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsChannel(t *testing.T) {
	assert.True(t, IsChannel("#chan"))
	assert.True(t, IsChannel("&local"))
	assert.False(t, IsChannel("alice"))
	assert.False(t, IsChannel(""))
}
