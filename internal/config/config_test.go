package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("CHANNEL_TOKEN", "tok-from-env")

	path := writeConfig(t, `
project:
  id: p1
  realtime_url: wss://realtime.example.com
  rest_url: https://api.example.com
channel:
  class: room
  id: lobby
auth:
  token: ${CHANNEL_TOKEN}
`)

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)

	require.Equal(t, "p1", cfg.Project.ID)
	require.Equal(t, "tok-from-env", cfg.Auth.Token)

	// Defaults filled in
	require.Equal(t, DefaultPingInterval, cfg.Heartbeat.PingInterval)
	require.Equal(t, DefaultPongTimeout, cfg.Heartbeat.PongTimeout)
	require.Equal(t, DefaultBaseDelay, cfg.Reconnect.BaseDelay)
	require.Equal(t, DefaultMaxDelay, cfg.Reconnect.MaxDelay)
	require.Equal(t, DefaultMaxInflight, cfg.Outbound.MaxInflight)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *ClientConfig {
		cfg := &ClientConfig{}
		cfg.Project.ID = "p1"
		cfg.Project.RealtimeURL = "wss://realtime.example.com"
		cfg.Channel.Class = "room"
		cfg.Channel.ID = "lobby"
		cfg.Auth.Token = "tok"
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing project id", func(t *testing.T) {
		cfg := valid()
		cfg.Project.ID = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("bad realtime scheme", func(t *testing.T) {
		cfg := valid()
		cfg.Project.RealtimeURL = "https://realtime.example.com"
		require.Error(t, cfg.Validate())
	})

	t.Run("missing auth", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.Token = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("pong timeout exceeds ping interval", func(t *testing.T) {
		cfg := valid()
		cfg.Heartbeat.PongTimeout = cfg.Heartbeat.PingInterval + time.Second
		require.Error(t, cfg.Validate())
	})

	t.Run("base delay exceeds max", func(t *testing.T) {
		cfg := valid()
		cfg.Reconnect.BaseDelay = 2 * cfg.Reconnect.MaxDelay
		require.Error(t, cfg.Validate())
	})
}
