package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":3000", cfg.Relay.Address)
	require.Len(t, cfg.WebRTC.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.ICEServers[0].URLs)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "receiver", cfg.Agent.Role)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Relay.Address)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
relay:
  address: ":8443"
  ping_interval: 15s
redis:
  enabled: true
  address: "redis:6379"
  pool_size: 5
agent:
  role: sender
  room: demo
  media_file: sample.ivf
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8443", cfg.Relay.Address)
	assert.Equal(t, 15*time.Second, cfg.Relay.PingInterval)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, "sender", cfg.Agent.Role)
	assert.Equal(t, "demo", cfg.Agent.Room)
	// Untouched sections keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Relay.PongTimeout)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  address: \"\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"empty address":         func(c *Config) { c.Relay.Address = "" },
		"zero ping":             func(c *Config) { c.Relay.PingInterval = 0 },
		"tls cert without key":  func(c *Config) { c.Relay.TLSCertFile = "cert.pem" },
		"redis without address": func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" },
		"auth without secret":   func(c *Config) { c.Auth.Enabled = true },
		"bad sample rate":       func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 2 },
		"bad agent role":        func(c *Config) { c.Agent.Role = "spectator" },
		"rate limit zero rps":   func(c *Config) { c.RateLimiting.Enabled = true; c.RateLimiting.HTTP.RequestsPerSecond = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STREAMCAST_RELAY_ADDRESS", ":9000")
	t.Setenv("STREAMCAST_LOG_LEVEL", "debug")
	t.Setenv("STREAMCAST_RELAY_URL", "ws://relay:9000/ws")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Relay.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "ws://relay:9000/ws", cfg.Agent.RelayURL)
}
