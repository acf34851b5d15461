package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://localhost:8081
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Review.CountdownSeconds)
	require.Equal(t, time.Second, cfg.Review.TickInterval)
	require.Equal(t, 100*time.Millisecond, cfg.Review.SettleDelay)
	require.Equal(t, 500*time.Millisecond, cfg.Review.RetryDelay)
	require.Equal(t, 300*time.Millisecond, cfg.Review.JitterMax)
	require.Equal(t, time.Minute, cfg.Review.IdlePollInterval)
	require.Equal(t, time.Second, cfg.TUI.RefreshInterval)
	require.Equal(t, "info", cfg.Log.Level)
	require.NotEmpty(t, cfg.LogFile)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://192.168.26.100:8081
  ws_url: ws://192.168.26.100:8081/ws
auth:
  token: abc123
  user_id: op-7
review:
  countdown_seconds: 10
  tick_interval: 500ms
  settle_delay: 50ms
  retry_delay: 250ms
  jitter_max: 0s
  idle_poll_interval: 30s
log:
  level: debug
tui:
  refresh_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "abc123", cfg.Auth.Token)
	require.Equal(t, "op-7", cfg.Auth.UserID)
	require.Equal(t, 10, cfg.Review.CountdownSeconds)
	require.Equal(t, 500*time.Millisecond, cfg.Review.TickInterval)
	require.Equal(t, time.Duration(0), cfg.Review.JitterMax)
	require.Equal(t, 30*time.Second, cfg.Review.IdlePollInterval)
	require.Equal(t, 250*time.Millisecond, cfg.TUI.RefreshInterval)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
log:
  level: info
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "server.base_url")
}

func TestLoadRejectsBadWSScheme(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://localhost:8081
  ws_url: http://localhost:8081/ws
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "ws_url")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://localhost:8081
review:
  retry_delay: soon
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "retry_delay")
}

func TestLoadRejectsNegativeCountdown(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://localhost:8081
review:
  countdown_seconds: -1
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "countdown_seconds")
}
