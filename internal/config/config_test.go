package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cryptodash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
client:
  api_url: "http://dash.local:8000"
  debounce: 250ms
  alert_cooldown: 10m
server:
  port: 8080
  grpc_port: 9091
storage:
  data_dir: "/tmp/cryptodash/data"
  sqlite_path: "/tmp/cryptodash/catalog.db"
sources:
  coingecko:
    rate_limit_per_min: 30
logging:
  level: debug
`)
	t.Setenv("CRYPTODASH_API_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://dash.local:8000", cfg.Client.APIURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.Debounce)
	assert.Equal(t, 10*time.Minute, cfg.Client.AlertCooldown)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9091, cfg.Server.GRPCPort)
	assert.Equal(t, "/tmp/cryptodash/catalog.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 30, cfg.Sources.CoinGecko.RateLimitPerMin)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// unset fields keep their defaults
	assert.Equal(t, time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "USDC", cfg.Sources.Binance.Quote)
}

func TestDefault(t *testing.T) {
	t.Setenv("CRYPTODASH_API_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PORT", "")

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Client.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Client.Debounce)
	assert.Equal(t, time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Client.ProbeInterval)
	assert.Equal(t, 5*time.Second, cfg.Client.BannerTTL)
	assert.Equal(t, 5*time.Minute, cfg.Client.AlertCooldown)
	assert.Equal(t, 60*time.Second, cfg.Client.LendingRefresh)
	assert.Equal(t, 50, cfg.Client.HistorySize)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Sources.CoinGecko.RateLimitPerMin)
	assert.Equal(t, 12, cfg.Sources.CoinGecko.MaxPages)
	assert.Equal(t, 1.1, cfg.Sources.Lending.CriticalBelow)
	assert.Equal(t, 1.5, cfg.Sources.Lending.RiskyBelow)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CRYPTODASH_API_URL", "http://10.0.0.5:8000")
	t.Setenv("APCA_API_KEY_ID", "key-id")
	t.Setenv("APCA_API_SECRET_KEY", "secret")
	t.Setenv("BINANCE_API_KEY", "bkey")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8000", cfg.Client.APIURL)
	assert.Equal(t, "key-id", cfg.Sources.Alpaca.APIKey)
	assert.Equal(t, "secret", cfg.Sources.Alpaca.APISecret)
	assert.Equal(t, "bkey", cfg.Sources.Binance.APIKey)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := writeConfig(t, `
logging:
  level: verbose
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
