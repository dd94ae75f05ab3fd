package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "ledger.receipts", cfg.AMQPQueue)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.Capacity)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.TTL)

	assert.ErrorIs(t, cfg.Validate(), ErrMissingSecret)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LEDGER_HTTP_ADDR", ":9090")
	t.Setenv("LEDGER_JWT_SECRET", "s3cret")
	t.Setenv("LEDGER_GENESIS", "genesis.yaml")
	t.Setenv("LEDGER_LOG_LEVEL", "debug")
	t.Setenv("LEDGER_LOG_FORMAT", "JSON")
	t.Setenv("LEDGER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("LEDGER_RATE_LIMIT_CAPACITY", "0")
	t.Setenv("LEDGER_RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("LEDGER_RATE_LIMIT_TTL", "1m")

	cfg, err := Load(New())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 1, cfg.RateLimit.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.TTL)
	assert.NotNil(t, cfg.Logger())
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("unknown level", func(t *testing.T) {
		t.Setenv("LEDGER_LOG_LEVEL", "loud")
		_, err := Load(New())
		require.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Setenv("LEDGER_LOG_FORMAT", "xml")
		_, err := Load(New())
		require.Error(t, err)
	})

	t.Run("missing genesis", func(t *testing.T) {
		t.Setenv("LEDGER_JWT_SECRET", "x")
		cfg, err := Load(New())
		require.NoError(t, err)
		require.ErrorIs(t, cfg.Validate(), ErrMissingGenesis)
	})
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":7070\"\nrate_limit_enabled: false\n"), 0o600))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadDotEnv(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"),
		[]byte("LEDGER_DOTENV_PROBE=from-file\nLEDGER_DOTENV_KEEP=from-file\n"), 0o600))

	t.Setenv("LEDGER_DOTENV_KEEP", "from-env")
	t.Setenv("LEDGER_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("LEDGER_DOTENV_PROBE"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	path, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env"), path)
	assert.Equal(t, "from-file", os.Getenv("LEDGER_DOTENV_PROBE"))
	assert.Equal(t, "from-env", os.Getenv("LEDGER_DOTENV_KEEP"))
}
