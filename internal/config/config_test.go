package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	var cfg Config
	args := []string{"escrowd"}

	err := LoadConfig(&cfg, &args)
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 30*time.Second, cfg.Escrow.LockTimeout)
	require.Equal(t, "0.0.0.0:8080", cfg.Web.Address)
	require.Equal(t, "http://localhost:8080", cfg.Web.PublicUrl)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WEB_ADDRESS", "127.0.0.1:9090")
	t.Setenv("LOG_LEVEL_APP", "warn")
	t.Setenv("ESCROW_LOCK_TIMEOUT", "5s")

	var cfg Config
	args := []string{"escrowd"}

	err := LoadConfig(&cfg, &args)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.Web.Address)
	require.Equal(t, "warn", cfg.Log.LevelApp)
	require.Equal(t, 5*time.Second, cfg.Escrow.LockTimeout)
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	t.Setenv("WEB_ADDRESS", "127.0.0.1:9090")

	var cfg Config
	args := []string{"escrowd", "--web-address=127.0.0.1:7070"}

	err := LoadConfig(&cfg, &args)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7070", cfg.Web.Address)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("LOG_LEVEL_APP", "chatty")

	var cfg Config
	args := []string{"escrowd"}

	err := LoadConfig(&cfg, &args)
	require.ErrorIs(t, err, ErrConfigValidation)
}

func TestGetSanitized(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	sanitized, ok := cfg.GetSanitized().(Config)
	require.True(t, ok)
	require.Equal(t, cfg.Web.Address, sanitized.Web.Address)
}
