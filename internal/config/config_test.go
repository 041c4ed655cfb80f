package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()

	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/storefront")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/storefront")
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/storefront")
	t.Setenv("ACCESS_TOKEN_SECRET", "same-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "same-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoadRejectsInvertedLifetimes(t *testing.T) {
	validEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "24h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_TOKEN_TTL")
}

func TestIsProduction(t *testing.T) {
	validEnv(t)
	t.Setenv("ENVIRONMENT", "Production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
