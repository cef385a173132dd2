package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Local(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SERVER_PORT", "")

	cfg, err := LoadFrom("local", ".")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mochimo_token", cfg.JWT.CookieName)
	assert.False(t, cfg.JWT.CookieSecure)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, int64(5<<20), cfg.Uploads.MaxBytes)
	assert.Equal(t, 100*time.Millisecond, cfg.DB.SlowThreshold)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "notifications.q", cfg.MQ.Queue)
	assert.Equal(t, int64(3), cfg.Worker.MaxRetries)
}

func TestLoadFrom_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-much-longer-production-secret")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := LoadFrom("local", ".")
	require.NoError(t, err)
	assert.Equal(t, "a-much-longer-production-secret", cfg.JWT.Secret)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "short"
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "sixteen-bytes-ok"
	assert.NoError(t, cfg.Validate())
}
