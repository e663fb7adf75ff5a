package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "mongo", cfg.TokenStore)
	assert.Equal(t, 5, cfg.TokenCodeLength)
	assert.Equal(t, 5, cfg.TokenMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.TokenWindow)
	assert.Equal(t, time.Hour, cfg.TokenReapInterval)
	assert.Equal(t, []string{"https://webmaker.org/"}, cfg.AudienceWhitelist)
	assert.Equal(t, 10*time.Second, cfg.VerifierTimeout)
	assert.Empty(t, cfg.SMTPAddr)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TOKEN_STORE", "memory")
	t.Setenv("TOKEN_MAX_ATTEMPTS", "3")
	t.Setenv("TOKEN_WINDOW", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.TokenStore)
	assert.Equal(t, 3, cfg.TokenMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.TokenWindow)
}
