package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "c2VjcmV0LXNpZ25pbmcta2V5" // base64 "secret-signing-key"

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(":8080", "postgres://localhost/relay", testSecret, []string{"https://relay.example.com"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "postgres://localhost/relay", cfg.DatabaseDSN)
	assert.Equal(t, []byte("secret-signing-key"), cfg.SigningKey)
	assert.Equal(t, []string{"https://relay.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, defaultMaxConnsPerOrigin, cfg.MaxConnsPerOrigin)
	assert.Equal(t, defaultTurnDelay, cfg.TurnDelay)
}

func TestNewConfig_requiredValues(t *testing.T) {
	_, err := NewConfig("", "postgres://localhost/relay", testSecret, nil)
	assert.EqualError(t, err, "server address cannot be empty")

	_, err = NewConfig(":8080", "", testSecret, nil)
	assert.EqualError(t, err, "database DSN cannot be empty")

	_, err = NewConfig(":8080", "postgres://localhost/relay", "", nil)
	assert.EqualError(t, err, "signing secret cannot be empty")
}

func TestNewConfig_invalidSigningSecret(t *testing.T) {
	_, err := NewConfig(":8080", "postgres://localhost/relay", "not base64!!", nil)
	assert.ErrorContains(t, err, "decode signing secret")
}

func TestNewConfig_envFallbacks(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":9090")
	t.Setenv("RELAY_DSN", "postgres://env/relay")
	t.Setenv("RELAY_SIGNING_KEY", base64.StdEncoding.EncodeToString([]byte("env-key")))
	t.Setenv("RELAY_GENERATION_URL", "http://gen.internal/complete")

	cfg, err := NewConfig("", "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "postgres://env/relay", cfg.DatabaseDSN)
	assert.Equal(t, []byte("env-key"), cfg.SigningKey)
	assert.Equal(t, "http://gen.internal/complete", cfg.GenerationURL)
}

func TestNewConfig_flagsOverrideEnv(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":9090")

	cfg, err := NewConfig(":8080", "postgres://localhost/relay", testSecret, nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
}

func TestNewConfig_tuningOverrides(t *testing.T) {
	t.Setenv("RELAY_MAX_CONNS_PER_ORIGIN", "4")
	t.Setenv("RELAY_TURN_DELAY_MS", "50")

	cfg, err := NewConfig(":8080", "postgres://localhost/relay", testSecret, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConnsPerOrigin)
	assert.Equal(t, 50*time.Millisecond, cfg.TurnDelay)
}

func TestNewConfig_rejectsBadTuningValues(t *testing.T) {
	t.Setenv("RELAY_MAX_CONNS_PER_ORIGIN", "0")
	_, err := NewConfig(":8080", "postgres://localhost/relay", testSecret, nil)
	assert.ErrorContains(t, err, "RELAY_MAX_CONNS_PER_ORIGIN")

	t.Setenv("RELAY_MAX_CONNS_PER_ORIGIN", "")
	t.Setenv("RELAY_TURN_DELAY_MS", "-1")
	_, err = NewConfig(":8080", "postgres://localhost/relay", testSecret, nil)
	assert.ErrorContains(t, err, "RELAY_TURN_DELAY_MS")
}
