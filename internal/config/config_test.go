package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:             "8080",
		Env:              "development",
		FeeBps:           250,
		ProtocolFeeBps:   100,
		RateLimitRPM:     100,
		HTTPWriteTimeout: 30 * time.Second,
		RequestTimeout:   30 * time.Second,
	}
}

func TestValidate_DemoModeNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.DemoMode())
}

func TestValidate_PrivateKeyShape(t *testing.T) {
	cfg := validConfig()
	cfg.RPCURL = "https://sepolia.base.org"

	cfg.PrivateKey = "abc123"
	assert.Error(t, cfg.Validate())

	cfg.PrivateKey = "0x" + repeat64('a')
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.DemoMode())

	cfg.PrivateKey = repeat64('a')
	assert.NoError(t, cfg.Validate())
}

func TestValidate_KeyRequiresRPC(t *testing.T) {
	cfg := validConfig()
	cfg.PrivateKey = repeat64('b')
	cfg.RPCURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_PortBounds(t *testing.T) {
	cfg := validConfig()
	for _, bad := range []string{"0", "65536", "nope", ""} {
		cfg.Port = bad
		assert.Error(t, cfg.Validate(), "port %q", bad)
	}
	cfg.Port = "65535"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_FeeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.FeeBps = 10_001
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ProtocolFeeBps = 10_001
	assert.Error(t, cfg.Validate())
}

func TestValidate_TimeoutOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.HTTPWriteTimeout = 5 * time.Second
	cfg.RequestTimeout = 10 * time.Second
	assert.Error(t, cfg.Validate())
}

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("PORT", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, uint32(DefaultFeeBps), cfg.FeeBps)
	assert.True(t, cfg.DemoMode())
}

func repeat64(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
