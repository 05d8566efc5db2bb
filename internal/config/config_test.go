package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, in := range []string{"standard", "Standard", " STEALTH ", "aggressive"} {
		_, err := ParseMode(in)
		assert.NoError(t, err, "input %q", in)
	}

	_, err := ParseMode("turbo")
	assert.Error(t, err)
	_, err = ParseMode("")
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeStandard, cfg.Mode)
	assert.Equal(t, 10, cfg.Threads)
	assert.Equal(t, time.Second, cfg.Delay())
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 3, cfg.VerifyAttempts)
	assert.InDelta(t, 0.6, cfg.ReproducibilityThreshold, 0.001)
}

func TestValidateRejectsBadValues(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"zero threads", func(c *Config) { c.Threads = 0 }},
		{"negative delay", func(c *Config) { c.DelaySeconds = -1 }},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }},
		{"zero max urls", func(c *Config) { c.MaxURLs = 0 }},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }},
		{"single verify attempt", func(c *Config) { c.VerifyAttempts = 1 }},
		{"threshold above one", func(c *Config) { c.ReproducibilityThreshold = 1.5 }},
		{"threshold zero", func(c *Config) { c.ReproducibilityThreshold = 0 }},
		{"negative confidence", func(c *Config) { c.MinConfidence = -0.1 }},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }},
		{"bad proxy", func(c *Config) { c.Proxy = "not a proxy" }},
		{"bad format", func(c *Config) { c.OutputFormat = "xml" }},
	}

	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsProxy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy = "http://127.0.0.1:8080"
	assert.NoError(t, cfg.Validate())
}
