package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "discover"

[detector]
threshold = 0.02
tier_a_interval = "2s"

[rate_limit]
discovery_limit = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "discover", cfg.Mode)
	assert.Equal(t, 0.02, cfg.Detector.Threshold)
	assert.Equal(t, 2*time.Second, cfg.Detector.TierAInterval.Duration)
	assert.Equal(t, 5, cfg.RateLimit.DiscoveryLimit)
	// Untouched fields keep defaults.
	assert.Equal(t, 80, cfg.RateLimit.BookLimit)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ARBWATCH_DETECTOR_THRESHOLD", "0.03")
	t.Setenv("ARBWATCH_MODE", "streamtest")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.03, cfg.Detector.Threshold)
	assert.Equal(t, "streamtest", cfg.Mode)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Detector.Threshold = 0
	cfg.Stream.MaxReconnectAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "threshold must be > 0")
	assert.Contains(t, err.Error(), "max_reconnect_attempts")
}

func TestValidate_RequestTimeoutBound(t *testing.T) {
	cfg := Defaults()
	cfg.RateLimit.RequestTimeout = duration{10 * time.Second}
	cfg.Detector.TierAInterval = duration{5 * time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout must be shorter")
}
