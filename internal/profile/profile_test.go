package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileValidateDefaults(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Data: dir}

	require.NoError(t, p.Validate())

	assert.Equal(t, "dev", p.Mode)
	assert.Equal(t, "sqlite", p.Driver)
	assert.Equal(t, filepath.Join(dir, "tiercache_dev.db"), p.DSN)
	assert.Equal(t, 5000, p.Bounded.MaxCount)
	assert.Equal(t, 64, p.Bounded.MaxSizeMB)
	assert.Equal(t, 30*time.Minute, p.Bounded.DefaultTTL)
	assert.Equal(t, 5*time.Minute, p.PollingInterval)
	assert.Equal(t, time.Hour, p.CleanupInterval)
	// Persistent tier stays unbounded unless configured.
	assert.Zero(t, p.Persistent.MaxCount)
	assert.Zero(t, p.Persistent.DefaultTTL)
}

func TestProfileValidatePostgresRequiresDSN(t *testing.T) {
	p := &Profile{Data: t.TempDir(), Driver: "postgres"}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestProfileFromEnv(t *testing.T) {
	t.Setenv("TIERCACHE_MODE", "prod")
	t.Setenv("TIERCACHE_BOUNDED_MAX_COUNT", "42")
	t.Setenv("TIERCACHE_BOUNDED_DEFAULT_TTL", "90s")
	t.Setenv("TIERCACHE_POLLING_ENABLED", "true")
	t.Setenv("TIERCACHE_BASE_LOCATOR", "https://vault.example.com/")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "prod", p.Mode)
	assert.Equal(t, 42, p.Bounded.MaxCount)
	assert.Equal(t, 90*time.Second, p.Bounded.DefaultTTL)
	assert.True(t, p.PollingEnabled)
	assert.Equal(t, "https://vault.example.com/", p.BaseLocator)
}

func TestProfileFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TIERCACHE_BOUNDED_MAX_COUNT", "not-a-number")
	t.Setenv("TIERCACHE_CLEANUP_INTERVAL", "soon")

	p := &Profile{Bounded: TierLimits{MaxCount: 7}, CleanupInterval: time.Minute}
	p.FromEnv()

	assert.Equal(t, 7, p.Bounded.MaxCount)
	assert.Equal(t, time.Minute, p.CleanupInterval)
}
