package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WIESIO_SEGMENT_URL",
		"WIESIO_SEGMENT_TIMEOUT",
		"WIESIO_SERVER_URL",
		"WIESIO_RATE_LIMIT",
		"WIESIO_RATE_BURST",
	} {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnv(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "http://localhost:8000", p.SegmentURL)
	assert.Equal(t, 120*time.Second, p.SegmentTimeout)
	assert.Equal(t, "http://localhost:8081", p.ServerURL)
	assert.Equal(t, float64(20), p.RateLimit)
	assert.Equal(t, 40, p.RateBurst)
}

func TestProfileFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WIESIO_SEGMENT_URL", "http://segment:9000/")
	t.Setenv("WIESIO_SEGMENT_TIMEOUT", "5s")
	t.Setenv("WIESIO_SERVER_URL", "http://directory:8081")
	t.Setenv("WIESIO_RATE_LIMIT", "2.5")
	t.Setenv("WIESIO_RATE_BURST", "3")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "http://segment:9000", p.SegmentURL)
	assert.Equal(t, 5*time.Second, p.SegmentTimeout)
	assert.Equal(t, "http://directory:8081", p.ServerURL)
	assert.Equal(t, 2.5, p.RateLimit)
	assert.Equal(t, 3, p.RateBurst)
}

func TestProfileFromEnvInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("WIESIO_SEGMENT_TIMEOUT", "soon")
	t.Setenv("WIESIO_RATE_LIMIT", "-1")
	t.Setenv("WIESIO_RATE_BURST", "many")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, 120*time.Second, p.SegmentTimeout)
	assert.Equal(t, float64(20), p.RateLimit)
	assert.Equal(t, 40, p.RateBurst)
}

func TestProfileValidate(t *testing.T) {
	t.Run("unknown mode falls back to demo with default dsn", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "staging", Data: dir}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, filepath.Join(dir, "wiesio_demo.db"), p.DSN)
		assert.True(t, p.IsDev())
	})

	t.Run("explicit dsn is kept", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "prod", Data: dir, Driver: "sqlite", DSN: "file:custom.db"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "file:custom.db", p.DSN)
		assert.False(t, p.IsDev())
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
		require.Error(t, p.Validate())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
		require.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: filepath.Join(t.TempDir(), "missing")}
		require.Error(t, p.Validate())
	})
}
