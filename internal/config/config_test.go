package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/cluster"
)

func writeConfig(t *testing.T, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cluster.ModeCount, cfg.Search.Mode)
	assert.Equal(t, 1, cfg.Pipeline.NotificationBuffer)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce.Duration())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
search:
  mode: radius
  neighborhood_radius: 42.5
  max_depth: 3
verify:
  rate_limit: 5
  categories: [AND, OR]
logging:
  level: debug
  format: json
watch:
  debounce: 750ms
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cluster.ModeRadius, cfg.Search.Mode)
	assert.InDelta(t, 42.5, cfg.Search.NeighborhoodRadius, 1e-9)
	assert.Equal(t, 3, cfg.Search.MaxDepth)
	// Untouched keys keep their defaults.
	assert.Equal(t, cluster.DefaultSearchConfig().Workers, cfg.Search.Workers)
	assert.Equal(t, cluster.DefaultNeighborhoodCount, cfg.Search.NeighborhoodCount)

	assert.InDelta(t, 5.0, cfg.Verify.RateLimit, 1e-9)
	assert.Equal(t, []string{"AND", "OR"}, cfg.Verify.Categories)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 750*time.Millisecond, cfg.Watch.Debounce.Duration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "search:\n  neighborhood_count: 4\n", 0600)
	t.Setenv("SKETCHD_SEARCH_NEIGHBORHOOD_COUNT", "9")
	t.Setenv("SKETCHD_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Search.NeighborhoodCount)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeConfig(t, "logging:\n  level: info\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_AcceptsReadOnly(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  notification_buffer: 4\n", 0400)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.NotificationBuffer)
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	big := make([]byte, maxConfigFileSize+10)
	for i := range big {
		big[i] = '#'
	}
	path := writeConfig(t, string(big), 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_RejectsDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "search:\n  workers: 0\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, cluster.ErrInvalidOptions)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "watch:\n  debounce: soon\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Search.Mode = "nearest" }},
		{"negative depth", func(c *Config) { c.Search.MaxDepth = -1 }},
		{"zero buffer", func(c *Config) { c.Pipeline.NotificationBuffer = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"negative rate", func(c *Config) { c.Verify.RateLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "search.neighborhood_count", envKey("SKETCHD_SEARCH_NEIGHBORHOOD_COUNT"))
	assert.Equal(t, "verify.rate_limit", envKey("SKETCHD_VERIFY_RATE_LIMIT"))
	assert.Equal(t, "debug", envKey("SKETCHD_DEBUG"))
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
}
