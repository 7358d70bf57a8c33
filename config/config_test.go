package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/threeway-match/config"
)

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	// GIVEN: A config file setting some keys and referencing the environment
	t.Setenv("TEST_THREEWAY_DB", "/var/lib/threeway/match.db")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage:
  database_path: ${TEST_THREEWAY_DB}
matching:
  rules_file: rules.yaml
  auto_match_interval: 30s
`), 0o644))

	// WHEN: Loading it
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: Set keys win, the rest keep defaults
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/threeway/match.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "rules.yaml", cfg.Matching.RulesFile)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)

	interval, err := cfg.Matching.Interval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
}

func TestLoadOrEnv_FallsBackToEnvironment(t *testing.T) {
	t.Setenv("THREEWAY_PORT", "7070")
	t.Setenv("THREEWAY_DB_PATH", ":memory:")
	t.Setenv("THREEWAY_AUTO_MATCH_INTERVAL", "0")
	t.Setenv("THREEWAY_ALLOWED_ORIGINS", "https://ap.example.com,https://admin.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := config.LoadOrEnv(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Storage.DatabasePath)
	assert.Equal(t, []string{"https://ap.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)

	interval, err := cfg.Matching.Interval()
	require.NoError(t, err)
	assert.Zero(t, interval, "0 disables the scheduler")
}

func TestMatchingConfig_InvalidInterval(t *testing.T) {
	_, err := config.MatchingConfig{AutoMatchInterval: "soon"}.Interval()
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
