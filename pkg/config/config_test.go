package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/22388o/sapio/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("SAPIO_ADDR", "")
	t.Setenv("SAPIO_LOG_LEVEL", "")
	t.Setenv("SAPIO_DB_DRIVER", "")
	t.Setenv("SAPIO_DB_DSN", "")
	t.Setenv("SAPIO_PROFILES_DIR", "")
	t.Setenv("SAPIO_AUTH_SECRET", "")
	t.Setenv("SAPIO_TELEMETRY", "")
	t.Setenv("SAPIO_REDIS_ADDR", "")
	t.Setenv("SAPIO_ORACLE_URL", "")
	t.Setenv("SAPIO_PLUGIN_DIR", "")

	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "data/sapio.db", cfg.DBDSN)
	assert.Equal(t, "profiles", cfg.ProfilesDir)
	assert.Empty(t, cfg.AuthSecret)
	assert.False(t, cfg.Telemetry)
	assert.NoError(t, cfg.Validate())
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SAPIO_ADDR", ":9090")
	t.Setenv("SAPIO_LOG_LEVEL", "debug")
	t.Setenv("SAPIO_DB_DRIVER", "postgres")
	t.Setenv("SAPIO_DB_DSN", "postgres://production:5432/sapio")
	t.Setenv("SAPIO_AUTH_SECRET", "hunter2")
	t.Setenv("SAPIO_TELEMETRY", "true")
	t.Setenv("SAPIO_REDIS_ADDR", "localhost:6379")
	t.Setenv("SAPIO_ORACLE_URL", "https://oracle.example.com")
	t.Setenv("SAPIO_PLUGIN_DIR", "plugins")

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://production:5432/sapio", cfg.DBDSN)
	assert.Equal(t, "hunter2", cfg.AuthSecret)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "https://oracle.example.com", cfg.OracleURL)
	assert.Equal(t, "plugins", cfg.PluginDir)
}

func TestLoad_PostgresDefaultDSN(t *testing.T) {
	t.Setenv("SAPIO_DB_DRIVER", "postgres")
	t.Setenv("SAPIO_DB_DSN", "")

	cfg := config.Load()
	assert.Contains(t, cfg.DBDSN, "localhost") // Default is local
	assert.Contains(t, cfg.DBDSN, "sslmode=disable")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := &config.Config{DBDriver: "oracle-rdbms"}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown db driver")
}

func TestLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := &config.Config{LogLevel: in}
		assert.Equal(t, want, cfg.Level(), "level %q", in)
	}
}
