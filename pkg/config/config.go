// Package config loads engine configuration from the environment and
// per-network chain profiles from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config holds engine configuration.
type Config struct {
	// Addr is the listen address of the HTTP API.
	Addr string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// DBDriver selects the compilation store backend: sqlite or postgres.
	DBDriver string
	// DBDSN is the driver-specific data source name.
	DBDSN string
	// ProfilesDir holds profile_<network>.yaml chain profiles.
	ProfilesDir string
	// AuthSecret signs API bearer tokens. Empty disables auth.
	AuthSecret string
	// SignerSeed is a hex-encoded 32-byte seed for the engine receipt
	// key. Empty generates an ephemeral key at startup.
	SignerSeed string
	// Telemetry enables the OTLP exporters.
	Telemetry bool
	// OTLPEndpoint is the collector address when telemetry is on.
	OTLPEndpoint string
	// RedisAddr backs the oracle signer cache. Empty uses memory.
	RedisAddr string
	// OracleURL is the attestation oracle base URL. Empty disables it.
	OracleURL string
	// PluginDir is scanned for *.wasm contract plugins at startup.
	// Empty disables plugin loading.
	PluginDir string
}

// Load reads configuration from SAPIO_* environment variables,
// applying defaults for anything unset.
func Load() *Config {
	cfg := &Config{
		Addr:         envOr("SAPIO_ADDR", ":8080"),
		LogLevel:     envOr("SAPIO_LOG_LEVEL", "info"),
		DBDriver:     envOr("SAPIO_DB_DRIVER", "sqlite"),
		DBDSN:        os.Getenv("SAPIO_DB_DSN"),
		ProfilesDir:  envOr("SAPIO_PROFILES_DIR", "profiles"),
		AuthSecret:   os.Getenv("SAPIO_AUTH_SECRET"),
		SignerSeed:   os.Getenv("SAPIO_SIGNER_SEED"),
		Telemetry:    os.Getenv("SAPIO_TELEMETRY") == "true",
		OTLPEndpoint: envOr("SAPIO_OTLP_ENDPOINT", "localhost:4317"),
		RedisAddr:    os.Getenv("SAPIO_REDIS_ADDR"),
		OracleURL:    os.Getenv("SAPIO_ORACLE_URL"),
		PluginDir:    os.Getenv("SAPIO_PLUGIN_DIR"),
	}

	if cfg.DBDSN == "" {
		switch cfg.DBDriver {
		case "postgres":
			// Default to local generic postgres
			cfg.DBDSN = "postgres://sapio@localhost:5432/sapio?sslmode=disable"
		default:
			cfg.DBDSN = "data/sapio.db"
		}
	}

	return cfg
}

// Validate checks fields that cannot be defaulted away.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown db driver %q (want sqlite or postgres)", c.DBDriver)
	}
	return nil
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
