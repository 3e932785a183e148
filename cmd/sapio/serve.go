package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/22388o/sapio/pkg/config"
	"github.com/22388o/sapio/pkg/contrib"
	"github.com/22388o/sapio/pkg/observability"
	"github.com/22388o/sapio/pkg/oracle"
	"github.com/22388o/sapio/pkg/receipt"
	"github.com/22388o/sapio/pkg/session"
	"github.com/22388o/sapio/pkg/store"
)

// runServer boots the compile API: store, bundle archive, receipt
// signer, contract registry, then the HTTP listener. It blocks until
// SIGINT or SIGTERM and drains in-flight requests before returning.
func runServer(stderr io.Writer) int {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()})))
	log := slog.Default().With(slog.String("component", "server"))

	ctx := context.Background()

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = Version
	obsCfg.Enabled = cfg.Telemetry
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		return 1
	}

	st, closeDB, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", "driver", cfg.DBDriver, "error", err)
		return 1
	}
	defer closeDB()

	archive, err := store.NewArchiveFromEnv(ctx)
	if err != nil {
		log.Error("archive init failed", "error", err)
		return 1
	}

	signer, err := loadSigner(cfg)
	if err != nil {
		log.Error("signer init failed", "error", err)
		return 1
	}
	if cfg.SignerSeed == "" {
		log.Warn("SAPIO_SIGNER_SEED is not set; receipt key is ephemeral")
	}

	reg, cleanup, err := buildRegistry(ctx, cfg.PluginDir)
	if err != nil {
		log.Error("registry init failed", "error", err)
		return 1
	}
	defer cleanup()

	if cfg.OracleURL != "" {
		var cache oracle.Cache = oracle.NewMemoryCache()
		if cfg.RedisAddr != "" {
			cache = oracle.NewRedisCache(cfg.RedisAddr, "", 0)
		}
		oc, err := oracle.NewClient(oracle.Config{BaseURL: cfg.OracleURL}, cache, slog.Default())
		if err != nil {
			log.Error("oracle init failed", "error", err)
			return 1
		}
		if err := reg.Register(contrib.NewEmulatedVaultKind(oc)); err != nil {
			log.Error("oracle kind registration failed", "error", err)
			return 1
		}
		log.Info("covenant emulation ready", "oracle", cfg.OracleURL, "shared_cache", cfg.RedisAddr != "")
	}

	profiles, err := config.LoadAllProfiles(cfg.ProfilesDir)
	if err != nil {
		log.Error("profile load failed", "dir", cfg.ProfilesDir, "error", err)
		return 1
	}

	manager, err := session.NewManager(session.ManagerConfig{
		Registry: reg,
		Store:    st,
		Archive:  archive,
		Signer:   signer,
		Profiles: profiles,
		Obs:      obs,
	})
	if err != nil {
		log.Error("manager init failed", "error", err)
		return 1
	}

	if cfg.AuthSecret == "" {
		log.Warn("SAPIO_AUTH_SECRET is not set; API auth is disabled")
	}
	srv, err := session.NewServer(session.ServerConfig{
		Manager:    manager,
		AuthSecret: cfg.AuthSecret,
	})
	if err != nil {
		log.Error("server init failed", "error", err)
		return 1
	}

	log.Info("engine ready", "addr", cfg.Addr, "kinds", len(reg.List()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			return 1
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}
	return 0
}

// openStore opens the configured compilation store and returns it with
// a close func for the underlying handle.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.CompilationStore, func(), error) {
	if cfg.DBDriver == "postgres" {
		db, err := store.OpenPostgres(cfg.DBDSN)
		if err != nil {
			return nil, func() {}, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, func() {}, fmt.Errorf("ping: %w", err)
		}
		ps := store.NewPostgresStore(db)
		if err := ps.Init(ctx); err != nil {
			_ = db.Close()
			return nil, func() {}, err
		}
		log.Info("using postgres store")
		return ps, func() { _ = db.Close() }, nil
	}

	if dir := filepath.Dir(cfg.DBDSN); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, func() {}, err
		}
	}
	db, err := store.OpenSQLite(cfg.DBDSN)
	if err != nil {
		return nil, func() {}, err
	}
	ss, err := store.NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, func() {}, err
	}
	log.Info("using sqlite store", "path", cfg.DBDSN)
	return ss, func() { _ = db.Close() }, nil
}

// loadSigner builds the receipt signer from SAPIO_SIGNER_SEED, or a
// fresh ephemeral key when the seed is unset.
func loadSigner(cfg *config.Config) (*receipt.MemorySigner, error) {
	if cfg.SignerSeed == "" {
		return receipt.NewMemorySigner()
	}
	seed, err := hex.DecodeString(cfg.SignerSeed)
	if err != nil {
		return nil, fmt.Errorf("SAPIO_SIGNER_SEED is not hex: %w", err)
	}
	return receipt.NewMemorySignerFromSeed(seed)
}
