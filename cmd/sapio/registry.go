package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/22388o/sapio/pkg/contrib"
	"github.com/22388o/sapio/pkg/plugin"
	"github.com/22388o/sapio/pkg/policy"
	"github.com/22388o/sapio/pkg/session"
)

// buildRegistry assembles the kind registry served by every command: the
// built-in contracts plus any WASM plugins found under pluginDir. The
// returned cleanup closes the plugin host and must be called even on error
// paths once the registry is no longer needed.
func buildRegistry(ctx context.Context, pluginDir string) (*session.Registry, func(), error) {
	cleanup := func() {}

	eng, err := policy.NewEngine()
	if err != nil {
		return nil, cleanup, fmt.Errorf("policy engine: %w", err)
	}

	reg := session.NewRegistry()
	if err := reg.Register(contrib.NewVaultKind()); err != nil {
		return nil, cleanup, err
	}
	if err := reg.Register(contrib.NewNFTKind(eng)); err != nil {
		return nil, cleanup, err
	}

	if pluginDir != "" {
		host, err := plugin.NewHost(ctx, plugin.HostConfig{})
		if err != nil {
			return nil, cleanup, fmt.Errorf("plugin host: %w", err)
		}
		cleanup = func() { _ = host.Close(context.WithoutCancel(ctx)) }
		loadPlugins(ctx, host, pluginDir, reg)
	}

	return reg, cleanup, nil
}

// loadPlugins registers every loadable *.wasm module under dir. A module
// that fails to load or clashes with a registered kind is skipped with a
// warning rather than aborting startup, so one broken plugin cannot take
// the engine down.
func loadPlugins(ctx context.Context, host *plugin.Host, dir string, reg *session.Registry) {
	log := slog.Default().With(slog.String("component", "plugins"))

	paths, err := filepath.Glob(filepath.Join(dir, "*.wasm"))
	if err != nil {
		log.Warn("plugin scan failed", "dir", dir, "error", err)
		return
	}
	for _, path := range paths {
		wasm, err := os.ReadFile(path)
		if err != nil {
			log.Warn("plugin skipped", "path", path, "error", err)
			continue
		}
		p, err := host.Load(ctx, wasm)
		if err != nil {
			log.Warn("plugin skipped", "path", path, "error", err)
			continue
		}
		k, err := plugin.NewKind(ctx, p)
		if err != nil {
			log.Warn("plugin skipped", "path", path, "error", err)
			continue
		}
		if err := reg.Register(k); err != nil {
			log.Warn("plugin skipped", "path", path, "error", err)
			continue
		}
		m := p.Manifest()
		log.Info("plugin loaded", "kind", k.Kind(), "version", m.Version, "path", path)
	}
}
