// Package plugin hosts contract plugins compiled to WebAssembly.
//
// Plugins run inside a deny-by-default WASI sandbox: no filesystem, no
// network, no environment, no ambient clocks or randomness. The host
// speaks a small JSON protocol over stdin/stdout; each call instantiates
// a fresh module so plugins cannot carry state between calls.
package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// EngineAPIVersion is the version of the host-side plugin API. Plugin
// manifests declare a semver range in engine_api; plugins whose range
// does not admit this version are refused at load time.
const EngineAPIVersion = "1.0.0"

// Manifest describes a plugin. Plugins return it from the "manifest"
// method before anything else runs.
type Manifest struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	EngineAPI string `json:"engine_api,omitempty"`
}

// Validate checks the manifest fields. EngineAPI may be empty, which
// means the plugin accepts any engine.
func (m Manifest) Validate() error {
	if m.Name == "" {
		return errors.New("plugin manifest: name is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("plugin manifest: invalid version %q: %w", m.Version, err)
	}
	if m.EngineAPI != "" {
		if _, err := semver.NewConstraint(m.EngineAPI); err != nil {
			return fmt.Errorf("plugin manifest: invalid engine_api constraint %q: %w", m.EngineAPI, err)
		}
	}
	return nil
}

// CheckEngineAPI verifies that the plugin's engine_api range admits the
// given engine version. An empty range is treated as compatible.
func CheckEngineAPI(m Manifest, engineVersion string) error {
	if m.EngineAPI == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(m.EngineAPI)
	if err != nil {
		return fmt.Errorf("plugin %s: invalid engine_api constraint %q: %w", m.Name, m.EngineAPI, err)
	}
	engineV, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version %s: %w", engineVersion, err)
	}
	if !constraint.Check(engineV) {
		return fmt.Errorf("plugin %s requires engine %s, but running %s", m.Name, m.EngineAPI, engineVersion)
	}
	return nil
}

// Stable error codes for sandbox limit violations.
const (
	ErrCallTimeout     = "SAPIO/PLUGIN/TIMEOUT"
	ErrMemoryExhausted = "SAPIO/PLUGIN/MEMORY"
	ErrOutputTooLarge  = "SAPIO/PLUGIN/OUTPUT"
)

// LimitError reports that a plugin call hit a sandbox resource limit.
type LimitError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// maxOutputBytes bounds stdout+stderr of a single plugin call.
const maxOutputBytes = 1 << 20

// HostConfig configures sandbox restrictions for all plugins of a Host.
type HostConfig struct {
	// MemoryLimitBytes caps linear memory per module instance.
	// Rounded down to 64KB wasm pages. Defaults to 32MB.
	MemoryLimitBytes int64
	// CallTimeout bounds each plugin call. Defaults to 5s.
	CallTimeout time.Duration
}

// Host owns a wazero runtime and loads plugins into it.
//
// A Host is safe for concurrent use; each call instantiates an
// anonymous module with its own stdio, so concurrent calls do not
// share state.
type Host struct {
	runtime wazero.Runtime
	cfg     HostConfig
	log     *slog.Logger
}

// NewHost creates a plugin host. The runtime enforces the memory limit
// and interrupts calls whose context expires.
func NewHost(ctx context.Context, cfg HostConfig) (*Host, error) {
	if cfg.MemoryLimitBytes <= 0 {
		cfg.MemoryLimitBytes = 32 << 20
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}

	rcfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
	if pages == 0 {
		pages = 1
	}
	rcfg = rcfg.WithMemoryLimitPages(pages)

	r := wazero.NewRuntimeWithConfig(ctx, rcfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("plugin: instantiate wasi: %w", err)
	}

	return &Host{
		runtime: r,
		cfg:     cfg,
		log:     slog.With("component", "plugin"),
	}, nil
}

// Close shuts down the runtime and every module compiled into it.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// Plugin is a loaded, manifest-checked WASM contract plugin.
type Plugin struct {
	host     *Host
	compiled wazero.CompiledModule
	manifest Manifest
}

// Load compiles a WASM binary, asks it for its manifest, and gates it
// against EngineAPIVersion. The returned plugin is ready for Call.
func (h *Host) Load(ctx context.Context, wasm []byte) (*Plugin, error) {
	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("plugin: compile module: %w", err)
	}

	p := &Plugin{host: h, compiled: compiled}
	out, err := p.Call(ctx, "manifest", nil)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("plugin: manifest call: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(out, &m); err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("plugin: invalid manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	if err := CheckEngineAPI(m, EngineAPIVersion); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	p.manifest = m

	h.log.Debug("plugin loaded", "name", m.Name, "version", m.Version)
	return p, nil
}

// Manifest returns the manifest the plugin reported at load time.
func (p *Plugin) Manifest() Manifest {
	return p.manifest
}

// Close releases the compiled module.
func (p *Plugin) Close(ctx context.Context) error {
	return p.compiled.Close(ctx)
}

// callEnvelope is the request frame written to plugin stdin.
type callEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Call invokes one plugin method. The envelope {"method","params"} is
// written to stdin, the module runs to completion, and stdout must be a
// single JSON document. Errors surface as a non-zero exit code with
// detail on stderr.
func (p *Plugin) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	callCtx := ctx
	if p.host.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.host.cfg.CallTimeout)
		defer cancel()
	}

	input, err := json.Marshal(callEnvelope{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("plugin call %q: encode request: %w", method, err)
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")
	// Deny-by-default: no WithFSConfig, no WithEnv, no WithSysWalltime,
	// no WithSysNanotime, no WithRandSource.

	mod, err := p.host.runtime.InstantiateModule(callCtx, p.compiled, modCfg)
	if mod != nil {
		defer func() { _ = mod.Close(context.WithoutCancel(callCtx)) }()
	}
	if err != nil {
		if callCtx.Err() != nil {
			return nil, &LimitError{
				Code:    ErrCallTimeout,
				Message: fmt.Sprintf("call %q exceeded time limit (%s)", method, p.host.cfg.CallTimeout),
			}
		}
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() != 0 {
				return nil, fmt.Errorf("plugin call %q: exit code %d%s", method, exitErr.ExitCode(), stderrTail(&stderr))
			}
			// proc_exit(0) is a normal WASI completion.
		} else if isMemoryError(err) {
			return nil, &LimitError{
				Code:    ErrMemoryExhausted,
				Message: fmt.Sprintf("call %q exceeded memory limit (%d bytes)", method, p.host.cfg.MemoryLimitBytes),
			}
		} else {
			return nil, fmt.Errorf("plugin call %q: %w", method, err)
		}
	}

	if total := stdout.Len() + stderr.Len(); total > maxOutputBytes {
		return nil, &LimitError{
			Code:    ErrOutputTooLarge,
			Message: fmt.Sprintf("call %q output %d bytes exceeds limit %d", method, total, maxOutputBytes),
		}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("plugin call %q produced no output%s", method, stderrTail(&stderr))
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("plugin call %q produced invalid JSON", method)
	}
	return json.RawMessage(out), nil
}

func stderrTail(stderr *bytes.Buffer) string {
	s := strings.TrimSpace(stderr.String())
	if s == "" {
		return ""
	}
	return ": " + s
}

// isMemoryError reports whether err looks like a memory.grow failure
// against the configured page limit.
func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded"))
}
