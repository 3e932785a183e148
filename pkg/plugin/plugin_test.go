package plugin

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyModule is the smallest valid wasm binary: magic plus version,
// no sections. It compiles and instantiates but exports nothing.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestManifestValidate(t *testing.T) {
	cases := []struct {
		name     string
		manifest Manifest
		wantErr  string
	}{
		{
			name:     "valid",
			manifest: Manifest{Name: "vault", Version: "0.3.1", EngineAPI: ">=1.0.0 <2.0.0"},
		},
		{
			name:     "engine api optional",
			manifest: Manifest{Name: "vault", Version: "0.3.1"},
		},
		{
			name:     "missing name",
			manifest: Manifest{Version: "0.3.1"},
			wantErr:  "name is required",
		},
		{
			name:     "bad version",
			manifest: Manifest{Name: "vault", Version: "three"},
			wantErr:  "invalid version",
		},
		{
			name:     "bad constraint",
			manifest: Manifest{Name: "vault", Version: "0.3.1", EngineAPI: ">>=1"},
			wantErr:  "invalid engine_api constraint",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.manifest.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestCheckEngineAPI(t *testing.T) {
	m := Manifest{Name: "vault", Version: "0.3.1", EngineAPI: ">=1.0.0 <2.0.0"}

	assert.NoError(t, CheckEngineAPI(m, "1.0.0"))
	assert.NoError(t, CheckEngineAPI(m, "1.9.3"))

	err := CheckEngineAPI(m, "2.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires engine")

	// No declared range admits any engine.
	assert.NoError(t, CheckEngineAPI(Manifest{Name: "vault", Version: "0.3.1"}, "9.9.9"))

	err = CheckEngineAPI(m, "not-a-version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid engine version")
}

func TestEngineAPIVersionAdmitsItself(t *testing.T) {
	m := Manifest{Name: "self", Version: "1.0.0", EngineAPI: EngineAPIVersion}
	assert.NoError(t, CheckEngineAPI(m, EngineAPIVersion))
}

func TestNewHostDefaults(t *testing.T) {
	ctx := context.Background()
	h, err := NewHost(ctx, HostConfig{})
	require.NoError(t, err)
	defer func() { _ = h.Close(ctx) }()

	assert.Equal(t, int64(32<<20), h.cfg.MemoryLimitBytes)
	assert.Equal(t, 5*time.Second, h.cfg.CallTimeout)
}

func TestLoadRejectsInvalidWASM(t *testing.T) {
	ctx := context.Background()
	h, err := NewHost(ctx, HostConfig{})
	require.NoError(t, err)
	defer func() { _ = h.Close(ctx) }()

	_, err = h.Load(ctx, []byte("definitely not wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile module")
}

func TestLoadRequiresManifestOutput(t *testing.T) {
	ctx := context.Background()
	h, err := NewHost(ctx, HostConfig{CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer func() { _ = h.Close(ctx) }()

	// The empty module runs without exporting _start, so nothing is
	// written to stdout and the manifest call must fail cleanly.
	_, err = h.Load(ctx, emptyModule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest")
}

func TestHostClose(t *testing.T) {
	ctx := context.Background()
	h, err := NewHost(ctx, HostConfig{})
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))
}

func TestLimitErrorFormat(t *testing.T) {
	err := &LimitError{Code: ErrCallTimeout, Message: "call \"create\" exceeded time limit (5s)"}
	assert.Equal(t, `SAPIO/PLUGIN/TIMEOUT: call "create" exceeded time limit (5s)`, err.Error())
}

// TestRealPluginRoundTrip exercises a full load and call against an
// actual plugin binary. Build one from a WASI-targeting toolchain and
// point SAPIO_TEST_PLUGIN_WASM at it to run this test.
func TestRealPluginRoundTrip(t *testing.T) {
	path := os.Getenv("SAPIO_TEST_PLUGIN_WASM")
	if path == "" {
		t.Skip("SAPIO_TEST_PLUGIN_WASM not set; skipping wasm integration test")
	}

	wasm, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	h, err := NewHost(ctx, HostConfig{CallTimeout: 10 * time.Second})
	require.NoError(t, err)
	defer func() { _ = h.Close(ctx) }()

	p, err := h.Load(ctx, wasm)
	require.NoError(t, err)
	defer func() { _ = p.Close(ctx) }()

	m := p.Manifest()
	assert.NotEmpty(t, m.Name)
	assert.NotEmpty(t, m.Version)

	out, err := p.Call(ctx, "schema", nil)
	require.NoError(t, err)
	assert.True(t, len(out) > 0)
}
