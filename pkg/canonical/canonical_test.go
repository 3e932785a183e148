package canonical_test

import (
	"testing"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_KeyOrdering(t *testing.T) {
	// Key order in the input must not affect the canonical form.
	a, err := canonical.JCS(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestJCS_StructTags(t *testing.T) {
	type payload struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}
	b, err := canonical.JCS(payload{Zeta: "z", Alpha: 7})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":7,"zeta":"z"}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	b, err := canonical.JCS(map[string]string{"k": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"<&>"}`, string(b))
}

func TestHash_Deterministic(t *testing.T) {
	h1, err := canonical.Hash(map[string]any{"x": 1, "y": []string{"a"}})
	require.NoError(t, err)
	h2, err := canonical.Hash(map[string]any{"y": []string{"a"}, "x": 1})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.True(t, canonical.ValidHash(h1))
}

func TestValidHash(t *testing.T) {
	assert.True(t, canonical.ValidHash(canonical.HashBytes([]byte("x"))))
	assert.False(t, canonical.ValidHash("sha256:zz"))
	assert.False(t, canonical.ValidHash("deadbeef"))
	assert.False(t, canonical.ValidHash("sha256:"))
}

func TestNormalizeLabel(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) composes to U+00E9 under NFC.
	decomposed := "café"
	composed := "café"
	assert.Equal(t, composed, canonical.NormalizeLabel(decomposed))
	assert.Equal(t, "vault", canonical.NormalizeLabel("  vault "))
}
