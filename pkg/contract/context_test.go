package contract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/22388o/sapio/pkg/template"
)

func TestContextDerive(t *testing.T) {
	root := NewContext("regtest", 1000)
	assert.Equal(t, "", root.Path())

	child := root.Derive("vault").Derive("to_cold")
	assert.Equal(t, "vault/to_cold", child.Path())
	assert.Equal(t, "", root.Path(), "derive does not mutate the parent")
	assert.Equal(t, template.Sats(1000), child.Funds())
}

func TestContextWithAmount(t *testing.T) {
	root := NewContext("regtest", 1000)

	half, err := root.WithAmount(500)
	require.NoError(t, err)
	assert.Equal(t, template.Sats(500), half.Funds())
	assert.Equal(t, template.Sats(1000), root.Funds())

	_, err = root.WithAmount(1001)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeFunds, ce.Code)
}

func TestContextTemplateSeedsBudget(t *testing.T) {
	ctx := NewContext("regtest", 250)
	b := ctx.Template()
	assert.Equal(t, template.Sats(250), b.Remaining())
}

func TestContextWithNow(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ctx := NewContext("regtest", 0).WithNow(at)
	assert.Equal(t, at.UTC(), ctx.Now())
	assert.Equal(t, time.UTC, ctx.Now().Location())
}

func TestContextWithContext(t *testing.T) {
	ctx := NewContext("regtest", 0)
	assert.NotNil(t, ctx.Context())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	bound := ctx.WithContext(cancelled)
	assert.Error(t, bound.Context().Err())
	assert.NoError(t, ctx.Context().Err())
}

func TestContextNormalizesPathSegments(t *testing.T) {
	// Combining mark vs precomposed form of "é".
	a := NewContext("regtest", 0).Derive("café")
	b := NewContext("regtest", 0).Derive("café")
	assert.Equal(t, a.Path(), b.Path())
}
