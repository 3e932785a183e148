package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/22388o/sapio/pkg/argschema"
	"github.com/22388o/sapio/pkg/clause"
)

func testKind(t *testing.T) Compiler {
	t.Helper()
	instanceSchema := argschema.MustCompile([]byte(`{
		"type": "object",
		"properties": {"owner": {"type": "string", "minLength": 1}},
		"required": ["owner"]
	}`))
	argSchema := argschema.MustCompile([]byte(`{
		"type": "object",
		"properties": {
			"price": {"type": "integer", "minimum": 1},
			"buyer": {"type": "string", "minLength": 1}
		},
		"required": ["price", "buyer"]
	}`))

	sell := saleContinuation()
	sell.(*FinishOrFunc[escrow, json.RawMessage, saleArgs]).Schema = argSchema

	return NewKind("escrow", instanceSchema, Declaration[escrow, json.RawMessage]{
		Then: []ThenFunc[escrow]{{
			Name:    "sweep",
			Guards:  []Guard[escrow]{FreshGuard(func(e escrow, _ *Context) clause.Clause { return clause.Key(e.Owner) })},
			Produce: payOwner(1000),
		}},
		Continuations: []Continuation[escrow, json.RawMessage]{sell},
		Finish: []Guard[escrow]{
			FreshGuard(func(e escrow, _ *Context) clause.Clause { return clause.Key(e.Owner) }),
		},
	})
}

func TestKindBranches(t *testing.T) {
	k := testKind(t)
	assert.Equal(t, "escrow", k.Kind())
	require.NotNil(t, k.InstanceSchema())

	infos := k.Branches()
	require.Len(t, infos, 3)
	assert.Equal(t, BranchInfo{Name: "sweep", Kind: BranchThen}, infos[0])
	assert.Equal(t, "sell", infos[1].Name)
	assert.Equal(t, BranchContinue, infos[1].Kind)
	assert.NotEmpty(t, infos[1].Schema)
	assert.Equal(t, "finish#0", infos[2].Name)
	assert.Equal(t, BranchFinish, infos[2].Kind)
}

func TestKindCompileJSON(t *testing.T) {
	k := testKind(t)
	ctx := testCtx()

	got, err := k.CompileJSON(ctx, json.RawMessage(`{"owner": "03aa"}`), map[string]json.RawMessage{
		"sell": json.RawMessage(`{"price": 50000, "buyer": "02bb"}`),
	})
	require.NoError(t, err)
	require.Len(t, got.Branches, 3)

	sell, ok := got.Branch("sell")
	require.True(t, ok)
	assert.NotEmpty(t, sell.Templates)
	assert.NotEmpty(t, sell.Schema)
}

func TestKindRejectsBadInstance(t *testing.T) {
	k := testKind(t)

	_, err := k.CompileJSON(testCtx(), json.RawMessage(`{"owner": ""}`), nil)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeSchema, ce.Code)

	_, err = k.CompileJSON(testCtx(), json.RawMessage(`{`), nil)
	_, ok = AsError(err)
	assert.True(t, ok)
}

func TestKindRejectsBadArguments(t *testing.T) {
	k := testKind(t)
	instance := json.RawMessage(`{"owner": "03aa"}`)

	_, err := k.CompileJSON(testCtx(), instance, map[string]json.RawMessage{
		"sell": json.RawMessage(`{"price": 0, "buyer": "02bb"}`),
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeSchema, ce.Code)
	assert.Equal(t, "sell", ce.Branch)

	_, err = k.CompileJSON(testCtx(), instance, map[string]json.RawMessage{
		"refund": json.RawMessage(`{}`),
	})
	ce, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeUnknownBranch, ce.Code)
}

func TestKindCompileWithoutArgs(t *testing.T) {
	k := testKind(t)

	got, err := k.CompileJSON(testCtx(), json.RawMessage(`{"owner": "03aa"}`), nil)
	require.NoError(t, err)

	sell, ok := got.Branch("sell")
	require.True(t, ok)
	assert.Empty(t, sell.Templates, "continuation without args binds clause-only")
}
