package contrib

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/22388o/sapio/pkg/clause"
	"github.com/22388o/sapio/pkg/contract"
	"github.com/22388o/sapio/pkg/policy"
	"github.com/22388o/sapio/pkg/template"
)

const (
	creatorKey = "02f00dfeedf00dfeedf00dfeedf00dfeedf00dfeedf00dfeedf00dfeedf00dfeed"
	ownerKey   = "02996fe4ed5943b281ca8cac92b2d0761f36cc735820579da355b737fb94b828fa"
	buyerKey   = "03cafebabecafebabecafebabecafebabecafebabecafebabecafebabecafebabe"

	ipfsLocator = "bafkreig7r2tdlwqxzlwnd7aqhkkvzjqv53oyrkfnhksijkvmc6k57uqk6a"
)

func nftInstance(royaltyBps uint32) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"creator": %q, "owner": %q, "locator": %q, "royalty_bps": %d}`,
		creatorKey, ownerKey, ipfsLocator, royaltyBps))
}

func saleArgs(price uint64, saleTime uint32) map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"sell": json.RawMessage(fmt.Sprintf(
			`{"make_sale": {"to": %q, "price": %d, "sale_time": %d}}`,
			buyerKey, price, saleTime)),
	}
}

func TestNFTBranches(t *testing.T) {
	k := NewNFTKind(nil)
	assert.Equal(t, "nft", k.Kind())

	infos := k.Branches()
	require.Len(t, infos, 2)
	assert.Equal(t, "sell", infos[0].Name)
	assert.Equal(t, contract.BranchContinue, infos[0].Kind)
	assert.NotEmpty(t, infos[0].Schema)
	assert.Equal(t, "finish#0", infos[1].Name)
}

func TestNFTHold(t *testing.T) {
	k := NewNFTKind(nil)
	ctx := contract.NewContext("regtest", 100_000)

	got, err := k.CompileJSON(ctx, nftInstance(250), nil)
	require.NoError(t, err)
	require.Len(t, got.Branches, 2)

	sell, ok := got.Branch("sell")
	require.True(t, ok)
	assert.Equal(t, clause.Key(ownerKey), sell.Clause)
	assert.Empty(t, sell.Templates, "no sale arguments binds clause-only")
}

func TestNFTExplicitHoldDropsBranch(t *testing.T) {
	k := NewNFTKind(nil)
	ctx := contract.NewContext("regtest", 100_000)

	args := map[string]json.RawMessage{"sell": json.RawMessage(`{"make_sale": null}`)}
	got, err := k.CompileJSON(ctx, nftInstance(250), args)
	require.NoError(t, err)

	_, ok := got.Branch("sell")
	assert.False(t, ok, "an explicit hold skips the sale")
	require.Len(t, got.Branches, 1)
	assert.Equal(t, "finish#0", got.Branches[0].Name)
}

func TestNFTSale(t *testing.T) {
	k := NewNFTKind(nil)
	ctx := contract.NewContext("regtest", 100_000)

	got, err := k.CompileJSON(ctx, nftInstance(250), saleArgs(50_000, 800_000))
	require.NoError(t, err)

	sell, ok := got.Branch("sell")
	require.True(t, ok)
	require.Len(t, sell.Templates, 1)

	tmpl := sell.Templates[0]
	assert.Equal(t, template.Sats(150_000), tmpl.Total(), "nft value plus the buyer's payment")
	assert.Equal(t, uint32(800_000), tmpl.LockTime)
	require.Len(t, tmpl.Outputs, 3)

	transfer := tmpl.Outputs[0]
	assert.Equal(t, template.Sats(100_000), transfer.Amount)
	assert.Equal(t, clause.And(clause.Key(buyerKey), clause.After(800_000)), *transfer.Clause)
	assert.Equal(t, ipfsLocator, transfer.Metadata["nft.locator"])

	proceeds := tmpl.Outputs[1]
	assert.Equal(t, template.Sats(48_750), proceeds.Amount)
	assert.Equal(t, clause.Key(ownerKey), *proceeds.Clause)

	royalty := tmpl.Outputs[2]
	assert.Equal(t, template.Sats(1_250), royalty.Amount)
	assert.Equal(t, clause.Key(creatorKey), *royalty.Clause)
	assert.Equal(t, "royalty", royalty.Metadata["role"])
}

func TestNFTSaleWithoutTimelock(t *testing.T) {
	k := NewNFTKind(nil)
	ctx := contract.NewContext("regtest", 100_000)

	got, err := k.CompileJSON(ctx, nftInstance(0), saleArgs(50_000, 0))
	require.NoError(t, err)

	sell, ok := got.Branch("sell")
	require.True(t, ok)
	require.Len(t, sell.Templates, 1)

	tmpl := sell.Templates[0]
	assert.Zero(t, tmpl.LockTime)
	require.Len(t, tmpl.Outputs, 2, "zero royalty pays no creator output")
	assert.Equal(t, clause.Key(buyerKey), *tmpl.Outputs[0].Clause)
	assert.Equal(t, template.Sats(50_000), tmpl.Outputs[1].Amount)
}

func TestNFTRoyaltyCapExcludesSale(t *testing.T) {
	eng, err := policy.NewEngine()
	require.NoError(t, err)
	k := NewNFTKind(eng)
	ctx := contract.NewContext("regtest", 100_000)

	// 20% royalty is over the cap; the sell branch disappears even when
	// sale arguments are supplied.
	got, err := k.CompileJSON(ctx, nftInstance(2_000), saleArgs(50_000, 0))
	require.NoError(t, err)

	_, ok := got.Branch("sell")
	assert.False(t, ok)
	require.Len(t, got.Branches, 1)
}

func TestNFTRoyaltyCapAdmitsBoundary(t *testing.T) {
	eng, err := policy.NewEngine()
	require.NoError(t, err)
	k := NewNFTKind(eng)
	ctx := contract.NewContext("regtest", 100_000)

	got, err := k.CompileJSON(ctx, nftInstance(MaxRoyaltyBps), saleArgs(50_000, 0))
	require.NoError(t, err)

	sell, ok := got.Branch("sell")
	require.True(t, ok)
	require.Len(t, sell.Templates, 1)
	royalty := sell.Templates[0].Outputs[2]
	assert.Equal(t, template.Sats(5_000), royalty.Amount, "10% of the price")
}

func TestNFTSchemaRejectsExcessRoyalty(t *testing.T) {
	k := NewNFTKind(nil)
	ctx := contract.NewContext("regtest", 100_000)

	_, err := k.CompileJSON(ctx, nftInstance(20_000), nil)
	ce, ok := contract.AsError(err)
	require.True(t, ok)
	assert.Equal(t, contract.CodeSchema, ce.Code)
}

func TestRoyaltyOf(t *testing.T) {
	cases := []struct {
		price template.Sats
		bps   uint32
		want  template.Sats
	}{
		{50_000, 250, 1_250},
		{50_000, 0, 0},
		{999, 250, 24},
		{1, 9_999, 0},
		{10_000, 1, 1},
		{template.MaxSats, 10_000, template.MaxSats},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, royaltyOf(tc.price, tc.bps),
			"royaltyOf(%d, %d)", tc.price, tc.bps)
	}
}
