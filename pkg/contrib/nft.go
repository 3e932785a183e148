package contrib

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/22388o/sapio/pkg/argschema"
	"github.com/22388o/sapio/pkg/clause"
	"github.com/22388o/sapio/pkg/contract"
	"github.com/22388o/sapio/pkg/policy"
	"github.com/22388o/sapio/pkg/template"
)

// MintNFT is a minted NFT: the artifact locator plus the keys that share
// in any future sale.
type MintNFT struct {
	// Creator collects a royalty on every sale.
	Creator string `json:"creator"`
	// Owner holds the NFT and must sign to sell it.
	Owner string `json:"owner"`
	// Locator points at the artifact, e.g. an IPFS hash.
	Locator string `json:"locator"`
	// RoyaltyBps is the creator's cut of each sale, in basis points.
	// Always serialized: policy rules reference it by name.
	RoyaltyBps uint32 `json:"royalty_bps"`
}

// SaleTerms prices a transfer to a new owner.
type SaleTerms struct {
	// To is the buyer's key.
	To string `json:"to"`
	// Price in sats, contributed by the buyer.
	Price template.Sats `json:"price"`
	// SaleTime is the earliest block height the sale can confirm at.
	SaleTime uint32 `json:"sale_time,omitempty"`
}

// Sell instructs the sell branch. A nil MakeSale means hold: the branch
// declines to produce a sale this pass.
type Sell struct {
	MakeSale *SaleTerms `json:"make_sale,omitempty"`
}

// MaxRoyaltyBps caps creator royalties at 10% of the sale price.
const MaxRoyaltyBps = 1000

// RoyaltyCapRule excludes the sell branch of NFTs minted with a royalty
// above MaxRoyaltyBps.
func RoyaltyCapRule() policy.Rule {
	return policy.Rule{
		ID:        "royalty-cap",
		Expr:      fmt.Sprintf("self.royalty_bps <= %d", MaxRoyaltyBps),
		WhenFalse: "never",
	}
}

var nftSchema = argschema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"creator": {"type": "string", "pattern": "^[0-9a-fA-F]{64,66}$"},
		"owner": {"type": "string", "pattern": "^[0-9a-fA-F]{64,66}$"},
		"locator": {"type": "string", "minLength": 1},
		"royalty_bps": {"type": "integer", "minimum": 0, "maximum": 10000}
	},
	"required": ["creator", "owner", "locator"]
}`))

var sellSchema = argschema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"make_sale": {
			"type": ["object", "null"],
			"properties": {
				"to": {"type": "string", "pattern": "^[0-9a-fA-F]{64,66}$"},
				"price": {"type": "integer", "minimum": 1},
				"sale_time": {"type": "integer", "minimum": 0}
			},
			"required": ["to", "price"]
		}
	}
}`))

// NewNFTKind returns the "nft" contract kind. When eng is non-nil the
// sell branch is additionally gated by RoyaltyCapRule.
func NewNFTKind(eng *policy.Engine) contract.Compiler {
	// Holding is the default, so argument problems skip the sale rather
	// than fail the compilation.
	conds := []contract.CompileIf[MintNFT]{
		func(MintNFT, *contract.Context) contract.Verdict { return contract.Skippable() },
	}
	if eng != nil {
		conds = append(conds, policy.CompileIf[MintNFT](eng, RoyaltyCapRule()))
	}

	sell := &contract.FinishOrFunc[MintNFT, json.RawMessage, Sell]{
		Name:      "sell",
		CompileIf: conds,
		Guards: []contract.Guard[MintNFT]{
			contract.FreshGuard(func(n MintNFT, _ *contract.Context) clause.Clause {
				return clause.Key(n.Owner)
			}),
		},
		Schema: sellSchema,
		Coerce: func(raw json.RawMessage) (Sell, error) {
			var s Sell
			if err := json.Unmarshal(raw, &s); err != nil {
				return Sell{}, err
			}
			if s.MakeSale == nil {
				return Sell{}, errors.New("holding: no sale requested")
			}
			if s.MakeSale.To == "" {
				return Sell{}, errors.New("sale needs a buyer key")
			}
			return s, nil
		},
		Produce: func(n MintNFT, c *contract.Context, s Sell) contract.TemplateIter {
			terms := s.MakeSale
			royalty := royaltyOf(terms.Price, n.RoyaltyBps)

			transfer := clause.Key(terms.To)
			if terms.SaleTime > 0 {
				transfer = clause.And(transfer, clause.After(terms.SaleTime))
			}

			b := c.Template().
				Label("sale").
				AddFunds(terms.Price).
				AddOutput(c.Funds(), transfer).
				OutputMetadata("nft.locator", n.Locator).
				AddOutput(terms.Price-royalty, clause.Key(n.Owner))
			if terms.SaleTime > 0 {
				b = b.LockTime(terms.SaleTime)
			}
			if royalty > 0 {
				b = b.AddOutput(royalty, clause.Key(n.Creator)).
					OutputMetadata("role", "royalty")
			}
			return contract.BuildTemplate(b)
		},
	}

	return contract.NewKind("nft", nftSchema, contract.Declaration[MintNFT, json.RawMessage]{
		Continuations: []contract.Continuation[MintNFT, json.RawMessage]{sell},
		Finish: []contract.Guard[MintNFT]{
			contract.FreshGuard(func(n MintNFT, _ *contract.Context) clause.Clause {
				return clause.Key(n.Owner)
			}),
		},
	})
}

// royaltyOf splits price at bps basis points, avoiding overflow on large
// prices by dividing before multiplying.
func royaltyOf(price template.Sats, bps uint32) template.Sats {
	p := uint64(price)
	b := uint64(bps)
	return template.Sats(p/10_000*b + p%10_000*b/10_000)
}
