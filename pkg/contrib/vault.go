package contrib

import (
	"encoding/json"

	"github.com/22388o/sapio/pkg/argschema"
	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/clause"
	"github.com/22388o/sapio/pkg/contract"
	"github.com/22388o/sapio/pkg/oracle"
)

// Vault is a cold-storage contract. Funds rest where only the cold key
// can move them immediately; the hot key's claim must sit through a
// relative timelock, leaving a window to sweep to cold storage if the
// hot key leaks. The recovery key can spend unconditionally.
type Vault struct {
	// HotKey claims funds through the delayed path. Optional: a vault
	// without a hot key is cold-storage only.
	HotKey string `json:"hot_key,omitempty"`
	// ColdKey sweeps funds without delay.
	ColdKey string `json:"cold_key"`
	// RecoveryKey closes the vault outright.
	RecoveryKey string `json:"recovery_key"`
	// DelayBlocks is the relative timelock on the hot path. Zero selects
	// the default of 144 blocks.
	DelayBlocks uint32 `json:"delay_blocks,omitempty"`
}

// DefaultVaultDelay is the hot-path timelock used when a vault does not
// set one: 144 blocks, roughly one day.
const DefaultVaultDelay = 144

func (v Vault) delay() uint32 {
	if v.DelayBlocks == 0 {
		return DefaultVaultDelay
	}
	return v.DelayBlocks
}

var vaultSchema = argschema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"hot_key": {"type": "string", "pattern": "^[0-9a-fA-F]{64,66}$"},
		"cold_key": {"type": "string", "pattern": "^[0-9a-fA-F]{64,66}$"},
		"recovery_key": {"type": "string", "pattern": "^[0-9a-fA-F]{64,66}$"},
		"delay_blocks": {"type": "integer", "minimum": 0, "maximum": 65535}
	},
	"required": ["cold_key", "recovery_key"]
}`))

// NewVaultKind returns the "vault" contract kind.
func NewVaultKind() contract.Compiler {
	return contract.NewKind("vault", vaultSchema, vaultDeclaration())
}

// NewEmulatedVaultKind returns the vault for deployments without native
// covenant support. Every spending branch also requires the emulation
// oracle's attested key for the vault instance, so funds move only
// through templates the oracle has agreed to cosign. The recovery path
// commits to no template and stays key-only.
func NewEmulatedVaultKind(o *oracle.Client) contract.Compiler {
	attested := oracle.KeyGuard(o, func(v Vault, _ *contract.Context) (string, error) {
		return canonical.Hash(v)
	})
	return contract.NewKind("vault-emulated", vaultSchema, vaultDeclaration(attested))
}

// vaultDeclaration builds the vault branches. Guards in cosign are
// conjoined onto every spending branch.
func vaultDeclaration(cosign ...contract.Guard[Vault]) contract.Declaration[Vault, json.RawMessage] {
	hotGuards := append([]contract.Guard[Vault]{
		contract.FreshGuard(func(v Vault, _ *contract.Context) clause.Clause {
			return clause.Older(v.delay())
		}),
		contract.FreshGuard(func(v Vault, _ *contract.Context) clause.Clause {
			return clause.Key(v.HotKey)
		}),
	}, cosign...)
	coldGuards := append([]contract.Guard[Vault]{
		contract.FreshGuard(func(v Vault, _ *contract.Context) clause.Clause {
			return clause.Key(v.ColdKey)
		}),
	}, cosign...)

	return contract.Declaration[Vault, json.RawMessage]{
		Then: []contract.ThenFunc[Vault]{
			{
				Name: "to_hot",
				CompileIf: []contract.CompileIf[Vault]{
					func(v Vault, _ *contract.Context) contract.Verdict {
						if v.HotKey == "" {
							return contract.Never()
						}
						return contract.NoConstraint()
					},
				},
				Guards: hotGuards,
				Produce: func(v Vault, c *contract.Context) contract.TemplateIter {
					return contract.BuildTemplate(c.Template().
						Label("to_hot").
						Sequence(v.delay()).
						AddOutput(c.Funds(), clause.Key(v.HotKey)))
				},
			},
			{
				Name:   "to_cold",
				Guards: coldGuards,
				Produce: func(v Vault, c *contract.Context) contract.TemplateIter {
					return contract.BuildTemplate(c.Template().
						Label("to_cold").
						AddOutput(c.Funds(), clause.Key(v.ColdKey)))
				},
			},
		},
		Finish: []contract.Guard[Vault]{
			contract.FreshGuard(func(v Vault, _ *contract.Context) clause.Clause {
				return clause.Key(v.RecoveryKey)
			}),
		},
	}
}
