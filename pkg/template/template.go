// Package template defines the transaction templates a contract branch can
// produce: the outputs, locktime and sequence constraints of one possible
// on-chain continuation. Templates are descriptive payloads; nothing here
// signs, broadcasts or validates against a ledger.
package template

import (
	"fmt"
	"math"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/clause"
)

// Sats is an amount of on-chain funds in satoshis.
type Sats uint64

// MaxSats marks an unbounded funds budget.
const MaxSats = Sats(math.MaxUint64)

// Output is one payout of a transaction template: an amount bound either to
// a payout clause (a nested contract condition) or to a plain address.
type Output struct {
	Amount Sats `json:"amount"`
	// Clause is the payout condition when the output continues the contract.
	Clause *clause.Clause `json:"clause,omitempty"`
	// Address is a pre-encoded destination when the output leaves the
	// contract. Exactly one of Clause/Address is set.
	Address  string            `json:"address,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Template describes one candidate transaction a branch proposes.
type Template struct {
	Label    string   `json:"label,omitempty"`
	Outputs  []Output `json:"outputs"`
	LockTime uint32   `json:"lock_time,omitempty"`
	// Sequences holds per-input nSequence values, when the branch
	// requires relative timelocks on its inputs.
	Sequences []uint32 `json:"sequences,omitempty"`
	// Fee is the amount set aside for miners: committed value that
	// appears in no output.
	Fee      Sats              `json:"fee,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Total sums the template's committed value, outputs plus fee,
// saturating at MaxSats.
func (t *Template) Total() Sats {
	total := t.Fee
	for _, o := range t.Outputs {
		if o.Amount > MaxSats-total {
			return MaxSats
		}
		total += o.Amount
	}
	return total
}

// Validate checks structural well-formedness: at least one output, each
// output bound to exactly one destination, clause trees valid.
func (t *Template) Validate() error {
	if len(t.Outputs) == 0 {
		return fmt.Errorf("template %q: no outputs", t.Label)
	}
	for i, o := range t.Outputs {
		hasClause := o.Clause != nil
		hasAddr := o.Address != ""
		if hasClause == hasAddr {
			return fmt.Errorf("template %q: output %d must have exactly one of clause or address", t.Label, i)
		}
		if hasClause {
			if err := o.Clause.Validate(); err != nil {
				return fmt.Errorf("template %q: output %d: %w", t.Label, i, err)
			}
		}
	}
	return nil
}

// Hash returns the prefixed SHA-256 digest of the canonical JSON form of
// the template. Equal templates hash identically regardless of how they
// were assembled.
func (t *Template) Hash() (string, error) {
	return canonical.Hash(t)
}

// Builder assembles a Template against a funds budget. Construction errors
// are sticky: the first failure is reported by Done and later calls are
// no-ops, so call sites can chain without per-step checks.
type Builder struct {
	t         Template
	remaining Sats
	err       error
}

// NewBuilder starts a template with the given spendable budget. Use
// MaxSats when the caller does not track funds.
func NewBuilder(budget Sats) *Builder {
	return &Builder{remaining: budget}
}

// Label names the template. The label is NFC-normalized so equal-looking
// labels hash equally.
func (b *Builder) Label(s string) *Builder {
	if b.err != nil {
		return b
	}
	b.t.Label = canonical.NormalizeLabel(s)
	return b
}

// AddFunds credits the budget with externally contributed funds, e.g. a
// counterparty's payment joined into the transaction.
func (b *Builder) AddFunds(amount Sats) *Builder {
	if b.err != nil {
		return b
	}
	if amount > MaxSats-b.remaining {
		b.remaining = MaxSats
		return b
	}
	b.remaining += amount
	return b
}

// AddOutput debits the budget and appends an output paying to a clause.
func (b *Builder) AddOutput(amount Sats, c clause.Clause) *Builder {
	return b.appendOutput(Output{Amount: amount, Clause: &c})
}

// AddFee debits the budget and sets the amount aside for miners.
func (b *Builder) AddFee(amount Sats) *Builder {
	if b.err != nil {
		return b
	}
	if amount > b.remaining {
		b.err = fmt.Errorf("template %q: fee of %d sats exceeds remaining budget of %d sats",
			b.t.Label, amount, b.remaining)
		return b
	}
	b.remaining -= amount
	b.t.Fee += amount
	return b
}

// PayAddress debits the budget and appends an output paying to an address.
func (b *Builder) PayAddress(amount Sats, addr string) *Builder {
	if b.err == nil && addr == "" {
		b.err = fmt.Errorf("template %q: empty address", b.t.Label)
		return b
	}
	return b.appendOutput(Output{Amount: amount, Address: addr})
}

func (b *Builder) appendOutput(o Output) *Builder {
	if b.err != nil {
		return b
	}
	if o.Amount > b.remaining {
		b.err = fmt.Errorf("template %q: output of %d sats exceeds remaining budget of %d sats",
			b.t.Label, o.Amount, b.remaining)
		return b
	}
	b.remaining -= o.Amount
	b.t.Outputs = append(b.t.Outputs, o)
	return b
}

// OutputMetadata annotates the most recently added output.
func (b *Builder) OutputMetadata(key, value string) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.t.Outputs) == 0 {
		b.err = fmt.Errorf("template %q: metadata before any output", b.t.Label)
		return b
	}
	last := &b.t.Outputs[len(b.t.Outputs)-1]
	if last.Metadata == nil {
		last.Metadata = make(map[string]string)
	}
	last.Metadata[key] = value
	return b
}

// LockTime sets the template's absolute locktime.
func (b *Builder) LockTime(lock uint32) *Builder {
	if b.err != nil {
		return b
	}
	b.t.LockTime = lock
	return b
}

// Sequence appends a per-input nSequence value.
func (b *Builder) Sequence(seq uint32) *Builder {
	if b.err != nil {
		return b
	}
	b.t.Sequences = append(b.t.Sequences, seq)
	return b
}

// Metadata annotates the template itself.
func (b *Builder) Metadata(key, value string) *Builder {
	if b.err != nil {
		return b
	}
	if b.t.Metadata == nil {
		b.t.Metadata = make(map[string]string)
	}
	b.t.Metadata[key] = value
	return b
}

// Remaining reports the unspent budget.
func (b *Builder) Remaining() Sats {
	return b.remaining
}

// Done validates and returns the assembled template, or the first
// construction error.
func (b *Builder) Done() (*Template, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := b.t
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
