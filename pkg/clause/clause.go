// Package clause models the unlocking conditions produced by contract guards.
// A Clause is a policy-style predicate tree (keys, hash preimages, timelocks,
// thresholds) that the compiler collects but never interprets; only clause
// constructors and the eventual script backend look inside.
package clause

import (
	"encoding/hex"
	"fmt"

	"github.com/22388o/sapio/pkg/canonical"
)

// Kind discriminates the clause variants.
type Kind string

const (
	// KindKey requires a signature from a named public key.
	KindKey Kind = "key"
	// KindAnd requires every sub-clause to be satisfied.
	KindAnd Kind = "and"
	// KindOr requires at least one sub-clause to be satisfied.
	KindOr Kind = "or"
	// KindThreshold requires K of the sub-clauses to be satisfied.
	KindThreshold Kind = "threshold"
	// KindSha256 requires revealing the preimage of a SHA-256 digest.
	KindSha256 Kind = "sha256"
	// KindAfter requires the chain to have reached an absolute locktime.
	KindAfter Kind = "after"
	// KindOlder requires a relative age (in blocks) since confirmation.
	KindOlder Kind = "older"
	// KindTrivial is always satisfiable.
	KindTrivial Kind = "trivial"
	// KindUnsatisfiable can never be satisfied.
	KindUnsatisfiable Kind = "unsatisfiable"
)

// AbsTimeCutoff separates block-height locktimes from unix-time locktimes,
// per the consensus interpretation of nLockTime.
const AbsTimeCutoff = 500_000_000

// Clause is one node of a policy predicate tree.
type Clause struct {
	Kind Kind `json:"kind"`
	// Key holds a hex-encoded public key for KindKey.
	Key string `json:"key,omitempty"`
	// Hash holds a hex-encoded SHA-256 digest for KindSha256.
	Hash string `json:"hash,omitempty"`
	// Lock holds the absolute locktime (KindAfter) or the relative
	// age in blocks (KindOlder).
	Lock uint32 `json:"lock,omitempty"`
	// K is the satisfaction threshold for KindThreshold.
	K int `json:"k,omitempty"`
	// Subs are the children of AND/OR/threshold nodes, in declared order.
	Subs []Clause `json:"subs,omitempty"`
}

// Key requires a signature from the given hex-encoded public key.
func Key(pubKeyHex string) Clause {
	return Clause{Kind: KindKey, Key: pubKeyHex}
}

// And requires every sub-clause. Trivial operands are dropped; an
// Unsatisfiable operand collapses the conjunction.
func And(subs ...Clause) Clause {
	return Conjoin(subs)
}

// Or requires at least one sub-clause.
func Or(subs ...Clause) Clause {
	return Clause{Kind: KindOr, Subs: subs}
}

// Threshold requires k of the given sub-clauses.
func Threshold(k int, subs ...Clause) Clause {
	return Clause{Kind: KindThreshold, K: k, Subs: subs}
}

// Sha256 requires revealing the preimage of the given hex digest.
func Sha256(digestHex string) Clause {
	return Clause{Kind: KindSha256, Hash: digestHex}
}

// After requires the chain to reach an absolute locktime: a block height
// below AbsTimeCutoff, a unix timestamp at or above it.
func After(lock uint32) Clause {
	return Clause{Kind: KindAfter, Lock: lock}
}

// Older requires the spending input to be at least blocks old.
func Older(blocks uint32) Clause {
	return Clause{Kind: KindOlder, Lock: blocks}
}

// Trivial is the always-satisfiable clause, the identity of conjunction.
func Trivial() Clause {
	return Clause{Kind: KindTrivial}
}

// Unsatisfiable can never be satisfied. Guards return it to veto a branch
// they cannot authorize.
func Unsatisfiable() Clause {
	return Clause{Kind: KindUnsatisfiable}
}

// Conjoin folds a guard's clauses into the branch unlocking condition.
// Trivial operands are dropped, Unsatisfiable short-circuits, a single
// survivor is returned unwrapped, and an empty list conjoins to Trivial.
func Conjoin(subs []Clause) Clause {
	kept := make([]Clause, 0, len(subs))
	for _, c := range subs {
		switch c.Kind {
		case KindTrivial:
			continue
		case KindUnsatisfiable:
			return Unsatisfiable()
		default:
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return Trivial()
	case 1:
		return kept[0]
	default:
		return Clause{Kind: KindAnd, Subs: kept}
	}
}

// IsTrivial reports whether the clause imposes no condition.
func (c Clause) IsTrivial() bool {
	return c.Kind == KindTrivial
}

// Validate checks structural well-formedness of the clause tree.
func (c Clause) Validate() error {
	switch c.Kind {
	case KindKey:
		if _, err := hex.DecodeString(c.Key); err != nil || c.Key == "" {
			return fmt.Errorf("clause: key must be non-empty hex: %q", c.Key)
		}
	case KindSha256:
		raw, err := hex.DecodeString(c.Hash)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("clause: sha256 digest must be 32 hex bytes: %q", c.Hash)
		}
	case KindAnd, KindOr:
		if len(c.Subs) < 2 {
			return fmt.Errorf("clause: %s requires at least 2 sub-clauses, got %d", c.Kind, len(c.Subs))
		}
	case KindThreshold:
		if c.K < 1 || c.K > len(c.Subs) {
			return fmt.Errorf("clause: threshold k=%d out of range for %d sub-clauses", c.K, len(c.Subs))
		}
	case KindAfter, KindOlder:
		if c.Lock == 0 {
			return fmt.Errorf("clause: %s locktime must be non-zero", c.Kind)
		}
	case KindTrivial, KindUnsatisfiable:
		// No payload.
	default:
		return fmt.Errorf("clause: unknown kind %q", c.Kind)
	}
	for i, sub := range c.Subs {
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("clause: sub %d of %s: %w", i, c.Kind, err)
		}
	}
	return nil
}

// CanonicalHash returns the prefixed SHA-256 digest of the JCS form of the
// clause tree. Structurally equal clauses hash identically.
func (c Clause) CanonicalHash() (string, error) {
	return canonical.Hash(c)
}

func (c Clause) String() string {
	switch c.Kind {
	case KindKey:
		return fmt.Sprintf("pk(%s)", shortHex(c.Key))
	case KindSha256:
		return fmt.Sprintf("sha256(%s)", shortHex(c.Hash))
	case KindAfter:
		return fmt.Sprintf("after(%d)", c.Lock)
	case KindOlder:
		return fmt.Sprintf("older(%d)", c.Lock)
	case KindTrivial:
		return "1"
	case KindUnsatisfiable:
		return "0"
	case KindThreshold:
		return fmt.Sprintf("thresh(%d,%s)", c.K, joinSubs(c.Subs))
	case KindAnd, KindOr:
		return fmt.Sprintf("%s(%s)", c.Kind, joinSubs(c.Subs))
	default:
		return string(c.Kind)
	}
}

func joinSubs(subs []Clause) string {
	out := ""
	for i, s := range subs {
		if i > 0 {
			out += ","
		}
		out += s.String()
	}
	return out
}

func shortHex(s string) string {
	if len(s) > 8 {
		return s[:8] + "…"
	}
	return s
}
