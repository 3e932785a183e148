package contract

import "strings"

type verdictKind uint8

const (
	verdictNoConstraint verdictKind = iota
	verdictNullable
	verdictSkippable
	verdictRequired
	verdictNever
	verdictFail
)

// Verdict is a compile-time inclusion decision for a branch. Verdicts from
// independent conditions merge under a fixed precedence:
//
//	Fail > Never > Required > Skippable > Nullable > NoConstraint
//
// with one exception: Never and Required are contradictory, so merging
// them yields a Fail.
type Verdict struct {
	kind    verdictKind
	reasons []string
}

// NoConstraint places no constraint on the branch; it is the identity of
// Merge and the result of merging an empty condition list.
func NoConstraint() Verdict { return Verdict{kind: verdictNoConstraint} }

// Nullable permits the branch to drop out if it cannot compile.
func Nullable() Verdict { return Verdict{kind: verdictNullable} }

// Skippable permits the branch to drop out if it cannot compile, and takes
// precedence over Nullable when both are asserted.
func Skippable() Verdict { return Verdict{kind: verdictSkippable} }

// Required demands the branch compile to at least one template; any
// failure in the branch fails the whole pass.
func Required() Verdict { return Verdict{kind: verdictRequired} }

// Never excludes the branch from this pass entirely. Exclusion is not an
// error.
func Never() Verdict { return Verdict{kind: verdictNever} }

// FailWith rejects the whole compilation, carrying the reasons for the
// rejection.
func FailWith(reasons ...string) Verdict {
	return Verdict{kind: verdictFail, reasons: reasons}
}

// Merge combines two verdicts. Fail absorbs everything and concatenates
// reasons in receiver-then-argument order; Never against Required becomes
// a Fail; otherwise the higher-precedence verdict wins.
func (v Verdict) Merge(o Verdict) Verdict {
	switch {
	case v.kind == verdictFail && o.kind == verdictFail:
		merged := make([]string, 0, len(v.reasons)+len(o.reasons))
		merged = append(merged, v.reasons...)
		merged = append(merged, o.reasons...)
		return Verdict{kind: verdictFail, reasons: merged}
	case v.kind == verdictFail:
		return v
	case o.kind == verdictFail:
		return o
	case v.kind == verdictNever && o.kind == verdictRequired,
		v.kind == verdictRequired && o.kind == verdictNever:
		return FailWith("Never and Required incompatible")
	case v.kind == verdictNever || o.kind == verdictNever:
		return Never()
	case v.kind == verdictRequired || o.kind == verdictRequired:
		return Required()
	case v.kind == verdictSkippable || o.kind == verdictSkippable:
		return Skippable()
	case v.kind == verdictNullable || o.kind == verdictNullable:
		return Nullable()
	default:
		return NoConstraint()
	}
}

// MergeVerdicts folds verdicts left to right, seeded with NoConstraint.
func MergeVerdicts(vs ...Verdict) Verdict {
	acc := NoConstraint()
	for _, v := range vs {
		acc = acc.Merge(v)
	}
	return acc
}

// Reasons returns the failure reasons carried by a Fail verdict.
func (v Verdict) Reasons() []string {
	out := make([]string, len(v.reasons))
	copy(out, v.reasons)
	return out
}

// IsFail reports whether the verdict rejects the compilation.
func (v Verdict) IsFail() bool { return v.kind == verdictFail }

// IsNever reports whether the verdict excludes the branch.
func (v Verdict) IsNever() bool { return v.kind == verdictNever }

// IsRequired reports whether the branch must compile to templates.
func (v Verdict) IsRequired() bool { return v.kind == verdictRequired }

// recoverable reports whether branch-local failures drop the branch
// instead of failing the pass.
func (v Verdict) recoverable() bool {
	return v.kind == verdictSkippable || v.kind == verdictNullable
}

func (v Verdict) String() string {
	switch v.kind {
	case verdictNoConstraint:
		return "no_constraint"
	case verdictNullable:
		return "nullable"
	case verdictSkippable:
		return "skippable"
	case verdictRequired:
		return "required"
	case verdictNever:
		return "never"
	case verdictFail:
		if len(v.reasons) == 0 {
			return "fail"
		}
		return "fail(" + strings.Join(v.reasons, "; ") + ")"
	default:
		return "unknown"
	}
}
