//go:build property
// +build property

// Package contract_test contains property-based tests for the verdict
// merge algebra.
package contract_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/22388o/sapio/pkg/contract"
)

func verdictFromIndex(i int, reason string) contract.Verdict {
	switch i % 6 {
	case 0:
		return contract.NoConstraint()
	case 1:
		return contract.Nullable()
	case 2:
		return contract.Skippable()
	case 3:
		return contract.Required()
	case 4:
		return contract.Never()
	default:
		return contract.FailWith(reason)
	}
}

// kindOf strips Fail reasons so commutativity and associativity can be
// stated over verdict kinds alone.
func kindOf(v contract.Verdict) string {
	s := v.String()
	if i := strings.IndexByte(s, '('); i >= 0 {
		return s[:i]
	}
	return s
}

// TestMergeKindCommutative verifies Merge(a,b) and Merge(b,a) agree on the
// resulting kind. Reason order may differ; the kind may not.
func TestMergeKindCommutative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("merge is commutative on kinds", prop.ForAll(
		func(a, b int, ra, rb string) bool {
			va := verdictFromIndex(a, ra)
			vb := verdictFromIndex(b, rb)
			return kindOf(va.Merge(vb)) == kindOf(vb.Merge(va))
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestMergeKindAssociative verifies grouping does not change the merged
// kind.
func TestMergeKindAssociative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("merge is associative on kinds", prop.ForAll(
		func(a, b, c int, r string) bool {
			va := verdictFromIndex(a, r)
			vb := verdictFromIndex(b, r)
			vc := verdictFromIndex(c, r)
			left := va.Merge(vb).Merge(vc)
			right := va.Merge(vb.Merge(vc))
			return kindOf(left) == kindOf(right)
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestMergeIdentityAndIdempotence verifies NoConstraint is a two-sided
// identity and merging a verdict with itself preserves its kind.
func TestMergeIdentityAndIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("no constraint is a two-sided identity", prop.ForAll(
		func(a int, r string) bool {
			v := verdictFromIndex(a, r)
			left := contract.NoConstraint().Merge(v)
			right := v.Merge(contract.NoConstraint())
			return left.String() == v.String() && right.String() == v.String()
		},
		gen.IntRange(0, 5),
		gen.AlphaString(),
	))

	properties.Property("self-merge preserves kind", prop.ForAll(
		func(a int, r string) bool {
			v := verdictFromIndex(a, r)
			return kindOf(v.Merge(v)) == kindOf(v)
		},
		gen.IntRange(0, 5),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestFoldCollectsFailReasonsInOrder verifies a fold over failing verdicts
// concatenates every reason in argument order.
func TestFoldCollectsFailReasonsInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("fail reasons concatenate in order", prop.ForAll(
		func(reasons []string) bool {
			vs := make([]contract.Verdict, len(reasons))
			for i, r := range reasons {
				vs[i] = contract.FailWith(r)
			}
			merged := contract.MergeVerdicts(vs...)
			if len(reasons) == 0 {
				return !merged.IsFail()
			}
			got := merged.Reasons()
			if len(got) != len(reasons) {
				return false
			}
			for i := range got {
				if got[i] != reasons[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
