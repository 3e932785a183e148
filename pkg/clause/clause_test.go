package clause_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/22388o/sapio/pkg/clause"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "02996fe4ed5943b281ca8cac92b2d0761f36cc735820579da355b737fb94b828fa"

func TestConjoin_Simplification(t *testing.T) {
	k := clause.Key(testKey)
	older := clause.Older(144)

	tests := []struct {
		name string
		in   []clause.Clause
		want clause.Clause
	}{
		{"empty conjoins to trivial", nil, clause.Trivial()},
		{"single survivor unwrapped", []clause.Clause{k}, k},
		{"trivial dropped", []clause.Clause{clause.Trivial(), k}, k},
		{"unsatisfiable collapses", []clause.Clause{k, clause.Unsatisfiable(), older}, clause.Unsatisfiable()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, clause.Conjoin(tc.in))
		})
	}

	combined := clause.Conjoin([]clause.Clause{k, older})
	assert.Equal(t, clause.KindAnd, combined.Kind)
	assert.Len(t, combined.Subs, 2)
}

func TestValidate(t *testing.T) {
	valid := []clause.Clause{
		clause.Key(testKey),
		clause.Sha256(strings.Repeat("ab", 32)),
		clause.After(800_000),
		clause.Older(144),
		clause.Trivial(),
		clause.Unsatisfiable(),
		clause.Or(clause.Key(testKey), clause.Older(6)),
		clause.Threshold(2, clause.Key(testKey), clause.Key(testKey), clause.Older(6)),
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), c.String())
	}

	invalid := []clause.Clause{
		clause.Key(""),
		clause.Key("not-hex"),
		clause.Sha256("abcd"),
		clause.After(0),
		clause.Or(clause.Key(testKey)),
		clause.Threshold(4, clause.Key(testKey), clause.Key(testKey)),
		clause.Threshold(0, clause.Key(testKey)),
	}
	for _, c := range invalid {
		assert.Error(t, c.Validate(), c.String())
	}

	// Validation recurses into sub-clauses.
	nested := clause.Or(clause.Key(testKey), clause.Sha256("short"))
	assert.Error(t, nested.Validate())
}

func TestJSONRoundTrip(t *testing.T) {
	c := clause.Or(
		clause.And(clause.Key(testKey), clause.Older(144)),
		clause.Threshold(2, clause.Key(testKey), clause.After(800_000), clause.Sha256(strings.Repeat("cd", 32))),
	)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back clause.Clause
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}

func TestCanonicalHash_StructuralEquality(t *testing.T) {
	a := clause.And(clause.Key(testKey), clause.Older(144))
	b := clause.Conjoin([]clause.Clause{clause.Trivial(), clause.Key(testKey), clause.Older(144)})

	ha, err := a.CanonicalHash()
	require.NoError(t, err)
	hb, err := b.CanonicalHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	hc, err := clause.Key(testKey).CanonicalHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}
