package contract

// CompileIf is a compile-time inclusion condition: it inspects the
// contract instance and the compile context and returns a Verdict. A
// branch may carry several conditions; their verdicts are merged in
// declaration order, seeded with NoConstraint.
type CompileIf[S any] func(S, *Context) Verdict

// evalConditions merges the verdicts of conds for the given instance and
// context. A nil condition is a declaration bug and fails the merge.
func evalConditions[S any](self S, ctx *Context, conds []CompileIf[S]) Verdict {
	acc := NoConstraint()
	for _, cond := range conds {
		if cond == nil {
			return FailWith("nil compile condition")
		}
		acc = acc.Merge(cond(self, ctx))
	}
	return acc
}
