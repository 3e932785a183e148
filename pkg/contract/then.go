package contract

// ThenFunc is a state-transition branch: when its guards are satisfied the
// contract's funds move along one of the transaction templates Produce
// yields. Then branches take no external arguments; everything they need
// is in the instance and the context.
type ThenFunc[S any] struct {
	// Name labels the branch in results, errors and logs.
	Name string
	// Guards are conjoined into the branch's unlocking clause.
	Guards []Guard[S]
	// CompileIf conditions decide inclusion; their verdicts merge in order.
	CompileIf []CompileIf[S]
	// Produce yields the candidate templates for the transition.
	Produce func(S, *Context) TemplateIter
}
