package contract

// Declaration lists the branches of a contract kind. Branch order is
// meaningful: the pass resolves Then branches first, then Continuations,
// then Finish guards, each in declaration order, and a failing verdict
// aborts at the first branch that raises it.
type Declaration[S, A any] struct {
	// Then holds the state-transition branches.
	Then []ThenFunc[S]
	// Continuations holds the argument-taking finish branches.
	Continuations []Continuation[S, A]
	// Finish holds bare unlocking conditions: each guard becomes its own
	// branch with no templates, named finish#<index>.
	Finish []Guard[S]
}
