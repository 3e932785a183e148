package contract

import (
	"github.com/22388o/sapio/pkg/argschema"
)

// Continuation is a finish branch with its concrete argument type erased
// to A. The compile pass and the API layer dispatch over this interface
// without knowing what each branch coerces its arguments into.
type Continuation[S, A any] interface {
	// BranchName labels the branch in results, errors and logs.
	BranchName() string
	// GuardList returns the guards conjoined into the unlocking clause.
	GuardList() []Guard[S]
	// Conditions returns the branch's compile-time inclusion conditions.
	Conditions() []CompileIf[S]
	// ArgSchema describes the accepted argument shape, or nil when the
	// branch documents no schema.
	ArgSchema() *argschema.Schema
	// Call coerces args and produces the branch's templates. Coercion
	// failures surface as an error element of the returned stream.
	Call(self S, ctx *Context, args A) TemplateIter
}

// FinishOrFunc is the standard Continuation implementation: a continuation
// branch generic over the erased argument type A and the concrete argument
// type T it coerces into.
type FinishOrFunc[S, A, T any] struct {
	// Name labels the branch.
	Name string
	// Guards are conjoined into the branch's unlocking clause.
	Guards []Guard[S]
	// CompileIf conditions decide inclusion; their verdicts merge in order.
	CompileIf []CompileIf[S]
	// Schema documents the argument shape for discovery and validation.
	Schema *argschema.Schema
	// Coerce converts erased arguments into T. Returning an error rejects
	// the supplied arguments without running Produce.
	Coerce func(A) (T, error)
	// Produce yields the candidate templates for the continuation.
	Produce func(S, *Context, T) TemplateIter
}

var _ Continuation[struct{}, []byte] = (*FinishOrFunc[struct{}, []byte, int])(nil)

func (f *FinishOrFunc[S, A, T]) BranchName() string { return f.Name }

func (f *FinishOrFunc[S, A, T]) GuardList() []Guard[S] { return f.Guards }

func (f *FinishOrFunc[S, A, T]) Conditions() []CompileIf[S] { return f.CompileIf }

func (f *FinishOrFunc[S, A, T]) ArgSchema() *argschema.Schema { return f.Schema }

func (f *FinishOrFunc[S, A, T]) Call(self S, ctx *Context, args A) TemplateIter {
	if f.Coerce == nil || f.Produce == nil {
		return TemplateErr(&Error{Code: CodeInternal, Branch: f.Name, Reasons: []string{"incomplete continuation"}})
	}
	t, err := f.Coerce(args)
	if err != nil {
		return TemplateErr(&Error{Code: CodeArgCoercion, Branch: f.Name, Err: err})
	}
	return f.Produce(self, ctx, t)
}

// SameArgs is the identity coercion, for continuations whose erased and
// concrete argument types coincide.
func SameArgs[A any](a A) (A, error) { return a, nil }
