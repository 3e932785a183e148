package contract

import (
	"encoding/json"
	"fmt"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/clause"
	"github.com/22388o/sapio/pkg/template"
)

// BranchKind labels how a bound branch continues the contract.
type BranchKind string

const (
	// BranchThen is a state transition with pre-committed templates.
	BranchThen BranchKind = "then"
	// BranchContinue is an argument-taking continuation.
	BranchContinue BranchKind = "continue"
	// BranchFinish is a bare unlocking condition.
	BranchFinish BranchKind = "finish"
)

// BoundBranch is one branch of a compiled contract: its unlocking clause
// and, for branches that produced them, the accepted templates.
type BoundBranch struct {
	Name   string        `json:"name"`
	Kind   BranchKind    `json:"kind"`
	Clause clause.Clause `json:"clause"`
	// Templates holds the transactions this branch proposes. Empty for
	// finish branches and for continuations compiled without arguments.
	Templates []*template.Template `json:"templates,omitempty"`
	// Schema is the raw argument schema of a continuation branch.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Compiled is the result of one compile pass over a declaration.
type Compiled struct {
	Network  string        `json:"network"`
	Path     string        `json:"path,omitempty"`
	Funds    template.Sats `json:"funds"`
	Branches []BoundBranch `json:"branches"`
}

// Clause returns the contract's spend condition: the disjunction of the
// branch clauses. A contract with no live branches is unspendable.
func (c *Compiled) Clause() clause.Clause {
	switch len(c.Branches) {
	case 0:
		return clause.Unsatisfiable()
	case 1:
		return c.Branches[0].Clause
	default:
		subs := make([]clause.Clause, len(c.Branches))
		for i, b := range c.Branches {
			subs[i] = b.Clause
		}
		return clause.Or(subs...)
	}
}

// Branch returns the bound branch with the given name.
func (c *Compiled) Branch(name string) (*BoundBranch, bool) {
	for i := range c.Branches {
		if c.Branches[i].Name == name {
			return &c.Branches[i], true
		}
	}
	return nil, false
}

// Templates returns every accepted template across all branches, in
// branch order.
func (c *Compiled) Templates() []*template.Template {
	var out []*template.Template
	for _, b := range c.Branches {
		out = append(out, b.Templates...)
	}
	return out
}

// Hash returns the prefixed SHA-256 digest of the canonical JSON form of
// the compiled contract.
func (c *Compiled) Hash() (string, error) {
	return canonical.Hash(c)
}

// finishName names the i-th bare finish guard.
func finishName(i int) string {
	return fmt.Sprintf("finish#%d", i)
}

// pass holds the per-compilation state, most importantly the cached-guard
// memo. A pass is single-use and confined to one goroutine.
type pass[S any] struct {
	self S
	ctx  *Context
	memo map[uint64]clause.Clause
}

// guardClause conjoins the guards' clauses, memoizing cached guards by
// identity. Fresh guards are re-evaluated on every call.
func (p *pass[S]) guardClause(ctx *Context, guards []Guard[S]) (clause.Clause, error) {
	subs := make([]clause.Clause, 0, len(guards))
	for _, g := range guards {
		if !g.valid() {
			return clause.Clause{}, &Error{Code: CodeInternal, Reasons: []string{"guard missing its function"}}
		}
		if g.cached {
			if cl, ok := p.memo[g.id]; ok {
				subs = append(subs, cl)
				continue
			}
		}
		cl := g.fn(p.self, ctx)
		if g.cached {
			p.memo[g.id] = cl
		}
		subs = append(subs, cl)
	}
	return clause.Conjoin(subs), nil
}

// resolve decides inclusion for one branch and, when produce is non-nil,
// runs its template production under the branch's verdict policy. A nil
// branch with nil error means the branch was excluded or pruned.
func (p *pass[S]) resolve(name string, kind BranchKind, conds []CompileIf[S], guards []Guard[S], produce func(*Context) TemplateIter) (*BoundBranch, error) {
	log := p.ctx.Logger()

	v := evalConditions(p.self, p.ctx, conds)
	if v.IsFail() {
		return nil, &Error{Code: CodeInclusionConflict, Branch: name, Reasons: v.Reasons()}
	}
	if v.IsNever() {
		log.Debug("branch excluded", "branch", name, "verdict", v.String())
		return nil, nil
	}

	bctx := p.ctx.Derive(name)
	cl, err := p.guardClause(bctx, guards)
	if err != nil {
		if ce, ok := AsError(err); ok && ce.Branch == "" {
			ce.Branch = name
		}
		return nil, err
	}

	bound := &BoundBranch{Name: name, Kind: kind, Clause: cl}
	if produce == nil {
		return bound, nil
	}

	tmpls, err := collectTemplates(produce(bctx))
	if err == nil {
		for _, t := range tmpls {
			if verr := t.Validate(); verr != nil {
				err = verr
				break
			}
		}
	}
	if err != nil {
		if v.recoverable() {
			log.Warn("branch dropped", "branch", name, "verdict", v.String(), "error", err)
			return nil, nil
		}
		if _, ok := AsError(err); ok {
			return nil, err
		}
		return nil, &Error{Code: CodeProduction, Branch: name, Err: err}
	}
	if len(tmpls) == 0 {
		if v.IsRequired() {
			return nil, &Error{Code: CodeEmptyRequired, Branch: name}
		}
		log.Debug("branch pruned, no templates", "branch", name, "verdict", v.String())
		return nil, nil
	}
	bound.Templates = tmpls
	return bound, nil
}

// Compile resolves a declaration against a context into a compiled
// contract. args supplies continuation arguments by branch name;
// continuations without arguments are bound clause-only. Branch names
// must be unique across the declaration.
func Compile[S, A any](self S, ctx *Context, decl Declaration[S, A], args map[string]A) (*Compiled, error) {
	if ctx == nil {
		return nil, &Error{Code: CodeInternal, Reasons: []string{"nil compile context"}}
	}
	p := &pass[S]{self: self, ctx: ctx, memo: make(map[uint64]clause.Clause)}
	out := &Compiled{Network: ctx.Network(), Path: ctx.Path(), Funds: ctx.Funds()}

	declared := make(map[string]bool)
	note := func(name string) error {
		if declared[name] {
			return &Error{Code: CodeInternal, Branch: name, Reasons: []string{"duplicate branch name"}}
		}
		declared[name] = true
		return nil
	}

	for _, t := range decl.Then {
		if err := note(t.Name); err != nil {
			return nil, err
		}
		produce := t.Produce
		bound, err := p.resolve(t.Name, BranchThen, t.CompileIf, t.Guards, func(c *Context) TemplateIter {
			if produce == nil {
				return TemplateErr(&Error{Code: CodeInternal, Branch: t.Name, Reasons: []string{"missing producer"}})
			}
			return produce(self, c)
		})
		if err != nil {
			return nil, err
		}
		if bound != nil {
			out.Branches = append(out.Branches, *bound)
		}
	}

	for _, cont := range decl.Continuations {
		if cont == nil {
			return nil, &Error{Code: CodeInternal, Reasons: []string{"nil continuation"}}
		}
		name := cont.BranchName()
		if err := note(name); err != nil {
			return nil, err
		}
		var produce func(*Context) TemplateIter
		if a, ok := args[name]; ok {
			produce = func(c *Context) TemplateIter {
				return cont.Call(self, c, a)
			}
		}
		bound, err := p.resolve(name, BranchContinue, cont.Conditions(), cont.GuardList(), produce)
		if err != nil {
			return nil, err
		}
		if bound != nil {
			if s := cont.ArgSchema(); s != nil {
				bound.Schema = s.Raw()
			}
			out.Branches = append(out.Branches, *bound)
		}
	}

	for i, g := range decl.Finish {
		name := finishName(i)
		if err := note(name); err != nil {
			return nil, err
		}
		bound, err := p.resolve(name, BranchFinish, nil, []Guard[S]{g}, nil)
		if err != nil {
			return nil, err
		}
		if bound != nil {
			out.Branches = append(out.Branches, *bound)
		}
	}

	for name := range args {
		if !declared[name] {
			return nil, &Error{Code: CodeUnknownBranch, Branch: name}
		}
	}

	if len(out.Branches) == 0 {
		ctx.Logger().Warn("contract compiled with no spendable branches", "path", ctx.Path())
	}
	return out, nil
}
