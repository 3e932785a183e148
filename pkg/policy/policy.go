// Package policy gates contract branches with operator-authored CEL rules.
// A rule maps the boolean outcome of an expression to inclusion verdicts,
// so deployments can disable, require or soften branches without touching
// contract code.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/22388o/sapio/pkg/clause"
	"github.com/22388o/sapio/pkg/contract"
)

// Engine compiles and evaluates CEL expressions. Compiled programs are
// cached per expression; the engine is safe for concurrent use.
type Engine struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

// NewEngine returns an engine whose expressions see two variables: "self",
// the contract instance as JSON data, and "ctx", the compile context
// (network, amount, path, now).
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("self", cel.DynType),
		cel.Variable("ctx", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}
	return &Engine{env: env, prgCache: make(map[string]cel.Program)}, nil
}

// EvalBool evaluates expr against input and requires a boolean result.
func (e *Engine) EvalBool(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		// Double check
		if prg, hit = e.prgCache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("policy: compile %q: %w", expr, issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("policy: program %q: %w", expr, err)
			}
			e.prgCache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("policy: eval %q: %w", expr, err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: %q did not evaluate to a boolean", expr)
	}
	return val, nil
}

// Rule binds a CEL expression to inclusion verdicts. WhenTrue and
// WhenFalse name the verdict to return for each outcome; an empty name
// means no constraint. Reason is carried by "fail" verdicts.
type Rule struct {
	ID        string `yaml:"id" json:"id"`
	Expr      string `yaml:"expr" json:"expr"`
	WhenTrue  string `yaml:"when_true" json:"when_true,omitempty"`
	WhenFalse string `yaml:"when_false" json:"when_false,omitempty"`
	Reason    string `yaml:"reason" json:"reason,omitempty"`
}

// Validate checks the rule is well-formed without evaluating it.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("policy: rule missing id")
	}
	if r.Expr == "" {
		return fmt.Errorf("policy: rule %q missing expr", r.ID)
	}
	if _, err := ParseVerdict(r.WhenTrue, r.Reason); err != nil {
		return fmt.Errorf("policy: rule %q when_true: %w", r.ID, err)
	}
	if _, err := ParseVerdict(r.WhenFalse, r.Reason); err != nil {
		return fmt.Errorf("policy: rule %q when_false: %w", r.ID, err)
	}
	return nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// RulesFromYAML parses and validates a rule document of the form
//
//	rules:
//	  - id: royalty-cap
//	    expr: self.royalty_bps <= 1000
//	    when_false: never
func RulesFromYAML(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("policy: parse rules: %w", err)
	}
	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Rules, nil
}

// LoadRules reads a YAML rule file from disk.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules %s: %w", path, err)
	}
	return RulesFromYAML(data)
}

// ParseVerdict maps a rule verdict name to a contract verdict. The empty
// name parses to NoConstraint so rule authors can leave one side unset.
func ParseVerdict(name, failReason string) (contract.Verdict, error) {
	switch name {
	case "", "no_constraint":
		return contract.NoConstraint(), nil
	case "nullable":
		return contract.Nullable(), nil
	case "skippable":
		return contract.Skippable(), nil
	case "required":
		return contract.Required(), nil
	case "never":
		return contract.Never(), nil
	case "fail":
		if failReason == "" {
			failReason = "rejected by policy"
		}
		return contract.FailWith(failReason), nil
	default:
		return contract.Verdict{}, fmt.Errorf("unknown verdict %q", name)
	}
}

// activation builds the CEL input from an instance and a compile context.
// The instance goes through a JSON round trip so expressions see plain
// maps and lists regardless of the Go type.
func activation(self any, ctx *contract.Context) (map[string]any, error) {
	raw, err := json.Marshal(self)
	if err != nil {
		return nil, fmt.Errorf("encode instance: %w", err)
	}
	var selfVal any
	if err := json.Unmarshal(raw, &selfVal); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return map[string]any{
		"self": selfVal,
		"ctx": map[string]any{
			"network": ctx.Network(),
			"amount":  int64(ctx.Funds()),
			"path":    ctx.Path(),
			"now":     ctx.Now().Unix(),
		},
	}, nil
}

// CompileIf adapts a rule to a branch inclusion condition. Evaluation
// errors fail the compilation: a rule that cannot be evaluated must not
// silently admit the branch.
func CompileIf[S any](eng *Engine, rule Rule) contract.CompileIf[S] {
	return func(self S, ctx *contract.Context) contract.Verdict {
		input, err := activation(self, ctx)
		if err != nil {
			return contract.FailWith(fmt.Sprintf("rule %s: %v", rule.ID, err))
		}
		ok, err := eng.EvalBool(rule.Expr, input)
		if err != nil {
			return contract.FailWith(fmt.Sprintf("rule %s: %v", rule.ID, err))
		}
		name := rule.WhenFalse
		if ok {
			name = rule.WhenTrue
		}
		v, err := ParseVerdict(name, rule.Reason)
		if err != nil {
			return contract.FailWith(fmt.Sprintf("rule %s: %v", rule.ID, err))
		}
		return v
	}
}

// Guard returns a fresh guard gated by a CEL predicate: when expr holds,
// the clause from mk applies; otherwise the branch is vetoed with an
// unsatisfiable clause. Evaluation errors veto as well, failing closed.
func Guard[S any](eng *Engine, expr string, mk func(S, *contract.Context) clause.Clause) contract.Guard[S] {
	return contract.FreshGuard(func(self S, ctx *contract.Context) clause.Clause {
		input, err := activation(self, ctx)
		if err != nil {
			ctx.Logger().Warn("policy guard input rejected", "expr", expr, "error", err)
			return clause.Unsatisfiable()
		}
		ok, err := eng.EvalBool(expr, input)
		if err != nil {
			ctx.Logger().Warn("policy guard evaluation failed", "expr", expr, "error", err)
			return clause.Unsatisfiable()
		}
		if !ok {
			return clause.Unsatisfiable()
		}
		return mk(self, ctx)
	})
}
