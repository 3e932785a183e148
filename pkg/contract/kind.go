package contract

import (
	"encoding/json"
	"fmt"

	"github.com/22388o/sapio/pkg/argschema"
)

// BranchInfo describes one declared branch for discovery, before any
// compile pass runs.
type BranchInfo struct {
	Name   string          `json:"name"`
	Kind   BranchKind      `json:"kind"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Compiler is a contract kind with its state and argument types erased to
// JSON. Registries and transports dispatch over this interface; typed
// declarations are wrapped with NewKind.
type Compiler interface {
	// Kind returns the kind's registered name.
	Kind() string
	// Branches lists the declared branches.
	Branches() []BranchInfo
	// InstanceSchema describes the instance document, or nil.
	InstanceSchema() *argschema.Schema
	// CompileJSON validates instance and args, decodes the instance, and
	// runs a compile pass.
	CompileJSON(ctx *Context, instance json.RawMessage, args map[string]json.RawMessage) (*Compiled, error)
}

type kind[S any] struct {
	name   string
	schema *argschema.Schema
	decl   Declaration[S, json.RawMessage]
}

// NewKind wraps a typed declaration as a dynamically dispatchable contract
// kind named name. instanceSchema, when non-nil, is enforced on every
// instance document before decoding into S.
func NewKind[S any](name string, instanceSchema *argschema.Schema, decl Declaration[S, json.RawMessage]) Compiler {
	return &kind[S]{name: name, schema: instanceSchema, decl: decl}
}

func (k *kind[S]) Kind() string { return k.name }

func (k *kind[S]) InstanceSchema() *argschema.Schema { return k.schema }

func (k *kind[S]) Branches() []BranchInfo {
	out := make([]BranchInfo, 0, len(k.decl.Then)+len(k.decl.Continuations)+len(k.decl.Finish))
	for _, t := range k.decl.Then {
		out = append(out, BranchInfo{Name: t.Name, Kind: BranchThen})
	}
	for _, c := range k.decl.Continuations {
		info := BranchInfo{Name: c.BranchName(), Kind: BranchContinue}
		if s := c.ArgSchema(); s != nil {
			info.Schema = s.Raw()
		}
		out = append(out, info)
	}
	for i := range k.decl.Finish {
		out = append(out, BranchInfo{Name: finishName(i), Kind: BranchFinish})
	}
	return out
}

func (k *kind[S]) CompileJSON(ctx *Context, instance json.RawMessage, args map[string]json.RawMessage) (*Compiled, error) {
	if k.schema != nil {
		if err := k.schema.ValidateJSON(instance); err != nil {
			return nil, &Error{Code: CodeSchema, Err: err}
		}
	}
	var self S
	if err := json.Unmarshal(instance, &self); err != nil {
		return nil, &Error{Code: CodeSchema, Err: fmt.Errorf("decode instance: %w", err)}
	}

	// Argument schemas are enforced here, at the erased boundary, so the
	// typed pass never sees raw JSON it has to re-validate.
	byName := make(map[string]Continuation[S, json.RawMessage], len(k.decl.Continuations))
	for _, c := range k.decl.Continuations {
		if c != nil {
			byName[c.BranchName()] = c
		}
	}
	for name, raw := range args {
		c, ok := byName[name]
		if !ok {
			return nil, &Error{Code: CodeUnknownBranch, Branch: name}
		}
		if s := c.ArgSchema(); s != nil {
			if err := s.ValidateJSON(raw); err != nil {
				return nil, &Error{Code: CodeSchema, Branch: name, Err: err}
			}
		}
	}

	return Compile(self, ctx, k.decl, args)
}
