package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/22388o/sapio/pkg/argschema"
	"github.com/22388o/sapio/pkg/contract"
	"github.com/22388o/sapio/pkg/template"
)

// caller is the slice of Plugin the kind adapter uses. Narrow so tests
// can stand in for a loaded module.
type caller interface {
	Manifest() Manifest
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}

// createRequest is the environment frame of a "create" call. The plugin
// owns the declaration and runs its own compile pass; the host only
// forwards what a pass needs.
type createRequest struct {
	Network  string                     `json:"network"`
	Funds    template.Sats              `json:"funds"`
	Path     string                     `json:"path,omitempty"`
	Instance json.RawMessage            `json:"instance"`
	Args     map[string]json.RawMessage `json:"args,omitempty"`
}

// Kind adapts a loaded plugin to contract.Compiler, so sandboxed
// contracts register and compile exactly like declared ones.
type Kind struct {
	plugin   caller
	name     string
	schema   *argschema.Schema
	branches []contract.BranchInfo
}

// NewKind probes a loaded plugin for its instance schema ("schema"
// method) and branch listing ("branches" method) and wraps it as a
// contract kind. Both probes are optional: a plugin without them still
// compiles, skipping host-side validation and discovery metadata.
func NewKind(ctx context.Context, p *Plugin) (*Kind, error) {
	return newKind(ctx, p)
}

func newKind(ctx context.Context, p caller) (*Kind, error) {
	m := p.Manifest()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	k := &Kind{plugin: p, name: m.Name}

	if raw, err := p.Call(ctx, "schema", nil); err == nil {
		sch, err := argschema.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: instance schema: %w", m.Name, err)
		}
		k.schema = sch
	}
	if raw, err := p.Call(ctx, "branches", nil); err == nil {
		if err := json.Unmarshal(raw, &k.branches); err != nil {
			return nil, fmt.Errorf("plugin %s: branch listing: %w", m.Name, err)
		}
	}
	return k, nil
}

// Kind returns the manifest name.
func (k *Kind) Kind() string { return k.name }

// Branches lists what the plugin advertised, or nil for plugins without
// a "branches" method.
func (k *Kind) Branches() []contract.BranchInfo { return k.branches }

// InstanceSchema returns the advertised instance schema, or nil.
func (k *Kind) InstanceSchema() *argschema.Schema { return k.schema }

// CompileJSON validates what the plugin advertised, then runs the
// "create" call in the sandbox. The plugin is authoritative for
// everything it did not advertise.
func (k *Kind) CompileJSON(ctx *contract.Context, instance json.RawMessage, args map[string]json.RawMessage) (*contract.Compiled, error) {
	if ctx == nil {
		return nil, &contract.Error{Code: contract.CodeInternal, Reasons: []string{"nil compile context"}}
	}
	if len(instance) == 0 {
		instance = json.RawMessage(`{}`)
	}
	if k.schema != nil {
		if err := k.schema.ValidateJSON(instance); err != nil {
			return nil, &contract.Error{Code: contract.CodeSchema, Err: err}
		}
	}
	if len(k.branches) > 0 {
		byName := make(map[string]contract.BranchInfo, len(k.branches))
		for _, b := range k.branches {
			byName[b.Name] = b
		}
		for name, raw := range args {
			b, ok := byName[name]
			if !ok {
				return nil, &contract.Error{Code: contract.CodeUnknownBranch, Branch: name}
			}
			if len(b.Schema) > 0 {
				sch, err := argschema.Compile(b.Schema)
				if err != nil {
					return nil, &contract.Error{Code: contract.CodeInternal, Branch: name,
						Err: fmt.Errorf("plugin %s: branch schema: %w", k.name, err)}
				}
				if err := sch.ValidateJSON(raw); err != nil {
					return nil, &contract.Error{Code: contract.CodeSchema, Branch: name, Err: err}
				}
			}
		}
	}

	req, err := json.Marshal(createRequest{
		Network:  ctx.Network(),
		Funds:    ctx.Funds(),
		Path:     ctx.Path(),
		Instance: instance,
		Args:     args,
	})
	if err != nil {
		return nil, &contract.Error{Code: contract.CodeInternal, Err: fmt.Errorf("encode create request: %w", err)}
	}

	out, err := k.plugin.Call(ctx.Context(), "create", req)
	if err != nil {
		return nil, &contract.Error{Code: contract.CodeProduction,
			Err: fmt.Errorf("plugin %s: %w", k.name, err)}
	}

	var compiled contract.Compiled
	if err := json.Unmarshal(out, &compiled); err != nil {
		return nil, &contract.Error{Code: contract.CodeInternal,
			Err: fmt.Errorf("plugin %s: malformed compile output: %w", k.name, err)}
	}
	for _, t := range compiled.Templates() {
		if err := t.Validate(); err != nil {
			return nil, &contract.Error{Code: contract.CodeProduction,
				Err: fmt.Errorf("plugin %s: %w", k.name, err)}
		}
	}
	return &compiled, nil
}
