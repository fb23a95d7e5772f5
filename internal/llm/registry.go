package llm

import (
	"encoding/json"
	"fmt"
)

// ToolFunc is a registered tool implementation. Tool functions must be pure
// with respect to conversation state: they compute validation or extraction
// results, never write to the session or to external targets.
type ToolFunc func(args map[string]any) (any, error)

type registeredTool struct {
	tool Tool
	fn   ToolFunc
}

// Registry is the allow-list of tools available for one turn: a typed table
// mapping tool name to (argument schema, pure function), validated at
// registration time rather than resolved ad hoc per call.
type Registry struct {
	order []string
	tools map[string]registeredTool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]registeredTool{}}
}

func (r *Registry) Register(tool Tool, fn ToolFunc) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("tool %q: nil function", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	if len(tool.Parameters) > 0 && !json.Valid(tool.Parameters) {
		return fmt.Errorf("tool %q: invalid parameter schema", tool.Name)
	}
	if len(tool.Parameters) == 0 {
		tool.Parameters = ObjectSchema(nil)
	}
	r.order = append(r.order, tool.Name)
	r.tools[tool.Name] = registeredTool{tool: tool, fn: fn}
	return nil
}

// MustRegister panics on registration errors. Tool tables are built once at
// startup, so a bad registration is a programming error.
func (r *Registry) MustRegister(tool Tool, fn ToolFunc) *Registry {
	if err := r.Register(tool, fn); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// call executes a registered tool, converting panics into errors so a broken
// tool can never take down a turn.
func (r *Registry) call(name string, args map[string]any) (result any, err error) {
	reg, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("tool %q panicked: %v", name, rec)
		}
	}()
	return reg.fn(args)
}
