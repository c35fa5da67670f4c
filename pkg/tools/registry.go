package tools

import (
	"fmt"
	"sort"
)

// Registry holds the tools available to the orchestrator, keyed by name.
// It is populated at startup and read-only afterwards, so it needs no
// locking.
type Registry struct {
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice is a programming
// error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.byName[t.Name] = t
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Tools returns all registered tools in name order, for a stable schema
// list in model requests.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
