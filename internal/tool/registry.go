// Package tool holds the static tool registry. Tools are registered by
// explicit calls at startup; the registry is read-only during normal
// operation and Reload re-runs the registration hook from scratch.
package tool

import (
	"fmt"
	"sync"
)

// Context argument keys the dispatcher injects into every execution.
const (
	ArgWorkspace     = "_workspace"
	ArgHostWorkspace = "_host_workspace"
	ArgScheduler     = "_scheduler"
	ArgChannelName   = "_channel_name"
)

// Schema is the callable-parameter description passed to the provider.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool struct {
	Name        string
	DisplayName string
	Description string
	Parameters  map[string]any
	Execute     func(args map[string]any) (string, error)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	hook func(*Registry)
}

// NewRegistry builds a registry and runs the registration hook once. The
// same hook runs again on Reload.
func NewRegistry(hook func(*Registry)) *Registry {
	r := &Registry{hook: hook}
	r.Reload()
	return r
}

func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %q has no execute function", t.Name)
	}
	if t.DisplayName == "" {
		t.DisplayName = t.Name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Reload drops every registered tool and re-runs the registration hook.
func (r *Registry) Reload() {
	r.mu.Lock()
	r.tools = map[string]Tool{}
	r.order = nil
	r.mu.Unlock()
	if r.hook != nil {
		r.hook(r)
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas returns the registered tools' schemas in registration order.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Schema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}
