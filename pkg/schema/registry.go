// Package schema declares the command definitions an operator can submit
// and resolves their human-readable presentation. The registry replaces
// runtime type lookups with an explicit mapping from a stable command-type
// identifier to its declared metadata, built once at startup.
package schema

import (
	"fmt"
	"sync"
)

// Parameter describes one declared input of a command.
type Parameter struct {
	// ID is the stable camel-case parameter identifier, matching the
	// command body field it is populated from.
	ID string

	// Name is the human-readable parameter name.
	Name string

	Description string
}

// CommandDefinition is the declared metadata for one command type.
type CommandDefinition struct {
	// ID is the stable command-type identifier used to correlate a running
	// command back to its definition.
	ID string

	// Name is the human-readable command name.
	Name string

	Description string

	// NameTemplate renders the per-instance summary. Placeholders in the
	// form {ParameterID} are substituted with the command's displayable
	// property values. When empty the title-cased Name is used.
	NameTemplate string

	// CronSchedule makes the command recurring when non-empty. The value is
	// a standard 5-field cron expression.
	CronSchedule string

	Parameters []Parameter
}

// Recurring reports whether the command is submitted on a schedule.
func (d *CommandDefinition) Recurring() bool { return d.CronSchedule != "" }

// Registry maps command-type identifiers to their definitions. Build it
// once at startup and pass it wherever a type-to-definition lookup is
// needed; definitions cannot be replaced.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*CommandDefinition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*CommandDefinition)}
}

// Register adds a command definition. Registering an ID twice is an error.
func (r *Registry) Register(def CommandDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("command definition requires an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[def.ID]; exists {
		return fmt.Errorf("command type %q already registered", def.ID)
	}
	d := def
	r.byID[def.ID] = &d
	r.order = append(r.order, def.ID)
	return nil
}

// Lookup returns the definition for a command-type identifier.
func (r *Registry) Lookup(id string) (*CommandDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byID[id]
	return def, ok
}

// Definitions returns all registered definitions in registration order.
func (r *Registry) Definitions() []*CommandDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CommandDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
