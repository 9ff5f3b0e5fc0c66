package events

import "context"

// Plugin is an event sink. Implementations must be safe for concurrent use;
// the dispatch loop calls Emit serially but health checks run from request
// handlers.
type Plugin interface {
	// Emit delivers one envelope. Errors are logged by the bus and never
	// propagate to producers.
	Emit(ctx context.Context, envelope *Envelope) error

	// Name identifies the plugin in health output and logs.
	Name() string

	// Health reports whether the plugin can currently deliver.
	Health(ctx context.Context) bool
}

// PluginHealth is one plugin's health snapshot.
type PluginHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// Filter decides which event types reach the plugins. The zero value
// allows everything.
type Filter struct {
	allowed map[Type]struct{}
}

// AllowAll passes every event type through.
func AllowAll() Filter {
	return Filter{}
}

// AllowTypes passes only the listed event types through.
func AllowTypes(types ...Type) Filter {
	allowed := make(map[Type]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return Filter{allowed: allowed}
}

// Allows reports whether the event type passes the filter.
func (f Filter) Allows(t Type) bool {
	if f.allowed == nil {
		return true
	}
	_, ok := f.allowed[t]
	return ok
}
