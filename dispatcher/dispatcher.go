// Package dispatcher selects and constructs a backend.Backend by name,
// falling back through a preference order when no name is given, ending at
// the no-op dummy backend.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orchestra-audio/streamengine/backend"
)

// Factory constructs a fresh, unopened backend instance. A factory may
// return an error if the native subsystem it wraps is unavailable in the
// current process (no JACK server running, wrong OS, missing library).
type Factory func() (backend.Backend, error)

// Registry maps backend names to factories and knows the preference order
// to try when the caller doesn't ask for a specific one by name.
type Registry struct {
	factories map[string]Factory
	order     []string
	logger    *slog.Logger
}

// NewRegistry returns an empty registry. Use Register to populate it, or
// NewDefaultRegistry for the built-in preference order.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{factories: make(map[string]Factory), logger: logger}
}

// Register adds or replaces the factory for a backend name. Registering a
// name not already in the preference order appends it to the end.
func (r *Registry) Register(name string, f Factory) {
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Names returns the registered backend names in preference order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Instantiate constructs the named backend, or — when name is empty — walks
// the preference order and returns the first one that constructs
// successfully. A backend that fails to construct (its native subsystem is
// absent) is logged and skipped rather than treated as a fatal dispatcher
// error, mirroring audio-orchestra's Jack.cpp getDeviceCount behavior of
// reporting zero devices rather than throwing when no server is reachable.
func (r *Registry) Instantiate(ctx context.Context, name string) (backend.Backend, error) {
	if name != "" {
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("dispatcher: unknown backend %q", name)
		}
		b, err := f()
		if err != nil {
			return nil, fmt.Errorf("dispatcher: constructing backend %q: %w", name, err)
		}
		return b, nil
	}

	var lastErr error
	for _, candidate := range r.order {
		b, err := r.factories[candidate]()
		if err != nil {
			r.logger.Warn("backend unavailable, trying next", "backend", candidate, "error", err)
			lastErr = err
			continue
		}
		r.logger.Info("backend selected", "backend", candidate)
		return b, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: no backends registered")
	}
	return nil, fmt.Errorf("dispatcher: no backend available: %w", lastErr)
}
