// ABOUTME: Registry mapping action names (and short names) to actions
// ABOUTME: Runs single actions or every action named in a push payload

package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry maps names to actions. An action may be registered under several names.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actions: make(map[string]Action),
		logger:  logger.With("component", "actions"),
	}
}

// Register adds action under every name. A name already in use is an error
// and nothing is registered.
func (r *Registry) Register(action Action, names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("registering action: no names")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if name == "" {
			return fmt.Errorf("registering action: empty name")
		}
		if _, taken := r.actions[name]; taken {
			return fmt.Errorf("registering action: name %q already registered", name)
		}
	}
	for _, name := range names {
		r.actions[name] = action
	}
	return nil
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run performs the action registered under name.
func (r *Registry) Run(ctx context.Context, name string, args Arguments) (Result, error) {
	action, ok := r.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	if !action.AcceptsArguments(args) {
		return Result{}, fmt.Errorf("%w: %s", ErrRejectedArguments, name)
	}

	result, err := action.Perform(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("performing %s: %w", name, err)
	}
	return result, nil
}

// PayloadResult is the outcome of one action found in a payload.
type PayloadResult struct {
	Name   string
	Result Result
	Err    error
}

// RunPayload runs every registered action whose name is a top-level key of
// payload. Keys that are not action names are ignored. Results are ordered by
// name; one action failing does not stop the others.
func (r *Registry) RunPayload(ctx context.Context, payload map[string]any, situation Situation) []PayloadResult {
	var names []string
	for key := range payload {
		if _, ok := r.Lookup(key); ok {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	results := make([]PayloadResult, 0, len(names))
	for _, name := range names {
		args := Arguments{
			Situation: situation,
			Value:     payload[name],
			Metadata:  map[string]any{"payload": payload},
		}
		result, err := r.Run(ctx, name, args)
		if err != nil {
			r.logger.Warn("payload action failed", "action", name, "situation", situation, "error", err)
		} else {
			r.logger.Debug("payload action ran", "action", name, "situation", situation)
		}
		results = append(results, PayloadResult{Name: name, Result: result, Err: err})
	}
	return results
}
