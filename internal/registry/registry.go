// -----------------------------------------------------------------------
// Job template registry - write-once-at-startup table from template name
// to handler. Frozen before the worker pool starts; dispatch of an
// unknown template fails the job permanently.
// -----------------------------------------------------------------------

package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/bamtlabs/wsiflow/internal/models"
)

// ProgressReporter lets a handler report progress for the job it is bound
// to. Implementations are safe to call from background goroutines; the
// store client underneath maintains its own connection pool.
type ProgressReporter interface {
	Report(ctx context.Context, update models.ProgressUpdate) error
}

// Handler executes one job template. Handlers run concurrently on
// different user workers and must not share implicit state.
type Handler interface {
	Run(ctx context.Context, jobID string, payload map[string]interface{}, progress ProgressReporter) (map[string]interface{}, error)
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(ctx context.Context, jobID string, payload map[string]interface{}, progress ProgressReporter) (map[string]interface{}, error)

// Run implements Handler
func (f HandlerFunc) Run(ctx context.Context, jobID string, payload map[string]interface{}, progress ProgressReporter) (map[string]interface{}, error) {
	return f(ctx, jobID, payload, progress)
}

// Registry maps template names to handlers. Registration happens during
// initialization; Freeze makes the table immutable before dispatch begins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a template name. Duplicate names and
// registration after Freeze are programming errors.
func (r *Registry) Register(name string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register template %q", name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("template %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// Freeze makes the registry immutable
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve looks up the handler for a template name
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Templates returns the registered template names
func (r *Registry) Templates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
