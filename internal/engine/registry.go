package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownEngine is returned when a request names an unregistered engine.
var ErrUnknownEngine = fmt.Errorf("unknown engine")

// entry is one registered engine handle plus its locks.
type entry struct {
	engine Engine
	ready  atomic.Bool
	// callMu serializes extraction against this handle. The opaque backend's
	// thread safety is unspecified, so at most one invocation is in flight
	// per engine ID (including an orphaned timed-out one, which keeps the
	// lock until the work actually finishes).
	callMu sync.Mutex
}

// Registry owns one lazily-initialized handle per engine identifier,
// constructed at most once per process lifetime. Initialization failures
// are never cached: the next use retries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds an engine under its identifier. Registering the same name
// twice replaces the previous handle; this only happens at wiring time.
func (r *Registry) Register(name string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{engine: e}
}

// Names returns the registered engine identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ready reports whether the named engine has completed initialization. It
// never initializes the engine itself.
func (r *Registry) Ready(name string) bool {
	r.mu.RLock()
	ent, ok := r.entries[name]
	r.mu.RUnlock()
	return ok && ent.ready.Load()
}

// Device returns the device description of the named engine, or "unavailable"
// if the engine is not registered.
func (r *Registry) Device(name string) string {
	r.mu.RLock()
	ent, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return "unavailable"
	}
	return ent.engine.Device()
}

// lookup fetches the entry for name.
func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	ent, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	return ent, nil
}

// ensureReady initializes the engine if needed. Concurrent callers for the
// same engine share a single underlying Initialize call and its outcome.
// After the first success the handle is treated as permanently ready; a
// failure is returned to every waiter but not remembered.
func (r *Registry) ensureReady(ctx context.Context, name string, ent *entry) error {
	if ent.ready.Load() {
		return nil
	}

	_, err, shared := r.group.Do(name, func() (interface{}, error) {
		if ent.ready.Load() {
			return nil, nil
		}
		if err := ent.engine.Initialize(ctx); err != nil {
			return nil, err
		}
		ent.ready.Store(true)
		return nil, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("engine", name).Bool("shared", shared).
			Msg("Engine initialization failed, will retry on next use")
		return fmt.Errorf("initialize %s: %w", name, err)
	}
	return nil
}

// Warm initializes the named engine without taking the extraction lock.
// Safe to call from any number of goroutines: concurrent warms of the same
// engine share one underlying Initialize call.
func (r *Registry) Warm(ctx context.Context, name string) error {
	ent, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.ensureReady(ctx, name, ent)
}

// WithEngine runs fn with exclusive access to the named engine, initializing
// it first if necessary. The exclusivity lock is held for the full duration
// of fn, so concurrent extractions against one backend are serialized.
func (r *Registry) WithEngine(ctx context.Context, name string, fn func(Engine) (*Result, error)) (*Result, error) {
	ent, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	ent.callMu.Lock()
	defer ent.callMu.Unlock()

	if err := r.ensureReady(ctx, name, ent); err != nil {
		return nil, err
	}
	return fn(ent.engine)
}

// Close shuts down every registered engine. Called at process exit.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ent := range r.entries {
		if err := ent.engine.Close(); err != nil {
			log.Warn().Err(err).Str("engine", name).Msg("Engine close failed")
		}
	}
}
