// Package cascade is the composition root of the library: an Engine owns
// one event bus and one storage factory and hands out cache-fronted
// entities wired to emit through that bus.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cascadekit/cascade/pkg/adapters/memory"
	"github.com/cascadekit/cascade/pkg/bus"
	"github.com/cascadekit/cascade/pkg/core"
	"github.com/cascadekit/cascade/pkg/dispatch"
	"github.com/cascadekit/cascade/pkg/entity"
)

// Engine ties the bus, the storage factory and the entity instances of one
// reactive store together.
type Engine struct {
	bus     *bus.Bus
	factory core.StorageFactory
	lister  ListFunc
	logger  *slog.Logger
	closers []func() error

	mu       sync.Mutex
	entities map[string]*entity.Entity
}

// New builds an Engine. Without WithStorage it runs on the in-memory
// backend.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	factory := o.factory
	closers := o.closers
	if factory == nil {
		hub := memory.NewStore()
		factory = hub.Factory()
		if o.lister == nil {
			o.lister = hub.ListEntities
		}
	}

	e := &Engine{
		bus:      bus.New(bus.WithLogger(o.logger)),
		factory:  factory,
		lister:   o.lister,
		logger:   o.logger,
		closers:  closers,
		entities: make(map[string]*entity.Entity),
	}
	if o.dispatcher != nil {
		e.bus.Use(dispatch.Middleware(o.dispatcher, o.dispatchPolicy, o.logger))
	}
	return e, nil
}

// Bus exposes the underlying event bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Entity returns the cache-fronted entity for one name, creating it lazily
// and reusing the instance on later calls. State hydrates from the backend
// on first access.
func (e *Engine) Entity(name string) (core.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entities[name]; ok {
		return ent, nil
	}
	storage, err := e.factory(name)
	if err != nil {
		return nil, err
	}
	ent := entity.New(name, storage,
		entity.WithEmitter(e.bus),
		entity.WithLogger(e.logger))
	e.entities[name] = ent
	return ent, nil
}

// Forget drops the cached instance for one entity name. The next Entity
// call re-hydrates from the backend; useful when an external writer changed
// the stored state.
func (e *Engine) Forget(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.entities, name)
}

// On starts a fluent handler registration on the engine's bus.
func (e *Engine) On(patterns ...string) *bus.Builder {
	return e.bus.On(patterns...)
}

// Register adds a handler for the given patterns.
func (e *Engine) Register(patterns []string, h bus.HandlerFunc, filters ...bus.Filter) (*bus.Registration, error) {
	return e.bus.Register(patterns, h, filters...)
}

// Use appends a middleware to the engine's bus.
func (e *Engine) Use(mw bus.Middleware) {
	e.bus.Use(mw)
}

// Emit dispatches an event on the engine's bus, resolving the entity by
// name. An empty name emits without an entity.
func (e *Engine) Emit(ctx context.Context, eventType, entityName string, payload, metadata map[string]core.Value) error {
	var ent core.Entity
	if entityName != "" {
		resolved, err := e.Entity(entityName)
		if err != nil {
			return err
		}
		ent = resolved
	}
	return e.bus.Emit(ctx, eventType, ent, payload, metadata)
}

// List enumerates the entity names known to the storage backend. Returns
// an error when the configured backend offers no enumeration.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	if e.lister == nil {
		return nil, errors.New("storage backend does not support listing entities")
	}
	return e.lister(ctx)
}

// Close releases resources held by the configured backend (client
// connections, database handles).
func (e *Engine) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
