// Package entity implements the caching property engine fronting a storage
// backend. An Entity batches writes in memory until Store, emits change and
// deletion events through an injected core.Emitter, and routes bypass
// operations straight to the backend.
//
// An Entity performs no internal locking. Concurrent mutation from multiple
// goroutines requires either external serialization or Bypass writes against
// a backend reporting IsConcurrencySafe.
package entity

import (
	"context"
	"log/slog"

	"github.com/cascadekit/cascade/pkg/core"
)

type cacheKey struct {
	ns   core.Namespace
	name string
}

type pendingOp int

const (
	opSet pendingOp = iota
	opDelete
)

// Entity is the concrete core.Entity backed by a per-name Storage instance.
type Entity struct {
	name    string
	storage core.Storage
	emitter core.Emitter
	logger  *slog.Logger

	hydrated bool
	props    map[string]core.Value
	ext      map[string]core.Value

	// persisted tracks which keys the backend currently holds, so Store can
	// classify pending sets as inserts or updates.
	persisted map[cacheKey]bool
	pending   map[cacheKey]pendingOp
}

// EntityOption configures a new Entity.
type EntityOption func(*Entity)

// WithEmitter wires the event sink reactive mutations notify. A nil emitter
// leaves the entity permanently silent.
func WithEmitter(em core.Emitter) EntityOption {
	return func(e *Entity) { e.emitter = em }
}

// WithLogger sets the logger for cache internals.
func WithLogger(logger *slog.Logger) EntityOption {
	return func(e *Entity) { e.logger = logger }
}

// New creates the cache-fronted entity for one name. State is hydrated from
// the backend lazily on first access.
func New(name string, storage core.Storage, opts ...EntityOption) *Entity {
	e := &Entity{
		name:      name,
		storage:   storage,
		props:     make(map[string]core.Value),
		ext:       make(map[string]core.Value),
		persisted: make(map[cacheKey]bool),
		pending:   make(map[cacheKey]pendingOp),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ core.Entity = (*Entity)(nil)

// Name returns the entity identifier.
func (e *Entity) Name() string { return e.name }

func (e *Entity) cache(ns core.Namespace) map[string]core.Value {
	if ns == core.NamespaceExtended {
		return e.ext
	}
	return e.props
}

// hydrate loads both namespaces from the backend on first touch. An unknown
// entity hydrates as empty maps.
func (e *Entity) hydrate(ctx context.Context) error {
	if e.hydrated {
		return nil
	}
	props, ext, err := e.storage.Load(ctx)
	if err != nil {
		return core.WrapStorage("load", e.name, err)
	}
	for k, v := range props {
		e.props[k] = v
		e.persisted[cacheKey{core.NamespaceReactive, k}] = true
	}
	for k, v := range ext {
		e.ext[k] = v
		e.persisted[cacheKey{core.NamespaceExtended, k}] = true
	}
	e.hydrated = true
	if e.logger != nil {
		e.logger.Debug("entity hydrated", "entity", e.name,
			"props", len(props), "ext", len(ext))
	}
	return nil
}

func (e *Entity) emit(ctx context.Context, eventType string, payload map[string]core.Value, md map[string]core.Value) error {
	if e.emitter == nil {
		return nil
	}
	return e.emitter.Emit(ctx, eventType, e, payload, md)
}

// Get reads one property. With Bypass the backend is consulted directly and
// the cached copy refreshed; otherwise the cache answers after lazy
// hydration. Absence yields a PropertyNotFoundError unless Default was given.
func (e *Entity) Get(ctx context.Context, prop string, opts ...core.Option) (core.Value, error) {
	o := core.ApplyOptions(opts)

	if o.Bypass {
		v, err := e.storage.Get(ctx, prop, o.Namespace)
		if err != nil {
			if core.IsPropertyNotFound(err) && o.HasDefault {
				return o.Default, nil
			}
			return nil, core.WrapStorage("get", e.name, err)
		}
		e.cache(o.Namespace)[prop] = v
		e.persisted[cacheKey{o.Namespace, prop}] = true
		return v, nil
	}

	if err := e.hydrate(ctx); err != nil {
		return nil, err
	}
	v, ok := e.cache(o.Namespace)[prop]
	if !ok {
		if o.HasDefault {
			return o.Default, nil
		}
		return nil, &core.PropertyNotFoundError{Entity: e.name, Property: prop, Namespace: o.Namespace}
	}
	return v, nil
}

// Set writes a plain value and returns (new, old). Writing a value deeply
// equal to the current one is a complete no-op: no event, nothing marked
// dirty, no backend write.
func (e *Entity) Set(ctx context.Context, prop string, value core.Value, opts ...core.Option) (core.Value, core.Value, error) {
	o := core.ApplyOptions(opts)

	old, existed, err := e.currentValue(ctx, prop, o)
	if err != nil {
		return nil, nil, err
	}
	if existed && core.Equal(old, value) {
		return value, old, nil
	}

	if err := e.write(ctx, prop, value, o); err != nil {
		return nil, nil, err
	}
	if err := e.notifyChanged(ctx, prop, old, value, o); err != nil {
		return value, old, err
	}
	return value, old, nil
}

// Update writes a value computed from the current one. With Bypass the whole
// read-compute-write is delegated to Storage.SetAtomic, the only path safe
// against concurrent writers on a concurrency-safe backend. Without Bypass
// the function is applied against the cached value.
func (e *Entity) Update(ctx context.Context, prop string, fn core.ComputeFn, opts ...core.Option) (core.Value, core.Value, error) {
	o := core.ApplyOptions(opts)

	if o.Bypass {
		newValue, old, err := e.storage.SetAtomic(ctx, prop, fn, o.Namespace)
		if err != nil {
			return nil, nil, core.WrapStorage("set_atomic", e.name, err)
		}
		e.cache(o.Namespace)[prop] = newValue
		e.persisted[cacheKey{o.Namespace, prop}] = true
		if core.Equal(newValue, old) {
			return newValue, old, nil
		}
		if err := e.notifyChanged(ctx, prop, old, newValue, o); err != nil {
			return newValue, old, err
		}
		return newValue, old, nil
	}

	old, existed, err := e.currentValue(ctx, prop, o)
	if err != nil {
		return nil, nil, err
	}
	newValue := fn(old)
	if existed && core.Equal(old, newValue) {
		return newValue, old, nil
	}
	if err := e.write(ctx, prop, newValue, o); err != nil {
		return nil, nil, err
	}
	if err := e.notifyChanged(ctx, prop, old, newValue, o); err != nil {
		return newValue, old, err
	}
	return newValue, old, nil
}

// currentValue resolves the prior value of a property for a mutation.
func (e *Entity) currentValue(ctx context.Context, prop string, o core.CallOptions) (core.Value, bool, error) {
	if o.Bypass {
		v, err := e.storage.Get(ctx, prop, o.Namespace)
		if err != nil {
			if core.IsPropertyNotFound(err) {
				return nil, false, nil
			}
			return nil, false, core.WrapStorage("get", e.name, err)
		}
		return v, true, nil
	}
	if err := e.hydrate(ctx); err != nil {
		return nil, false, err
	}
	v, ok := e.cache(o.Namespace)[prop]
	return v, ok, nil
}

// write lands a changed value either in the backend (bypass) or in the cache
// with a pending set recorded for the next Store.
func (e *Entity) write(ctx context.Context, prop string, value core.Value, o core.CallOptions) error {
	key := cacheKey{o.Namespace, prop}
	if o.Bypass {
		if _, err := e.storage.Set(ctx, core.Property{Name: prop, Namespace: o.Namespace, Value: value}); err != nil {
			return core.WrapStorage("set", e.name, err)
		}
		e.cache(o.Namespace)[prop] = value
		e.persisted[key] = true
		return nil
	}
	e.cache(o.Namespace)[prop] = value
	e.pending[key] = opSet
	return nil
}

func (e *Entity) notifyChanged(ctx context.Context, prop string, old, newValue core.Value, o core.CallOptions) error {
	if o.Namespace != core.NamespaceReactive || o.Muted {
		return nil
	}
	payload := map[string]core.Value{
		core.PayloadPropertyName: prop,
		core.PayloadOldValue:     old,
		core.PayloadNewValue:     newValue,
	}
	return e.emit(ctx, core.EntityPropertyChanged, payload, o.Metadata)
}

// Delete removes a property. Deleting an absent property yields a
// PropertyNotFoundError. Reactive deletions emit entity-property-deleted
// unless muted.
func (e *Entity) Delete(ctx context.Context, prop string, opts ...core.Option) error {
	o := core.ApplyOptions(opts)
	key := cacheKey{o.Namespace, prop}

	var old core.Value
	if o.Bypass {
		v, err := e.storage.Get(ctx, prop, o.Namespace)
		if err != nil {
			return core.WrapStorage("get", e.name, err)
		}
		old = v
		if err := e.storage.Delete(ctx, prop, o.Namespace); err != nil {
			return core.WrapStorage("delete", e.name, err)
		}
		delete(e.cache(o.Namespace), prop)
		delete(e.persisted, key)
		delete(e.pending, key)
	} else {
		if err := e.hydrate(ctx); err != nil {
			return err
		}
		v, ok := e.cache(o.Namespace)[prop]
		if !ok {
			return &core.PropertyNotFoundError{Entity: e.name, Property: prop, Namespace: o.Namespace}
		}
		old = v
		delete(e.cache(o.Namespace), prop)
		if e.persisted[key] {
			e.pending[key] = opDelete
		} else {
			// Never persisted: dropping the pending set is enough.
			delete(e.pending, key)
		}
	}

	if o.Namespace != core.NamespaceReactive || o.Muted {
		return nil
	}
	payload := map[string]core.Value{
		core.PayloadPropertyName: prop,
		core.PayloadOldValue:     old,
	}
	return e.emit(ctx, core.EntityPropertyDeleted, payload, o.Metadata)
}

// Keys lists the property names of one namespace, cache view.
func (e *Entity) Keys(ctx context.Context, ns core.Namespace) ([]string, error) {
	if err := e.hydrate(ctx); err != nil {
		return nil, err
	}
	c := e.cache(ns)
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys, nil
}

// Has reports whether a property exists in one namespace.
func (e *Entity) Has(ctx context.Context, prop string, ns core.Namespace) (bool, error) {
	if err := e.hydrate(ctx); err != nil {
		return false, err
	}
	_, ok := e.cache(ns)[prop]
	return ok, nil
}

// Snapshot exports both namespaces as seen by the cache. No events.
func (e *Entity) Snapshot(ctx context.Context) (core.Snapshot, error) {
	if err := e.hydrate(ctx); err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot{
		Name:  e.name,
		Props: core.CloneMap(e.props),
		Ext:   core.CloneMap(e.ext),
	}, nil
}

// Store flushes every pending mutation to the backend in one batch and
// clears the dirty set. Cached read values stay in place.
func (e *Entity) Store(ctx context.Context) error {
	if len(e.pending) == 0 {
		return nil
	}
	var batch core.Batch
	for key, op := range e.pending {
		switch op {
		case opSet:
			p := core.Property{Name: key.name, Namespace: key.ns, Value: e.cache(key.ns)[key.name]}
			if e.persisted[key] {
				batch.Updates = append(batch.Updates, p)
			} else {
				batch.Inserts = append(batch.Inserts, p)
			}
		case opDelete:
			batch.Deletes = append(batch.Deletes, core.Property{Name: key.name, Namespace: key.ns})
		}
	}
	if err := e.storage.Store(ctx, batch); err != nil {
		return core.WrapStorage("store", e.name, err)
	}
	for key, op := range e.pending {
		if op == opSet {
			e.persisted[key] = true
		} else {
			delete(e.persisted, key)
		}
	}
	e.pending = make(map[cacheKey]pendingOp)
	if e.logger != nil {
		e.logger.Debug("entity stored", "entity", e.name,
			"inserts", len(batch.Inserts), "updates", len(batch.Updates), "deletes", len(batch.Deletes))
	}
	return nil
}

// Flush deletes the entity. It emits one entity-property-deleted event per
// reactive property, then a single entity-deleted event carrying a snapshot
// of both namespaces captured beforehand, then purges the backend and the
// cache.
func (e *Entity) Flush(ctx context.Context) error {
	if err := e.hydrate(ctx); err != nil {
		return err
	}
	snapshot := core.Snapshot{
		Name:  e.name,
		Props: core.CloneMap(e.props),
		Ext:   core.CloneMap(e.ext),
	}

	for prop, old := range snapshot.Props {
		payload := map[string]core.Value{
			core.PayloadPropertyName: prop,
			core.PayloadOldValue:     old,
		}
		if err := e.emit(ctx, core.EntityPropertyDeleted, payload, nil); err != nil {
			return err
		}
	}
	payload := map[string]core.Value{
		core.PayloadProps:    snapshot.Props,
		core.PayloadExtProps: snapshot.Ext,
	}
	if err := e.emit(ctx, core.EntityDeleted, payload, nil); err != nil {
		return err
	}

	if err := e.storage.Flush(ctx); err != nil {
		return core.WrapStorage("flush", e.name, err)
	}
	e.props = make(map[string]core.Value)
	e.ext = make(map[string]core.Value)
	e.persisted = make(map[cacheKey]bool)
	e.pending = make(map[cacheKey]pendingOp)
	e.hydrated = false
	if e.logger != nil {
		e.logger.Debug("entity flushed", "entity", e.name)
	}
	return nil
}
