package core

import "context"

// Entity is the reactive property bag port. The concrete implementation
// lives in pkg/entity; handlers and middleware see this interface so the
// bus does not depend on the cache engine.
type Entity interface {
	// Name returns the unique, immutable entity identifier.
	Name() string

	// Get reads a property. Without Default, an absent property yields a
	// PropertyNotFoundError.
	Get(ctx context.Context, prop string, opts ...Option) (Value, error)

	// Set writes a plain value and returns (new, old). Reactive writes
	// that change the value emit an entity-property-changed event inline
	// unless muted; the call returns only after the whole event cascade
	// has completed.
	Set(ctx context.Context, prop string, value Value, opts ...Option) (newValue, oldValue Value, err error)

	// Update writes a computed value derived from the current one.
	// Combined with Bypass it is delegated to Storage.SetAtomic, the only
	// path with cross-process atomicity.
	Update(ctx context.Context, prop string, fn ComputeFn, opts ...Option) (newValue, oldValue Value, err error)

	// Delete removes a property, emitting entity-property-deleted for
	// reactive properties unless muted.
	Delete(ctx context.Context, prop string, opts ...Option) error

	// Keys lists the property names of one namespace.
	Keys(ctx context.Context, ns Namespace) ([]string, error)

	// Has reports whether a property exists in one namespace.
	Has(ctx context.Context, prop string, ns Namespace) (bool, error)

	// Snapshot exports both namespaces. No events are emitted.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Store flushes all batched mutations to the backend in one call.
	Store(ctx context.Context) error

	// Flush deletes the entity: one entity-property-deleted event per
	// reactive property, one final entity-deleted event carrying a full
	// snapshot, then the backend state is purged.
	Flush(ctx context.Context) error
}

// Snapshot is a point-in-time export of an entity's two property maps.
type Snapshot struct {
	Name  string
	Props map[string]Value
	Ext   map[string]Value
}

// Emitter is the event sink an entity notifies on reactive mutations.
// The event bus implements it; a nil emitter silences an entity entirely.
type Emitter interface {
	Emit(ctx context.Context, eventType string, entity Entity, payload, metadata map[string]Value) error
}

// CallOptions collects the per-call knobs of entity operations. The zero
// value targets the reactive namespace with caching, events enabled and no
// default.
type CallOptions struct {
	Namespace Namespace
	// Muted suppresses the change/deletion event of a mutation.
	Muted bool
	// Bypass routes the operation directly to the storage backend instead
	// of the in-memory batching cache.
	Bypass bool
	// Metadata is attached to the emitted event's metadata map.
	Metadata map[string]Value
	// Default is returned by Get instead of a PropertyNotFoundError.
	Default    Value
	HasDefault bool
}

// Option configures a single entity operation.
type Option func(*CallOptions)

// ApplyOptions resolves a call's option list. Used by Entity
// implementations.
func ApplyOptions(opts []Option) CallOptions {
	o := CallOptions{Namespace: NamespaceReactive}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Ext targets the extended (non-reactive) namespace.
func Ext() Option {
	return func(o *CallOptions) { o.Namespace = NamespaceExtended }
}

// Muted suppresses the event a reactive mutation would emit. The value is
// still written.
func Muted() Option {
	return func(o *CallOptions) { o.Muted = true }
}

// Bypass skips the in-memory cache and talks to the storage backend
// directly. For Update this is the only path with cross-process atomicity.
func Bypass() Option {
	return func(o *CallOptions) { o.Bypass = true }
}

// WithMetadata attaches extra metadata to the event emitted by a mutation.
func WithMetadata(md map[string]Value) Option {
	return func(o *CallOptions) { o.Metadata = md }
}

// Default makes Get return v instead of failing when the property is
// absent.
func Default(v Value) Option {
	return func(o *CallOptions) {
		o.Default = v
		o.HasDefault = true
	}
}
