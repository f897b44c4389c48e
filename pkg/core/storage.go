package core

import "context"

// Namespace distinguishes the two independent property key spaces of an
// entity. Reactive properties emit change events on mutation; extended
// properties never do.
type Namespace string

const (
	NamespaceReactive Namespace = "reactive"
	NamespaceExtended Namespace = "extended"
)

// Property is a single named value inside one namespace, as exchanged with
// a storage backend.
type Property struct {
	Name      string
	Namespace Namespace
	Value     Value
}

// Batch groups the pending mutations of one entity for a single Store call.
// Inserts are properties the backend has never seen for this entity,
// updates replace existing values, deletes remove them.
type Batch struct {
	Inserts []Property
	Updates []Property
	Deletes []Property
}

// Empty reports whether the batch carries no work.
func (b Batch) Empty() bool {
	return len(b.Inserts) == 0 && len(b.Updates) == 0 && len(b.Deletes) == 0
}

// ComputeFn derives a new property value from the current one. It must be
// pure: concurrency-safe backends may invoke it more than once while
// retrying a compare-and-swap loop. The old value is nil when the property
// does not exist yet.
type ComputeFn func(old Value) Value

// Storage is the persistence contract consumed by the entity cache. An
// instance is bound to a single entity name; StorageFactory produces them.
//
// Adhering to this interface keeps the engine independent of the concrete
// backend (memory, Redis, SQLite, flat files, ...). Implementations declare
// their own guarantees through IsPersistent and IsConcurrencySafe.
type Storage interface {
	// Load retrieves both property maps. An unknown entity is not an
	// error: it loads as two empty maps.
	Load(ctx context.Context) (props, ext map[string]Value, err error)

	// Store applies a batch of property changes. Backends document the
	// granularity at which the batch is atomic.
	Store(ctx context.Context, batch Batch) error

	// Get reads a single property, bypassing any caller-side cache.
	// Absent properties yield a PropertyNotFoundError.
	Get(ctx context.Context, name string, ns Namespace) (Value, error)

	// Set writes a single property immediately and returns its previous
	// value (nil if it was unset).
	Set(ctx context.Context, prop Property) (old Value, err error)

	// SetAtomic reads the current value of a property, applies fn and
	// persists the result. Backends reporting IsConcurrencySafe guarantee
	// that two concurrent SetAtomic calls on the same property never lose
	// an update; others perform a plain read-modify-write and document
	// that concurrent computed updates race.
	SetAtomic(ctx context.Context, name string, fn ComputeFn, ns Namespace) (newValue, old Value, err error)

	// Delete removes a single property. Deleting an absent property
	// yields a PropertyNotFoundError.
	Delete(ctx context.Context, name string, ns Namespace) error

	// Flush removes every trace of the entity from the backend.
	Flush(ctx context.Context) error

	// IsPersistent reports whether stored state survives process restart.
	IsPersistent() bool

	// IsConcurrencySafe reports whether SetAtomic is lost-update free
	// under concurrent writers sharing this backend.
	IsConcurrencySafe() bool
}

// StorageFactory creates the Storage bound to one entity name.
type StorageFactory func(entityName string) (Storage, error)
