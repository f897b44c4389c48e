// Package memory provides the in-memory reference storage backend. A Store
// hub holds the state of every entity behind one mutex, so separate entity
// instances bound to the same name observe each other's persisted writes.
//
// The backend is concurrency-safe (SetAtomic is mutex-serialized) and not
// persistent. Batches apply all-or-none under a single lock acquisition.
package memory

import (
	"context"
	"sync"

	"github.com/cascadekit/cascade/pkg/core"
)

type record struct {
	props map[string]core.Value
	ext   map[string]core.Value
}

func (r *record) ns(ns core.Namespace) map[string]core.Value {
	if ns == core.NamespaceExtended {
		return r.ext
	}
	return r.props
}

// Store is the shared hub behind every memory-backed entity.
type Store struct {
	mu       sync.Mutex
	entities map[string]*record
}

// NewStore creates an empty hub.
func NewStore() *Store {
	return &Store{entities: make(map[string]*record)}
}

// Factory returns the core.StorageFactory binding entities to this hub.
func (s *Store) Factory() core.StorageFactory {
	return func(entityName string) (core.Storage, error) {
		return &storage{hub: s, name: entityName}, nil
	}
}

// ListEntities returns the names of all entities currently holding state.
func (s *Store) ListEntities(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	return names, nil
}

// record returns the entity record, creating it when create is set.
func (s *Store) record(name string, create bool) *record {
	r, ok := s.entities[name]
	if !ok && create {
		r = &record{props: make(map[string]core.Value), ext: make(map[string]core.Value)}
		s.entities[name] = r
	}
	return r
}

type storage struct {
	hub  *Store
	name string
}

var _ core.Storage = (*storage)(nil)

func (st *storage) Load(ctx context.Context) (map[string]core.Value, map[string]core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	r := st.hub.record(st.name, false)
	if r == nil {
		return map[string]core.Value{}, map[string]core.Value{}, nil
	}
	return core.CloneMap(r.props), core.CloneMap(r.ext), nil
}

func (st *storage) Store(ctx context.Context, batch core.Batch) error {
	if batch.Empty() {
		return nil
	}
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	r := st.hub.record(st.name, true)
	for _, p := range batch.Inserts {
		r.ns(p.Namespace)[p.Name] = p.Value
	}
	for _, p := range batch.Updates {
		r.ns(p.Namespace)[p.Name] = p.Value
	}
	for _, p := range batch.Deletes {
		delete(r.ns(p.Namespace), p.Name)
	}
	return nil
}

func (st *storage) Get(ctx context.Context, name string, ns core.Namespace) (core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	r := st.hub.record(st.name, false)
	if r == nil {
		return nil, &core.PropertyNotFoundError{Entity: st.name, Property: name, Namespace: ns}
	}
	v, ok := r.ns(ns)[name]
	if !ok {
		return nil, &core.PropertyNotFoundError{Entity: st.name, Property: name, Namespace: ns}
	}
	return v, nil
}

func (st *storage) Set(ctx context.Context, prop core.Property) (core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	r := st.hub.record(st.name, true)
	old := r.ns(prop.Namespace)[prop.Name]
	r.ns(prop.Namespace)[prop.Name] = prop.Value
	return old, nil
}

func (st *storage) SetAtomic(ctx context.Context, name string, fn core.ComputeFn, ns core.Namespace) (core.Value, core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	r := st.hub.record(st.name, true)
	old := r.ns(ns)[name]
	newValue := fn(old)
	r.ns(ns)[name] = newValue
	return newValue, old, nil
}

func (st *storage) Delete(ctx context.Context, name string, ns core.Namespace) error {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	r := st.hub.record(st.name, false)
	if r == nil {
		return &core.PropertyNotFoundError{Entity: st.name, Property: name, Namespace: ns}
	}
	if _, ok := r.ns(ns)[name]; !ok {
		return &core.PropertyNotFoundError{Entity: st.name, Property: name, Namespace: ns}
	}
	delete(r.ns(ns), name)
	return nil
}

func (st *storage) Flush(ctx context.Context) error {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	delete(st.hub.entities, st.name)
	return nil
}

func (st *storage) IsPersistent() bool      { return false }
func (st *storage) IsConcurrencySafe() bool { return true }
