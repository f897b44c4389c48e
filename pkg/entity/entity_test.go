package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade/pkg/adapters/memory"
	"github.com/cascadekit/cascade/pkg/core"
)

// recordedEvent is one Emit observed by the recording emitter.
type recordedEvent struct {
	eventType string
	payload   map[string]core.Value
	metadata  map[string]core.Value
}

type recordingEmitter struct {
	events []recordedEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, eventType string, entity core.Entity, payload, metadata map[string]core.Value) error {
	r.events = append(r.events, recordedEvent{eventType: eventType, payload: payload, metadata: metadata})
	return nil
}

// capturingStorage wraps another storage and records Store batches and
// SetAtomic invocations.
type capturingStorage struct {
	core.Storage
	batches    []core.Batch
	atomicHits int
}

func (c *capturingStorage) Store(ctx context.Context, batch core.Batch) error {
	c.batches = append(c.batches, batch)
	return c.Storage.Store(ctx, batch)
}

func (c *capturingStorage) SetAtomic(ctx context.Context, name string, fn core.ComputeFn, ns core.Namespace) (core.Value, core.Value, error) {
	c.atomicHits++
	return c.Storage.SetAtomic(ctx, name, fn, ns)
}

func backend(t *testing.T, hub *memory.Store, name string) core.Storage {
	t.Helper()
	st, err := hub.Factory()(name)
	require.NoError(t, err)
	return st
}

func newTestEntity(t *testing.T, name string) (*Entity, *recordingEmitter, *memory.Store) {
	t.Helper()
	hub := memory.NewStore()
	em := &recordingEmitter{}
	e := New(name, backend(t, hub, name), WithEmitter(em))
	return e, em, hub
}

func TestEntity_LazyHydration(t *testing.T) {
	hub := memory.NewStore()
	ctx := context.Background()
	seed := backend(t, hub, "device-1")
	_, err := seed.Set(ctx, core.Property{Name: "temperature", Namespace: core.NamespaceReactive, Value: 21.5})
	require.NoError(t, err)

	e := New("device-1", backend(t, hub, "device-1"))
	v, err := e.Get(ctx, "temperature")
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)
}

func TestEntity_GetAbsent(t *testing.T) {
	e, _, _ := newTestEntity(t, "e")

	_, err := e.Get(context.Background(), "missing")
	assert.True(t, core.IsPropertyNotFound(err))
}

func TestEntity_GetDefault(t *testing.T) {
	e, _, _ := newTestEntity(t, "e")

	v, err := e.Get(context.Background(), "missing", core.Default(42))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEntity_SetEmitsChangeEvent(t *testing.T) {
	e, em, _ := newTestEntity(t, "e")
	ctx := context.Background()

	newValue, old, err := e.Set(ctx, "status", "on")
	require.NoError(t, err)
	assert.Equal(t, "on", newValue)
	assert.Nil(t, old)

	require.Len(t, em.events, 1)
	ev := em.events[0]
	assert.Equal(t, core.EntityPropertyChanged, ev.eventType)
	assert.Equal(t, "status", ev.payload[core.PayloadPropertyName])
	assert.Nil(t, ev.payload[core.PayloadOldValue])
	assert.Equal(t, "on", ev.payload[core.PayloadNewValue])
}

func TestEntity_SetReturnsOldValue(t *testing.T) {
	e, _, _ := newTestEntity(t, "e")
	ctx := context.Background()

	_, _, err := e.Set(ctx, "status", "on")
	require.NoError(t, err)
	newValue, old, err := e.Set(ctx, "status", "off")
	require.NoError(t, err)
	assert.Equal(t, "off", newValue)
	assert.Equal(t, "on", old)
}

func TestEntity_EqualValueIsNoOp(t *testing.T) {
	hub := memory.NewStore()
	st := &capturingStorage{Storage: backend(t, hub, "e")}
	em := &recordingEmitter{}
	e := New("e", st, WithEmitter(em))
	ctx := context.Background()

	_, _, err := e.Set(ctx, "config", map[string]core.Value{"mode": "auto"})
	require.NoError(t, err)
	require.NoError(t, e.Store(ctx))
	em.events = nil
	st.batches = nil

	// Deeply equal value: no event, nothing dirty, Store sends no batch.
	_, _, err = e.Set(ctx, "config", map[string]core.Value{"mode": "auto"})
	require.NoError(t, err)
	assert.Empty(t, em.events)
	require.NoError(t, e.Store(ctx))
	assert.Empty(t, st.batches)
}

func TestEntity_MutedSetSuppressesEvent(t *testing.T) {
	e, em, _ := newTestEntity(t, "e")
	ctx := context.Background()

	newValue, _, err := e.Set(ctx, "status", "on", core.Muted())
	require.NoError(t, err)
	assert.Equal(t, "on", newValue)
	assert.Empty(t, em.events)

	// Value was still written.
	v, err := e.Get(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "on", v)
}

func TestEntity_ExtendedNeverEmits(t *testing.T) {
	e, em, _ := newTestEntity(t, "e")
	ctx := context.Background()

	_, _, err := e.Set(ctx, "trace_id", "abc", core.Ext())
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, "trace_id", core.Ext()))
	assert.Empty(t, em.events)
}

func TestEntity_NamespacesAreIndependent(t *testing.T) {
	e, _, _ := newTestEntity(t, "e")
	ctx := context.Background()

	_, _, err := e.Set(ctx, "k", "reactive")
	require.NoError(t, err)
	_, _, err = e.Set(ctx, "k", "extended", core.Ext())
	require.NoError(t, err)

	v, err := e.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "reactive", v)
	v, err = e.Get(ctx, "k", core.Ext())
	require.NoError(t, err)
	assert.Equal(t, "extended", v)
}

func TestEntity_SetMetadataReachesEvent(t *testing.T) {
	e, em, _ := newTestEntity(t, "e")

	md := map[string]core.Value{"origin": "sensor"}
	_, _, err := e.Set(context.Background(), "status", "on", core.WithMetadata(md))
	require.NoError(t, err)

	require.Len(t, em.events, 1)
	assert.Equal(t, "sensor", em.events[0].metadata["origin"])
}

func TestEntity_WritesBatchUntilStore(t *testing.T) {
	hub := memory.NewStore()
	ctx := context.Background()
	e := New("e", backend(t, hub, "e"))

	_, _, err := e.Set(ctx, "status", "on")
	require.NoError(t, err)

	// Not persisted yet: a fresh instance sees nothing.
	fresh := New("e", backend(t, hub, "e"))
	_, err = fresh.Get(ctx, "status")
	assert.True(t, core.IsPropertyNotFound(err))

	require.NoError(t, e.Store(ctx))
	fresh = New("e", backend(t, hub, "e"))
	v, err := fresh.Get(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "on", v)
}

func TestEntity_StoreClassifiesInsertsAndUpdates(t *testing.T) {
	hub := memory.NewStore()
	ctx := context.Background()
	seed := backend(t, hub, "e")
	_, err := seed.Set(ctx, core.Property{Name: "existing", Namespace: core.NamespaceReactive, Value: 1})
	require.NoError(t, err)

	st := &capturingStorage{Storage: backend(t, hub, "e")}
	e := New("e", st)

	_, _, err = e.Set(ctx, "existing", 2)
	require.NoError(t, err)
	_, _, err = e.Set(ctx, "brand_new", 3)
	require.NoError(t, err)
	require.NoError(t, e.Store(ctx))

	require.Len(t, st.batches, 1)
	batch := st.batches[0]
	require.Len(t, batch.Updates, 1)
	assert.Equal(t, "existing", batch.Updates[0].Name)
	require.Len(t, batch.Inserts, 1)
	assert.Equal(t, "brand_new", batch.Inserts[0].Name)
}

func TestEntity_StoreWithNothingPendingIsNoOp(t *testing.T) {
	hub := memory.NewStore()
	st := &capturingStorage{Storage: backend(t, hub, "e")}
	e := New("e", st)

	require.NoError(t, e.Store(context.Background()))
	assert.Empty(t, st.batches)
}

func TestEntity_BypassSetWritesThrough(t *testing.T) {
	hub := memory.NewStore()
	ctx := context.Background()
	e := New("e", backend(t, hub, "e"))

	_, _, err := e.Set(ctx, "status", "on", core.Bypass())
	require.NoError(t, err)

	// Visible immediately without Store.
	fresh := New("e", backend(t, hub, "e"))
	v, err := fresh.Get(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "on", v)
}

func TestEntity_UpdateAppliesComputeFn(t *testing.T) {
	e, em, _ := newTestEntity(t, "counter")
	ctx := context.Background()

	increment := func(old core.Value) core.Value {
		if old == nil {
			return 1
		}
		return old.(int) + 1
	}

	newValue, old, err := e.Update(ctx, "n", increment)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Equal(t, 1, newValue)

	newValue, old, err = e.Update(ctx, "n", increment)
	require.NoError(t, err)
	assert.Equal(t, 1, old)
	assert.Equal(t, 2, newValue)
	assert.Len(t, em.events, 2)
}

func TestEntity_UpdateBypassDelegatesToSetAtomic(t *testing.T) {
	hub := memory.NewStore()
	st := &capturingStorage{Storage: backend(t, hub, "e")}
	e := New("e", st)
	ctx := context.Background()

	newValue, _, err := e.Update(ctx, "n", func(old core.Value) core.Value {
		if old == nil {
			return 10
		}
		return old.(int) + 10
	}, core.Bypass())
	require.NoError(t, err)
	assert.Equal(t, 10, newValue)
	assert.Equal(t, 1, st.atomicHits)
}

func TestEntity_DeleteEmitsWithOldValue(t *testing.T) {
	e, em, _ := newTestEntity(t, "e")
	ctx := context.Background()

	_, _, err := e.Set(ctx, "status", "on")
	require.NoError(t, err)
	em.events = nil

	require.NoError(t, e.Delete(ctx, "status"))
	require.Len(t, em.events, 1)
	ev := em.events[0]
	assert.Equal(t, core.EntityPropertyDeleted, ev.eventType)
	assert.Equal(t, "status", ev.payload[core.PayloadPropertyName])
	assert.Equal(t, "on", ev.payload[core.PayloadOldValue])
}

func TestEntity_DeleteAbsent(t *testing.T) {
	e, _, _ := newTestEntity(t, "e")

	err := e.Delete(context.Background(), "missing")
	assert.True(t, core.IsPropertyNotFound(err))
}

func TestEntity_DeleteUnsavedInsertNeverReachesBackend(t *testing.T) {
	hub := memory.NewStore()
	st := &capturingStorage{Storage: backend(t, hub, "e")}
	e := New("e", st)
	ctx := context.Background()

	_, _, err := e.Set(ctx, "transient", 1)
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, "transient"))
	require.NoError(t, e.Store(ctx))

	assert.Empty(t, st.batches)
}

func TestEntity_KeysHasSnapshot(t *testing.T) {
	e, _, _ := newTestEntity(t, "e")
	ctx := context.Background()

	_, _, err := e.Set(ctx, "a", 1)
	require.NoError(t, err)
	_, _, err = e.Set(ctx, "b", 2)
	require.NoError(t, err)
	_, _, err = e.Set(ctx, "m", "meta", core.Ext())
	require.NoError(t, err)

	keys, err := e.Keys(ctx, core.NamespaceReactive)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	ok, err := e.Has(ctx, "a", core.NamespaceReactive)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Has(ctx, "a", core.NamespaceExtended)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e", snap.Name)
	assert.Equal(t, map[string]core.Value{"a": 1, "b": 2}, snap.Props)
	assert.Equal(t, map[string]core.Value{"m": "meta"}, snap.Ext)
}

func TestEntity_FlushEventSequence(t *testing.T) {
	e, em, hub := newTestEntity(t, "e")
	ctx := context.Background()

	_, _, err := e.Set(ctx, "a", 1)
	require.NoError(t, err)
	_, _, err = e.Set(ctx, "b", 2)
	require.NoError(t, err)
	_, _, err = e.Set(ctx, "note", "x", core.Ext())
	require.NoError(t, err)
	require.NoError(t, e.Store(ctx))
	em.events = nil

	require.NoError(t, e.Flush(ctx))

	// Two property-deleted events (order unspecified) then one
	// entity-deleted carrying the pre-deletion snapshot.
	require.Len(t, em.events, 3)
	deletedProps := map[string]core.Value{}
	for _, ev := range em.events[:2] {
		assert.Equal(t, core.EntityPropertyDeleted, ev.eventType)
		deletedProps[ev.payload[core.PayloadPropertyName].(string)] = ev.payload[core.PayloadOldValue]
	}
	assert.Equal(t, map[string]core.Value{"a": 1, "b": 2}, deletedProps)

	final := em.events[2]
	assert.Equal(t, core.EntityDeleted, final.eventType)
	assert.Equal(t, map[string]core.Value{"a": 1, "b": 2}, final.payload[core.PayloadProps])
	assert.Equal(t, map[string]core.Value{"note": "x"}, final.payload[core.PayloadExtProps])

	// Backend state is purged.
	fresh := backend(t, hub, "e")
	props, ext, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, props)
	assert.Empty(t, ext)
}

func TestEntity_NilEmitterIsSilent(t *testing.T) {
	hub := memory.NewStore()
	e := New("e", backend(t, hub, "e"))
	ctx := context.Background()

	_, _, err := e.Set(ctx, "status", "on")
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, "status"))
	require.NoError(t, e.Flush(ctx))
}
