package reactivity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade"
	"github.com/cascadekit/cascade/pkg/bus"
)

func newEngine(t *testing.T) *cascade.Engine {
	t.Helper()
	engine, err := cascade.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// A handler writing back the value it was triggered by must not loop: the
// second write is deeply equal, so no second event fires.
func TestCascade_EqualValueBreaksCycle(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	invocations := 0

	_, err := engine.On(cascade.EntityPropertyChanged).
		When(bus.PropertyNameIs("mirror")).
		Do(func(ctx context.Context, ec *bus.EventContext) error {
			invocations++
			_, _, err := ec.Entity().Set(ctx, "mirror", ec.NewValue())
			return err
		})
	require.NoError(t, err)

	ent, err := engine.Entity("e")
	require.NoError(t, err)
	_, _, err = ent.Set(ctx, "mirror", 42)
	require.NoError(t, err)

	assert.Equal(t, 1, invocations)
}

// A handler writing a derived property with Muted stops the cascade there.
func TestCascade_MutedWriteBreaksCycle(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	invocations := 0

	_, err := engine.On(cascade.EntityPropertyChanged).
		Do(func(ctx context.Context, ec *bus.EventContext) error {
			invocations++
			_, _, err := ec.Entity().Set(ctx, "derived_"+ec.PropertyName(), 1, cascade.Muted())
			return err
		})
	require.NoError(t, err)

	ent, err := engine.Entity("e")
	require.NoError(t, err)
	_, _, err = ent.Set(ctx, "source", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, invocations)

	v, err := ent.Get(ctx, "derived_source")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// Two entities ping-pong via a filter guard: the chain terminates when the
// filter stops matching.
func TestCascade_FilterBreaksCycle(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	var trace []string

	_, err := engine.On(cascade.EntityPropertyChanged).
		When(bus.PropertyNameIs("count"), func(ctx context.Context, ec *bus.EventContext) (bool, error) {
			n, ok := ec.NewValue().(int)
			return ok && n < 3, nil
		}).
		Do(func(ctx context.Context, ec *bus.EventContext) error {
			trace = append(trace, ec.Entity().Name())
			other := "ping"
			if ec.Entity().Name() == "ping" {
				other = "pong"
			}
			ent, err := engine.Entity(other)
			if err != nil {
				return err
			}
			_, _, err = ent.Set(ctx, "count", ec.NewValue().(int)+1)
			return err
		})
	require.NoError(t, err)

	ping, err := engine.Entity("ping")
	require.NoError(t, err)
	_, _, err = ping.Set(ctx, "count", 0)
	require.NoError(t, err)

	// 0 on ping, 1 on pong, 2 on ping; the write of 3 passes no filter.
	assert.Equal(t, []string{"ping", "pong", "ping"}, trace)
}

// Flush drives the full deletion protocol through the real bus.
func TestFlush_EventProtocol(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	ent, err := engine.Entity("doomed")
	require.NoError(t, err)
	_, _, err = ent.Set(ctx, "a", 1, cascade.Muted())
	require.NoError(t, err)
	_, _, err = ent.Set(ctx, "b", 2, cascade.Muted())
	require.NoError(t, err)

	var deleted []string
	var snapshots []map[string]cascade.Value
	_, err = engine.On(cascade.EntityPropertyDeleted).Do(func(ctx context.Context, ec *bus.EventContext) error {
		deleted = append(deleted, ec.PropertyName())
		return nil
	})
	require.NoError(t, err)
	_, err = engine.On(cascade.EntityDeleted).Do(func(ctx context.Context, ec *bus.EventContext) error {
		props, _ := ec.Payload()["props"].(map[string]cascade.Value)
		snapshots = append(snapshots, props)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ent.Flush(ctx))

	assert.ElementsMatch(t, []string{"a", "b"}, deleted)
	require.Len(t, snapshots, 1)
	assert.Equal(t, map[string]cascade.Value{"a": 1, "b": 2}, snapshots[0])

	// The entity is gone from the backend; a new instance starts empty.
	engine.Forget("doomed")
	fresh, err := engine.Entity("doomed")
	require.NoError(t, err)
	keys, err := fresh.Keys(ctx, "reactive")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// Handlers observe intermediate values in order during a chain of writes.
func TestCascade_OrderedObservation(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	var observed []cascade.Value

	_, err := engine.On(cascade.EntityPropertyChanged).
		When(bus.PropertyNameIs("step")).
		Do(func(ctx context.Context, ec *bus.EventContext) error {
			observed = append(observed, ec.NewValue())
			return nil
		})
	require.NoError(t, err)

	ent, err := engine.Entity("e")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, _, err = ent.Set(ctx, "step", i)
		require.NoError(t, err)
	}

	assert.Equal(t, []cascade.Value{1, 2, 3}, observed)
}
