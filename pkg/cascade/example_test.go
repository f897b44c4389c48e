package cascade_test

import (
	"context"
	"fmt"

	"github.com/cascadekit/cascade/pkg/bus"
	"github.com/cascadekit/cascade/pkg/cascade"
	"github.com/cascadekit/cascade/pkg/core"
)

// Example wires a reaction to property changes and mutates an entity: the
// handler runs inline, before Set returns.
func Example() {
	engine, _ := cascade.New()
	defer engine.Close()
	ctx := context.Background()

	_, _ = engine.On(core.EntityPropertyChanged).
		When(bus.PropertyNameIs("temperature")).
		Do(func(ctx context.Context, ec *bus.EventContext) error {
			fmt.Printf("%s: %v -> %v\n", ec.Entity().Name(), ec.OldValue(), ec.NewValue())
			return nil
		})

	device, _ := engine.Entity("device-1")
	_, _, _ = device.Set(ctx, "temperature", 21.5)
	_, _, _ = device.Set(ctx, "temperature", 22.0)
	// Setting the same value again is a no-op: no event.
	_, _, _ = device.Set(ctx, "temperature", 22.0)

	// Output:
	// device-1: <nil> -> 21.5
	// device-1: 21.5 -> 22
}
