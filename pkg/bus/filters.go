package bus

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cascadekit/cascade/pkg/core"
)

// Common filter predicates for handler registrations.

// PropertyNameIs passes property-change events for one specific property.
func PropertyNameIs(name string) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		return ec.PropertyName() == name, nil
	}
}

// EntityNameIs passes events whose entity has exactly the given name.
func EntityNameIs(name string) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		return ec.Entity() != nil && ec.Entity().Name() == name, nil
	}
}

// EntityNameMatches passes events whose entity name matches a glob
// pattern, e.g. "device-*".
func EntityNameMatches(glob string) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		if ec.Entity() == nil {
			return false, nil
		}
		return doublestar.Match(glob, ec.Entity().Name())
	}
}

// PayloadHas passes events whose payload contains the key.
func PayloadHas(key string) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		_, ok := ec.Payload()[key]
		return ok, nil
	}
}

// PayloadEquals passes events whose payload entry deeply equals v.
func PayloadEquals(key string, v core.Value) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		return core.Equal(ec.Payload()[key], v), nil
	}
}

// MetadataEquals passes events whose metadata entry deeply equals v.
func MetadataEquals(key string, v core.Value) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		got, _ := ec.Metadata(key)
		return core.Equal(got, v), nil
	}
}

// EntityHas passes events whose entity currently has the given reactive
// property. The entity read goes through the cache and may hit storage.
func EntityHas(prop string) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		if ec.Entity() == nil {
			return false, nil
		}
		return ec.Entity().Has(ctx, prop, core.NamespaceReactive)
	}
}

// EntityEquals passes events whose entity property deeply equals v.
// Absent properties never pass.
func EntityEquals(prop string, v core.Value) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		if ec.Entity() == nil {
			return false, nil
		}
		got, err := ec.Entity().Get(ctx, prop)
		if err != nil {
			if core.IsPropertyNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return core.Equal(got, v), nil
	}
}

// And combines filters conjunctively, short-circuiting on the first false.
func And(filters ...Filter) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		for _, f := range filters {
			ok, err := f(ctx, ec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Or passes when at least one filter passes.
func Or(filters ...Filter) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		for _, f := range filters {
			ok, err := f(ctx, ec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// Not negates a filter.
func Not(f Filter) Filter {
	return func(ctx context.Context, ec *EventContext) (bool, error) {
		ok, err := f(ctx, ec)
		return !ok, err
	}
}
