// Package typed provides type-safe views over the schema-less property
// bags. Values are converted through their JSON shape, which also
// normalizes what persistent backends hand back (float64 numbers,
// map[string]any objects).
package typed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cascadekit/cascade/pkg/core"
)

// Get reads one property and converts it to T.
func Get[T any](ctx context.Context, e core.Entity, prop string, opts ...core.Option) (T, error) {
	var out T
	v, err := e.Get(ctx, prop, opts...)
	if err != nil {
		return out, err
	}
	if err := convert(v, &out); err != nil {
		return out, fmt.Errorf("property %q: %w", prop, err)
	}
	return out, nil
}

// Props exports the reactive namespace of an entity into a struct T whose
// json tags name the properties.
func Props[T any](ctx context.Context, e core.Entity) (T, error) {
	var out T
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return out, err
	}
	if err := convert(snap.Props, &out); err != nil {
		return out, fmt.Errorf("entity %q: %w", snap.Name, err)
	}
	return out, nil
}

// SetProps writes every field of a struct T as a reactive property, one Set
// per json-tagged field. Options apply to each write.
func SetProps[T any](ctx context.Context, e core.Entity, props T, opts ...core.Option) error {
	var asMap map[string]core.Value
	if err := convert(props, &asMap); err != nil {
		return err
	}
	for name, v := range asMap {
		if _, _, err := e.Set(ctx, name, v, opts...); err != nil {
			return err
		}
	}
	return nil
}

// convert round-trips a value through JSON into the target shape.
func convert(from any, to any) error {
	raw, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	if err := json.Unmarshal(raw, to); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}
