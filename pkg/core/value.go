// Package core defines the domain model shared by the entity cache, the
// event bus and the storage adapters: property values, namespaces, the
// storage contract and the error taxonomy.
package core

import "reflect"

// Value is any JSON-serializable property value: scalars, []any, or
// map[string]any. The serialization boundary sits at the storage adapter;
// inside the process values are held as-is. Note that values read back
// through a persistent adapter come out of the JSON decoder, so numbers
// surface as float64.
type Value = any

// Equal reports whether two property values are deeply equal.
// It is the test used for the equal-value no-op rule: writing a value equal
// to the current one emits no event and marks nothing dirty.
func Equal(a, b Value) bool {
	return reflect.DeepEqual(a, b)
}

// CloneMap returns a shallow copy of a property map.
// Nil maps clone to empty maps so callers can always range and index.
func CloneMap(m map[string]Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
