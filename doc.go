// Package cascade is the composition root for the reactive entity store.
//
// It connects the property engine (entity cache) with the pattern-matching
// event bus and the pluggable storage adapters, following a hexagonal
// layout: pkg/core holds the ports, pkg/adapters the persistence
// implementations.
//
// Mutating a reactive property emits a change event that is routed through
// ordered middleware and registered handlers; handlers may mutate entities
// or emit further events, and those cascades resolve depth-first before the
// original call returns.
//
// Features:
//
//   - Named schema-less entities with two property namespaces: reactive
//     (emits events) and extended (never does).
//   - Write batching with an explicit Store, plus a Bypass path routing
//     single operations straight to the backend, including atomic computed
//     updates.
//   - Dot-segment event patterns with wildcards, conjunctive filter chains,
//     onion middleware, per-handler failure isolation.
//   - Storage adapters for memory, Redis, SQLite and flat YAML files, each
//     declaring its own persistence and concurrency guarantees.
//   - Outbound dispatch middleware delivering events to external sinks.
//
// Usage:
//
//	engine, err := cascade.New(cascade.WithLogger(logger))
//	engine.On("entity-property-changed").Do(handler)
//
//	device, _ := engine.Entity("device-1")
//	device.Set(ctx, "temperature", 21.5) // handler runs before this returns
package cascade
