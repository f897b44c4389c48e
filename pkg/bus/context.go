package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/cascadekit/cascade/pkg/core"
)

// MetadataHandlerErrors is the metadata key under which the bus collects
// the errors of failed handlers and filters ([]error). Handler failures
// never abort a dispatch; middleware reads them here.
const MetadataHandlerErrors = "handler_errors"

// EventContext is the value object threading one dispatched event through
// middleware and handlers. The event identity, entity reference and payload
// are fixed at emit time; the metadata map is mutable and shared along the
// whole chain, which is how middleware passes data inward.
type EventContext struct {
	id        string
	eventType string
	entity    core.Entity
	payload   map[string]core.Value
	metadata  map[string]core.Value
	bus       *Bus
}

func newEventContext(b *Bus, eventType string, entity core.Entity, payload, metadata map[string]core.Value) *EventContext {
	if payload == nil {
		payload = make(map[string]core.Value)
	}
	if metadata == nil {
		metadata = make(map[string]core.Value)
	}
	return &EventContext{
		id:        uuid.NewString(),
		eventType: eventType,
		entity:    entity,
		payload:   payload,
		metadata:  metadata,
		bus:       b,
	}
}

// ID returns the unique identifier of this dispatch.
func (ec *EventContext) ID() string { return ec.id }

// Type returns the event type.
func (ec *EventContext) Type() string { return ec.eventType }

// Entity returns the entity the event refers to. May be nil for events
// emitted without an entity.
func (ec *EventContext) Entity() core.Entity { return ec.entity }

// Payload returns the event payload. The map is shared between all
// handlers of the dispatch, matching the mutable-payload contract.
func (ec *EventContext) Payload() map[string]core.Value { return ec.payload }

// Metadata reads one metadata entry.
func (ec *EventContext) Metadata(key string) (core.Value, bool) {
	v, ok := ec.metadata[key]
	return v, ok
}

// MetadataOr reads one metadata entry, falling back to def.
func (ec *EventContext) MetadataOr(key string, def core.Value) core.Value {
	if v, ok := ec.metadata[key]; ok {
		return v
	}
	return def
}

// SetMetadata writes one metadata entry, visible to everything downstream
// (and, for the onion's "after" phase, upstream too).
func (ec *EventContext) SetMetadata(key string, v core.Value) {
	ec.metadata[key] = v
}

// PropertyName returns the changed/deleted property name for the built-in
// property events, or "" otherwise.
func (ec *EventContext) PropertyName() string {
	if s, ok := ec.payload[core.PayloadPropertyName].(string); ok {
		return s
	}
	return ""
}

// OldValue returns the previous property value for the built-in property
// events, or nil otherwise.
func (ec *EventContext) OldValue() core.Value {
	return ec.payload[core.PayloadOldValue]
}

// NewValue returns the new property value for entity-property-changed
// events, or nil otherwise (deletions carry no new value).
func (ec *EventContext) NewValue() core.Value {
	return ec.payload[core.PayloadNewValue]
}

// MetadataAll returns a copy of the whole metadata map.
func (ec *EventContext) MetadataAll() map[string]core.Value {
	return core.CloneMap(ec.metadata)
}

// HandlerErrors returns the handler/filter errors recorded so far during
// this dispatch.
func (ec *EventContext) HandlerErrors() []error {
	errs, _ := ec.metadata[MetadataHandlerErrors].([]error)
	return errs
}

func (ec *EventContext) recordError(err error) {
	ec.metadata[MetadataHandlerErrors] = append(ec.HandlerErrors(), err)
}

// EmitOption adjusts a cascaded emit.
type EmitOption func(*emitConfig)

type emitConfig struct {
	entity   core.Entity
	metadata map[string]core.Value
}

// To overrides the entity of a cascaded event; by default the context's
// own entity is reused.
func To(entity core.Entity) EmitOption {
	return func(c *emitConfig) { c.entity = entity }
}

// Meta attaches one metadata entry to a cascaded event.
func Meta(key string, v core.Value) EmitOption {
	return func(c *emitConfig) {
		if c.metadata == nil {
			c.metadata = make(map[string]core.Value)
		}
		c.metadata[key] = v
	}
}

// Emit dispatches a follow-up event on the owning bus, defaulting the
// entity to this context's entity. The call is fully re-entrant: it returns
// only after the nested cascade has completed.
func (ec *EventContext) Emit(ctx context.Context, eventType string, payload map[string]core.Value, opts ...EmitOption) error {
	cfg := emitConfig{entity: ec.entity}
	for _, opt := range opts {
		opt(&cfg)
	}
	return ec.bus.Emit(ctx, eventType, cfg.entity, payload, cfg.metadata)
}
