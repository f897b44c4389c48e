package core

// Built-in event types emitted by the entity cache.
const (
	// EntityPropertyChanged is emitted when a reactive property is set to
	// a different value.
	EntityPropertyChanged = "entity-property-changed"

	// EntityPropertyDeleted is emitted when a reactive property is
	// removed, including once per property during Flush.
	EntityPropertyDeleted = "entity-property-deleted"

	// EntityDeleted is emitted exactly once at the end of Flush, carrying
	// a snapshot of both namespaces taken before deletion.
	EntityDeleted = "entity-deleted"
)

// Payload keys used by the built-in events.
const (
	PayloadPropertyName = "property_name"
	PayloadOldValue     = "old_value"
	PayloadNewValue     = "new_value"

	// PayloadProps / PayloadExtProps carry the EntityDeleted snapshot.
	PayloadProps    = "props"
	PayloadExtProps = "ext_props"
)
