package cascade

import (
	"log/slog"

	"github.com/cascadekit/cascade/pkg/bus"
	engine "github.com/cascadekit/cascade/pkg/cascade"
	"github.com/cascadekit/cascade/pkg/core"
	"github.com/cascadekit/cascade/pkg/dispatch"
)

// --- Engine ---

// Engine ties one event bus, one storage factory and the entity instances
// together. See pkg/cascade.
type Engine = engine.Engine

// Config selects and parameterizes the storage backend.
type Config = engine.Config

// Option configures an Engine.
type Option = engine.Option

// New builds an Engine; without options it runs on the in-memory backend.
func New(opts ...Option) (*Engine, error) {
	return engine.New(opts...)
}

// FromEnv reads the storage configuration from CASCADE_STORAGE_* variables.
func FromEnv() Config { return engine.FromEnv() }

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) { return engine.LoadConfig(path) }

// FromConfig builds an Engine from a Config plus extra options.
func FromConfig(cfg Config, extra ...Option) (*Engine, error) {
	return engine.FromConfig(cfg, extra...)
}

// WithStorage injects the storage factory backing all entities.
func WithStorage(factory core.StorageFactory) Option { return engine.WithStorage(factory) }

// WithLogger sets the logger shared by the engine's components.
func WithLogger(logger *slog.Logger) Option { return engine.WithLogger(logger) }

// WithDispatcher installs the outbound dispatch middleware.
func WithDispatcher(d dispatch.Dispatcher, policy dispatch.Policy) Option {
	return engine.WithDispatcher(d, policy)
}

// --- Events ---

// EventContext threads one dispatched event through middleware and
// handlers.
type EventContext = bus.EventContext

// HandlerFunc is a registered reaction body.
type HandlerFunc = bus.HandlerFunc

// Filter gates a handler's execution.
type Filter = bus.Filter

// Middleware wraps the whole dispatch of one emit.
type Middleware = bus.Middleware

// Built-in event types emitted by the entity cache.
const (
	EntityPropertyChanged = core.EntityPropertyChanged
	EntityPropertyDeleted = core.EntityPropertyDeleted
	EntityDeleted         = core.EntityDeleted
)

// --- Entities ---

// Entity is the reactive property bag.
type Entity = core.Entity

// Value is any JSON-serializable property value.
type Value = core.Value

// ComputeFn derives a new property value from the current one.
type ComputeFn = core.ComputeFn

// PropertyOption adjusts a single entity operation.
type PropertyOption = core.Option

// Ext targets the extended (non-reactive) namespace.
func Ext() PropertyOption { return core.Ext() }

// Muted suppresses the event a reactive mutation would emit.
func Muted() PropertyOption { return core.Muted() }

// Bypass routes an operation straight to the storage backend.
func Bypass() PropertyOption { return core.Bypass() }

// WithMetadata attaches metadata to the event emitted by a mutation.
func WithMetadata(md map[string]Value) PropertyOption { return core.WithMetadata(md) }

// Default makes Get return a fallback instead of failing on absence.
func Default(v Value) PropertyOption { return core.Default(v) }

// IsPropertyNotFound reports whether err is an absent-property error.
func IsPropertyNotFound(err error) bool { return core.IsPropertyNotFound(err) }
