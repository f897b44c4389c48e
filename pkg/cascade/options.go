package cascade

import (
	"context"
	"log/slog"

	"github.com/cascadekit/cascade/pkg/core"
	"github.com/cascadekit/cascade/pkg/dispatch"
)

// ListFunc enumerates the entity names present in a storage backend.
type ListFunc func(ctx context.Context) ([]string, error)

// options holds the internal configuration of an Engine.
type options struct {
	factory        core.StorageFactory
	lister         ListFunc
	logger         *slog.Logger
	dispatcher     dispatch.Dispatcher
	dispatchPolicy dispatch.Policy
	closers        []func() error
}

// Option defines a functional option for configuring an Engine.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		dispatchPolicy: dispatch.PolicyBoth,
	}
}

// WithStorage injects the storage factory backing all entities.
func WithStorage(factory core.StorageFactory) Option {
	return func(o *options) { o.factory = factory }
}

// WithLister injects the backend's entity enumeration, used by
// Engine.List. The config loader wires this automatically.
func WithLister(l ListFunc) Option {
	return func(o *options) { o.lister = l }
}

// WithLogger sets the logger shared by the bus, the entities and the
// dispatch middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDispatcher installs the outbound dispatch middleware with the given
// default policy.
func WithDispatcher(d dispatch.Dispatcher, policy dispatch.Policy) Option {
	return func(o *options) {
		o.dispatcher = d
		o.dispatchPolicy = policy
	}
}

// withCloser registers a teardown hook run by Engine.Close. Used by the
// config loader for client connections it opens.
func withCloser(c func() error) Option {
	return func(o *options) { o.closers = append(o.closers, c) }
}
