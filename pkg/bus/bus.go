// Package bus implements the pattern-matching event bus: ordered handler
// registrations, onion-nested middleware and synchronous depth-first event
// cascades.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cascadekit/cascade/pkg/bus/pattern"
	"github.com/cascadekit/cascade/pkg/core"
)

// HandlerFunc is an event handler body. A returned error is caught at the
// per-handler boundary: it is logged, recorded in the context metadata and
// never aborts the dispatch.
type HandlerFunc func(ctx context.Context, ec *EventContext) error

// Filter gates a handler. All filters of a registration must pass
// (conjunction, short-circuiting on the first false). A filter error skips
// the handler and is recorded like a handler failure.
type Filter func(ctx context.Context, ec *EventContext) (bool, error)

// Next resumes the dispatch pipeline from inside a middleware. Not calling
// it short-circuits everything inward.
type Next func() error

// Middleware wraps the whole dispatch of one emit. Middleware registered
// first becomes the outermost layer. An error returned by middleware
// propagates out of Emit and aborts the rest of the dispatch.
type Middleware func(ctx context.Context, ec *EventContext, next Next) error

// Registration is the handle returned when a handler is registered.
type Registration struct {
	name     string
	patterns []pattern.Pattern
	filters  []Filter
	handler  HandlerFunc
}

// Name returns the registration's label, either the one given via the
// builder or a generated "handler-N".
func (r *Registration) Name() string { return r.name }

// Patterns returns the original pattern strings of the registration.
func (r *Registration) Patterns() []string {
	out := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		out[i] = p.String()
	}
	return out
}

// Bus routes emitted events to matching handlers through the middleware
// chain. Each Bus owns its own registries; construct as many independent
// instances as needed (there is no process-wide bus).
//
// Dispatch itself is synchronous and single-flighted per Emit call:
// handlers run one at a time in registration order, and cascaded emits
// resolve depth-first before the outer call returns.
type Bus struct {
	logger *slog.Logger

	mu         sync.Mutex
	handlers   []*Registration
	middleware []Middleware
	seq        int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for handler failures. A nil logger
// silences the bus.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// New creates an empty bus.
func New(opts ...BusOption) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a handler for the given patterns, optionally gated by
// filters. Registration order is execution order among matches. The
// returned handle identifies the registration; unregistration is not
// supported.
func (b *Bus) Register(patterns []string, h HandlerFunc, filters ...Filter) (*Registration, error) {
	return b.register("", patterns, h, filters)
}

func (b *Bus) register(name string, raws []string, h HandlerFunc, filters []Filter) (*Registration, error) {
	if h == nil {
		return nil, fmt.Errorf("nil handler")
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("no patterns given")
	}
	patterns, err := pattern.CompileAll(raws)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	if name == "" {
		name = fmt.Sprintf("handler-%d", b.seq)
	}
	reg := &Registration{
		name:     name,
		patterns: patterns,
		filters:  filters,
		handler:  h,
	}
	b.handlers = append(b.handlers, reg)
	return reg, nil
}

// Use appends a middleware to the chain. The first middleware added is the
// outermost layer of the onion.
func (b *Bus) Use(mw Middleware) {
	if mw == nil {
		return
	}
	b.mu.Lock()
	b.middleware = append(b.middleware, mw)
	b.mu.Unlock()
}

// Emit dispatches one event and blocks until every handler has completed,
// including handlers of events transitively emitted by those handlers.
//
// The middleware chain runs exactly once per Emit even when no handler
// matches the event type, wrapping a no-op execution; cross-cutting
// middleware therefore observes every emitted event. Only middleware
// errors surface to the caller; handler and filter failures are isolated,
// logged and collected under MetadataHandlerErrors.
func (b *Bus) Emit(ctx context.Context, eventType string, entity core.Entity, payload, metadata map[string]core.Value) error {
	if eventType == "" {
		return fmt.Errorf("empty event type")
	}

	b.mu.Lock()
	handlers := make([]*Registration, len(b.handlers))
	copy(handlers, b.handlers)
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.Unlock()

	ec := newEventContext(b, eventType, entity, payload, metadata)

	var matched []*Registration
	for _, reg := range handlers {
		if pattern.MatchAny(reg.patterns, eventType) {
			matched = append(matched, reg)
		}
	}

	exec := func() error {
		for _, reg := range matched {
			b.runHandler(ctx, ec, reg)
		}
		return nil
	}

	// Onion nesting: the first registered middleware wraps everything
	// else, so it runs its "before" code first and its "after" code last.
	wrapped := Next(exec)
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		inner := wrapped
		wrapped = func() error {
			return mw(ctx, ec, inner)
		}
	}

	return wrapped()
}

// runHandler evaluates a registration's filter chain and executes its body,
// absorbing failures at the per-handler boundary.
func (b *Bus) runHandler(ctx context.Context, ec *EventContext, reg *Registration) {
	for _, f := range reg.filters {
		ok, err := f(ctx, ec)
		if err != nil {
			ferr := &core.FilterError{EventType: ec.Type(), Handler: reg.name, Err: err}
			ec.recordError(ferr)
			if b.logger != nil {
				b.logger.Warn("filter failed, skipping handler",
					"event", ec.Type(), "handler", reg.name, "error", err)
			}
			return
		}
		if !ok {
			return
		}
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return reg.handler(ctx, ec)
	}()
	if err != nil {
		herr := &core.HandlerError{EventType: ec.Type(), Handler: reg.name, Err: err}
		ec.recordError(herr)
		if b.logger != nil {
			b.logger.Error("handler failed",
				"event", ec.Type(), "handler", reg.name, "error", err)
		}
	}
}
