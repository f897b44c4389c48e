package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/cascadekit/cascade/pkg/bus"
)

// Middleware returns the bus middleware implementing outbound delivery.
// Events whose metadata carries MetadataDispatchURL are handed to d exactly
// once; the effective policy (per-event metadata, falling back to
// defaultPolicy) decides whether local handlers still run. Delivery failures
// are recorded under MetadataDispatchError and never abort local handling.
func Middleware(d Dispatcher, defaultPolicy Policy, logger *slog.Logger) bus.Middleware {
	return func(ctx context.Context, ec *bus.EventContext, next bus.Next) error {
		target, ok := ec.Metadata(MetadataDispatchURL)
		if !ok {
			return next()
		}
		url, ok := target.(string)
		if !ok || url == "" {
			return next()
		}
		if dispatched, _ := ec.Metadata(MetadataDispatched); dispatched == true {
			return next()
		}

		policy := defaultPolicy
		if raw, ok := ec.Metadata(MetadataDispatchPolicy); ok {
			if p, ok := raw.(string); ok {
				policy = Policy(p)
			}
		}

		entityName := ""
		if ec.Entity() != nil {
			entityName = ec.Entity().Name()
		}
		env := Envelope{
			ID:       ec.ID(),
			Type:     ec.Type(),
			Entity:   entityName,
			Payload:  ec.Payload(),
			Metadata: exportMetadata(ec),
			Time:     time.Now().UTC(),
		}

		ec.SetMetadata(MetadataDispatched, true)
		if err := d.Dispatch(ctx, url, env); err != nil {
			ec.SetMetadata(MetadataDispatchError, err.Error())
			if logger != nil {
				logger.Error("dispatch failed", "event", ec.Type(), "target", url, "error", err)
			}
			// Failed external delivery still falls through to local
			// handlers, whatever the policy.
			return next()
		}
		if logger != nil {
			logger.Debug("event dispatched", "event", ec.Type(), "target", url, "policy", policy)
		}

		if policy == PolicyDirect {
			return nil
		}
		return next()
	}
}

// exportMetadata copies the context metadata minus the routing and
// bookkeeping keys, so the receiving side does not re-dispatch.
func exportMetadata(ec *bus.EventContext) map[string]any {
	out := ec.MetadataAll()
	delete(out, MetadataDispatchURL)
	delete(out, MetadataDispatched)
	delete(out, bus.MetadataHandlerErrors)
	return out
}
