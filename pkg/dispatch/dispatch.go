// Package dispatch delivers events to external sinks. A Dispatcher
// serializes one event to a target address; Middleware watches event
// metadata for a dispatch request and routes delivery around or alongside
// local handlers.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cascadekit/cascade/pkg/core"
)

// Metadata keys driving the dispatch middleware.
const (
	// MetadataDispatchURL requests external delivery to its value.
	MetadataDispatchURL = "dispatch_url"
	// MetadataDispatchPolicy selects PolicyDirect or PolicyBoth per event,
	// overriding the middleware default.
	MetadataDispatchPolicy = "dispatch_policy"
	// MetadataDispatched marks an event as already delivered, so relayed
	// re-emits do not dispatch twice.
	MetadataDispatched = "dispatch_executed"
	// MetadataDispatchError records a delivery failure. Local handling
	// proceeds regardless.
	MetadataDispatchError = "dispatch_error"
)

// Policy decides what happens to local handlers when an event is delivered
// externally.
type Policy string

const (
	// PolicyDirect delivers externally only; local handlers are skipped.
	PolicyDirect Policy = "direct"
	// PolicyBoth delivers externally and runs local handlers too.
	PolicyBoth Policy = "both"
)

// Envelope is the serialized form of one event crossing the process
// boundary.
type Envelope struct {
	ID       string                `json:"id"`
	Type     string                `json:"type"`
	Entity   string                `json:"entity,omitempty"`
	Payload  map[string]core.Value `json:"payload,omitempty"`
	Metadata map[string]core.Value `json:"metadata,omitempty"`
	Time     time.Time             `json:"time"`
}

// Dispatcher sends one envelope to an external target address.
type Dispatcher interface {
	Dispatch(ctx context.Context, target string, env Envelope) error
}

// HTTPDispatcher posts JSON envelopes to the target URL.
type HTTPDispatcher struct {
	client *http.Client
}

// HTTPOption configures an HTTPDispatcher.
type HTTPOption func(*HTTPDispatcher)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(d *HTTPDispatcher) { d.client = c }
}

// NewHTTPDispatcher creates the default HTTP dispatcher.
func NewHTTPDispatcher(opts ...HTTPOption) *HTTPDispatcher {
	d := &HTTPDispatcher{client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// Dispatch posts the envelope. Any non-2xx response is a delivery failure.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, target string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cascade-Event-Id", env.ID)
	req.Header.Set("X-Cascade-Event-Type", env.Type)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %s", target, resp.Status)
	}
	return nil
}
