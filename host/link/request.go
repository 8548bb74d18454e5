package link

import (
	"context"
	"fmt"
	"time"

	"stackctl/protocol"
)

// DefaultRequestPollInterval is how often SendAndWait checks the inbound queue
const DefaultRequestPollInterval = 10 * time.Millisecond

// Endpoint is the part of a Transport used by the request helpers
type Endpoint interface {
	Send(msg protocol.Message)
	Receive() (Inbound, bool)
}

var _ Endpoint = (*Transport)(nil)

// WaitError is returned when a wait ends without a message. LastEvent is the
// most recent connection event seen while waiting, if any.
type WaitError struct {
	LastEvent *Event
	Err       error
}

func (e *WaitError) Error() string {
	if e.LastEvent != nil {
		return fmt.Sprintf("no response: %v (last event: %s)", e.Err, e.LastEvent)
	}
	return fmt.Sprintf("no response: %v", e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

type waitOptions struct {
	poll     time.Duration
	observer func(Event)
	metrics  *Metrics
}

// WaitOption configures SendAndWait and WaitForMessage
type WaitOption func(*waitOptions)

// WithPollInterval sets how often the inbound queue is polled
func WithPollInterval(d time.Duration) WaitOption {
	return func(o *waitOptions) {
		if d > 0 {
			o.poll = d
		}
	}
}

// WithObserver receives every connection event consumed while waiting
func WithObserver(fn func(Event)) WaitOption {
	return func(o *waitOptions) { o.observer = fn }
}

// WithMetrics records the request round trip
func WithMetrics(m *Metrics) WaitOption {
	return func(o *waitOptions) { o.metrics = m }
}

// SendAndWait sends msg and returns the first message that arrives after it.
// Connection events received in the meantime go to the observer and are
// otherwise skipped. The wait ends only when a message arrives or ctx is done.
func SendAndWait(ctx context.Context, ep Endpoint, msg protocol.Message, opts ...WaitOption) (protocol.Message, error) {
	o := waitOptions{poll: DefaultRequestPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	ep.Send(msg)
	reply, err := wait(ctx, ep, o)
	o.metrics.ObserveRequest(msg.Kind.String(), err == nil, time.Since(start))
	return reply, err
}

// WaitForMessage returns the next message from ep, skipping events
func WaitForMessage(ctx context.Context, ep Endpoint, opts ...WaitOption) (protocol.Message, error) {
	o := waitOptions{poll: DefaultRequestPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return wait(ctx, ep, o)
}

func wait(ctx context.Context, ep Endpoint, o waitOptions) (protocol.Message, error) {
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	var last *Event
	for {
		select {
		case <-ctx.Done():
			return protocol.Message{}, &WaitError{LastEvent: last, Err: ctx.Err()}
		case <-ticker.C:
		}

		for {
			in, ok := ep.Receive()
			if !ok {
				break
			}
			if in.Event != nil {
				last = in.Event
				if o.observer != nil {
					o.observer(*in.Event)
				}
				continue
			}
			if in.Message != nil {
				return *in.Message, nil
			}
		}
	}
}
