package adapter

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetries is the number of extra attempts adapters make for
// retriable notifications.
const DefaultRetries = 3

// DefaultBackoff is the wait before the first retry. It doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// Delivery is the retry policy shared by adapters.
type Delivery struct {
	// Retries is the number of extra attempts for retriable notifications.
	Retries int
	// Backoff is the wait before the first retry (default DefaultBackoff).
	Backoff time.Duration
	// Permanent reports errors that a retry cannot fix. Optional.
	Permanent func(error) bool
}

// Retriable reports whether n is worth resending after a failure. Record
// batches are a live tap and are sent once; a failed batch is dropped.
func (n *Notification) Retriable() bool {
	return n.EventType != EventRecords
}

// Attempts returns how many sends n gets under d.
func (d Delivery) Attempts(n *Notification) int {
	if !n.Retriable() {
		return 1
	}
	return 1 + max(d.Retries, 0)
}

// DeliveryError reports a notification that could not be published.
type DeliveryError struct {
	Event    EventType
	Attempts int
	// Permanent is set when send failed with an error Delivery.Permanent
	// rejected.
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("deliver %s: non-retriable error: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("deliver %s: failed after %d attempt(s): %v", e.Event, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Deliver calls send until it succeeds, the attempts for n run out, or ctx
// ends. send receives ctx unchanged; per-attempt deadlines are the caller's.
func (d Delivery) Deliver(ctx context.Context, n *Notification, send func(context.Context) error) error {
	attempts := d.Attempts(n)
	wait := d.Backoff
	if wait <= 0 {
		wait = DefaultBackoff
	}

	var lastErr error
	for i := range attempts {
		if i > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return &DeliveryError{Event: n.EventType, Attempts: i, Err: ctx.Err()}
			case <-timer.C:
			}
			wait *= 2
		}
		if err := ctx.Err(); err != nil {
			return &DeliveryError{Event: n.EventType, Attempts: i, Err: err}
		}

		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}
		if d.Permanent != nil && d.Permanent(lastErr) {
			return &DeliveryError{Event: n.EventType, Attempts: i + 1, Permanent: true, Err: lastErr}
		}
	}
	return &DeliveryError{Event: n.EventType, Attempts: attempts, Err: lastErr}
}
