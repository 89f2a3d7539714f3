// Package adapter defines the notification boundary.
//
// Adapters publish a harvest completion notice to downstream systems once
// a run has finished. The runtime owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventType is the event_type of every notice.
const EventType = "harvest_completed"

// HarvestCompletedEvent is the payload published when a run finishes.
type HarvestCompletedEvent struct {
	Version     string `json:"version"`
	EventType   string `json:"event_type"` // always "harvest_completed"
	RunID       string `json:"run_id"`
	Index       string `json:"index"`
	Mode        string `json:"mode"`
	Day         string `json:"day"`
	Outcome     string `json:"outcome"` // success, index_not_found, etc.
	ExitCode    int    `json:"exit_code"`
	StoragePath string `json:"storage_path,omitempty"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	Emitted     int64  `json:"emitted"`
	Missing     int    `json:"missing"`
	Remaining   int    `json:"remaining"`
	DurationMs  int64  `json:"duration_ms"`
}

// Adapter publishes harvest completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *HarvestCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff is the wait before retry attempt i (1-based): 500ms doubling.
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Retry runs op up to 1+retries times with Backoff between attempts.
// permanent reports errors that must not be retried; it may be nil.
// name prefixes every returned error.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, op func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Multi publishes to several adapters. Every adapter is attempted; the
// failures are joined.
type Multi []Adapter

// Publish implements Adapter.
func (m Multi) Publish(ctx context.Context, event *HarvestCompletedEvent) error {
	var errs []error
	for _, a := range m {
		errs = append(errs, a.Publish(ctx, event))
	}
	return errors.Join(errs...)
}

// Close implements Adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}

// Verify Multi implements Adapter.
var _ Adapter = Multi(nil)
