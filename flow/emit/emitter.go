package emit

import "context"

// Emitter receives observability events from graph execution. Emit must
// not block execution; implementations that need to do I/O should buffer
// and flush asynchronously.
type Emitter interface {
	// Emit sends a single event. Implementations must not panic.
	Emit(event Event)

	// EmitBatch sends multiple events at once, in order. Returns an error
	// only on catastrophic failures (e.g. a misconfigured backend); a
	// per-event delivery failure should be logged internally, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered or ctx expires.
	// Safe to call multiple times.
	Flush(ctx context.Context) error
}
