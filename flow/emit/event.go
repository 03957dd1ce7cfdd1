// Package emit provides pluggable observability for Flow graph execution:
// node lifecycle events (init/process/release, cache hit/miss, errors) are
// emitted to whatever backend the caller configures.
package emit

// Event represents one observability event emitted during graph execution:
// a node entering/leaving a lifecycle phase, a cache hit or miss, or an
// error.
type Event struct {
	// BatchItem identifies which batch item this event belongs to, or -1
	// for a single RunUpTo call outside batch mode and for events not tied
	// to one item (release, batch_cancelled).
	BatchItem int

	// NodeID is the node that emitted this event, or -1 for graph-level
	// events.
	NodeID int

	// NodeName is the node's human-readable name, empty for graph-level
	// events.
	NodeName string

	// Msg is a short, machine-greppable event name, e.g. "init", "process",
	// "release", "cache_hit", "cache_miss", "batch_cancelled".
	Msg string

	// Meta carries event-specific structured data, e.g. "duration_ms",
	// "fingerprint", "error".
	Meta map[string]interface{}
}
