package flow

import (
	"context"
	"errors"

	"github.com/dshills/flow/emit"
	"github.com/google/uuid"
)

// ShouldReleaseBetween decides, after a BatchRunner finishes sweeping
// level node across every item, whether resources must be freed before the
// next level (identified by next) begins. next is nil after the final
// level. The default policy (defaultReleasePolicy) releases after every
// level.
type ShouldReleaseBetween func(node *NodeInfo, next *NodeInfo) bool

// NodeInfo is the read-only view of a node exposed to ShouldReleaseBetween
// and to Prepare hooks that want to classify nodes without reaching into
// Graph internals.
type NodeInfo struct {
	ID   int
	Name string
}

// defaultReleasePolicy releases after every level, including the last, so a
// finished BatchRunner always leaves the graph with no resident nodes. This
// is always correct (never violates the one-init-per-node invariant) though
// more conservative than necessary when consecutive nodes share a cheap
// resource family. Callers with expensive nodes that can coexist across
// levels should supply a custom policy via WithShouldReleaseBetween.
func defaultReleasePolicy(node *NodeInfo, next *NodeInfo) bool {
	return true
}

// PrepareFunc re-establishes one item's context before it is evaluated at
// a node: it must (re-)bind the value store to the item's persistence
// location and set any constant nodes from item. Since the store's bound
// location is shared across items within a level, PrepareFunc runs once
// per (node, item) pair — not once per item for the whole batch — so that
// switching between items mid-level always repoints the store correctly.
type PrepareFunc func(ctx context.Context, index int, item any) error

// BatchRunner drives an Executor's Graph over an ordered sequence of items
// using a breadth-first strategy: for each node in the union topological
// order, it runs every item through that single node before moving to the
// next node, amortizing each node's Init cost to at most once between
// release_resources calls regardless of batch size.
type BatchRunner struct {
	graph                *Graph
	targets              []int
	prepare              PrepareFunc
	release              ShouldReleaseBetween
	abortOnResourceError bool
}

// NewBatchRunner returns a BatchRunner over graph, evaluating targets for
// every item, using prepare to bind each item's persistence location and
// constants. Pass WithAbortOnResourceError to abort the whole batch on the
// first init/release failure instead of the default per-item isolation.
func NewBatchRunner(graph *Graph, targets []int, prepare PrepareFunc, opts ...Option) (*BatchRunner, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	release := cfg.releasePolicy
	if release == nil {
		release = defaultReleasePolicy
	}
	return &BatchRunner{
		graph:                graph,
		targets:              targets,
		prepare:              prepare,
		release:              release,
		abortOnResourceError: cfg.abortOnResourceError,
	}, nil
}

// Failure records one item's inability to reach its targets.
type Failure struct {
	Index       int
	Item        any
	FailingNode int
	Err         error
}

// Report is the BatchRunner's result: which items completed and which
// failed, with enough detail to retry or inspect a failure.
type Report struct {
	// RunID identifies this batch invocation for tracing/log correlation.
	// Generated automatically unless the caller supplies one via WithRunID.
	RunID     string
	Successes []int
	Failures  []Failure
}

// WithRunID overrides the auto-generated run id tagged onto this Run
// call's Report. Emitted events do not carry the run id.
func WithRunID(id string) RunOption {
	return func(rc *runConfig) { rc.runID = id }
}

// RunOption configures a single BatchRunner.Run call.
type RunOption func(*runConfig)

type runConfig struct {
	resumeSkip map[int]bool
	runID      string
}

// WithResume skips every item index already recorded as a success in prev,
// letting a caller re-run a batch after fixing whatever caused its
// failures without re-paying Init/Process cost for items that already
// reached their targets. Flow has no mid-node checkpointing (Process is
// atomic per spec), so resume granularity is whole-item, not whole-node.
func WithResume(prev *Report) RunOption {
	return func(rc *runConfig) {
		if prev == nil {
			return
		}
		for _, idx := range prev.Successes {
			rc.resumeSkip[idx] = true
		}
	}
}

// Run executes the breadth-first sweep described in the package's
// BatchRunner documentation, returning a Report. A per-item NodeError is
// isolated to that item (recorded as a Failure) and does not abort the
// batch. A ResourceError is isolated the same way by default; if the
// runner was built with WithAbortOnResourceError, a ResourceError instead
// releases resources and aborts the whole Run immediately, since an
// init/release failure (e.g. GPU unavailable) may not be recoverable by
// moving on to the next item. ctx cancellation is observed between items
// and between nodes within an item; every Store call has already returned
// by then, so on cancel the runner releases resources and returns the
// partial report.
func (br *BatchRunner) Run(ctx context.Context, items []any, opts ...RunOption) (*Report, error) {
	rc := &runConfig{resumeSkip: make(map[int]bool)}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.runID == "" {
		rc.runID = uuid.NewString()
	}

	order, err := br.graph.unionTopologicalSort(br.targets)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: rc.runID}
	failed := make(map[int]bool, len(items))
	// itemOutputs[index] accumulates each item's per-node outputs across
	// levels, since RunUpTo's normal single-call accumulation can't span
	// the breadth-first sweep. itemFPs[index] does the same for each
	// node's fingerprint: evalNode's ref resolution reads a node's
	// fingerprint from this map, never from the node struct's own
	// lastFP field, since the breadth-first sweep evaluates one node
	// across every item before moving on — a shared per-node field would
	// hold only the last item's fingerprint by the time a downstream
	// node consults it for an earlier item.
	itemOutputs := make([]map[int]any, len(items))
	itemFPs := make([]map[int]string, len(items))
	for i := range itemOutputs {
		itemOutputs[i] = make(map[int]any)
		itemFPs[i] = make(map[int]string)
	}
	lastLevel := len(order) - 1
	completed := make(map[int]bool, len(items))
	for idx := range rc.resumeSkip {
		if idx >= 0 && idx < len(items) {
			completed[idx] = true
		}
	}

	for levelIdx, id := range order {
		for index, item := range items {
			if failed[index] || rc.resumeSkip[index] {
				continue
			}
			select {
			case <-ctx.Done():
				return br.finishOnCancel(ctx, report, completed)
			default:
			}

			if err := br.prepare(ctx, index, item); err != nil {
				failed[index] = true
				report.Failures = append(report.Failures, Failure{Index: index, Item: item, FailingNode: id, Err: err})
				br.graph.metrics.recordBatchFailure(br.graph.nodes[id].name)
				continue
			}

			out, err := br.graph.evalNode(ctx, id, itemOutputs[index], itemFPs[index], index)
			if err != nil {
				failed[index] = true
				report.Failures = append(report.Failures, Failure{Index: index, Item: item, FailingNode: id, Err: err})
				br.graph.metrics.recordBatchFailure(br.graph.nodes[id].name)
				var resErr *ResourceError
				if br.abortOnResourceError && errors.As(err, &resErr) {
					_ = br.graph.ReleaseResources(ctx)
					return report, err
				}
				continue
			}
			itemOutputs[index][id] = out
			if levelIdx == lastLevel {
				completed[index] = true
			}
		}

		var nextInfo *NodeInfo
		if levelIdx+1 < len(order) {
			nextID := order[levelIdx+1]
			nextInfo = &NodeInfo{ID: nextID, Name: br.graph.nodes[nextID].name}
		}
		curInfo := &NodeInfo{ID: id, Name: br.graph.nodes[id].name}
		if br.release(curInfo, nextInfo) {
			if err := br.graph.ReleaseResources(ctx); err != nil {
				return report, err
			}
		}
	}

	for index := range items {
		if completed[index] {
			report.Successes = append(report.Successes, index)
		}
	}
	return report, nil
}

func (br *BatchRunner) finishOnCancel(ctx context.Context, report *Report, completed map[int]bool) (*Report, error) {
	_ = br.graph.ReleaseResources(ctx)
	for index := range completed {
		report.Successes = append(report.Successes, index)
	}
	br.graph.emitter.Emit(emit.Event{BatchItem: -1, NodeID: -1, Msg: "batch_cancelled"})
	return report, ctx.Err()
}
