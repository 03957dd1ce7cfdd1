package flow

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/dshills/flow/emit"
)

// RunUpTo walks target's ancestors in topological order, resolving each
// node's output from the value store's cache or, on a miss, by lazily
// initializing the node and calling its Process step. It returns target's
// adopted output.
//
// A node's process failure aborts the whole call with a NodeError
// identifying the failing node; already-persisted upstream outputs are
// retained untouched. No two Process calls overlap — the graph's Executor
// surface is single-threaded by design (see the concurrency non-goal).
func (g *Graph) RunUpTo(ctx context.Context, target int) (any, error) {
	order, err := g.TopologicalSort(target)
	if err != nil {
		return nil, err
	}

	outputs := make(map[int]any, len(order))
	fps := make(map[int]string, len(order))
	for _, id := range order {
		out, err := g.evalNode(ctx, id, outputs, fps, -1)
		if err != nil {
			return nil, err
		}
		outputs[id] = out
	}
	return outputs[target], nil
}

// evalNode resolves node id's output, given the already-computed outputs
// and fingerprints of its ancestors in resolved/fps. Both maps are scoped
// to a single evaluation pass — one RunUpTo call, or one batch item's
// slice of itemOutputs/itemFPs — so a node reference is always resolved
// against the same item's fingerprint, never a sibling item's. batchItem
// is -1 outside batch mode and is only used for observability labeling.
func (g *Graph) evalNode(ctx context.Context, id int, resolved map[int]any, fps map[int]string, batchItem int) (any, error) {
	n := g.nodes[id]

	if n.isConstant {
		fps[id] = n.constantFP
		return n.constantVal, nil
	}

	inputs := make(map[string]any, len(n.bindings))
	refFPs := make(map[string]any, len(n.bindings))
	for param, b := range n.bindings {
		if b.IsRef {
			inputs[param] = resolved[b.RefID]
			refFPs[param] = refValue{fp: fps[b.RefID]}
		} else {
			inputs[param] = b.Literal
			refFPs[param] = b.Literal
		}
	}

	fp, err := fingerprint(n.name, n.kind.Version(), refFPs)
	if err != nil {
		return nil, err
	}
	n.lastFP = fp
	fps[id] = fp

	if raw, ok, err := g.store.Lookup(ctx, n.id, fp); err != nil {
		return nil, err
	} else if ok {
		g.tracker.recordCacheHit(n.name)
		g.metrics.recordCacheHit(n.name)
		g.emitter.Emit(emit.Event{BatchItem: batchItem, NodeID: n.id, NodeName: n.name, Msg: "cache_hit", Meta: map[string]interface{}{"fingerprint": fp}})
		value, err := decodeValue(n.kind, raw)
		if err != nil {
			return nil, err
		}
		return value, nil
	}

	g.tracker.recordCacheMiss(n.name)
	g.metrics.recordCacheMiss(n.name)
	g.emitter.Emit(emit.Event{BatchItem: batchItem, NodeID: n.id, NodeName: n.name, Msg: "cache_miss", Meta: map[string]interface{}{"fingerprint": fp}})

	if n.phase != phaseInitialized {
		if err := g.initNode(ctx, n, batchItem); err != nil {
			return nil, err
		}
	}

	value, err := g.processWithRetry(ctx, n, inputs, fp, batchItem)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeValue(n.kind, value)
	if err != nil {
		return nil, err
	}
	if err := g.store.Store(ctx, n.id, fp, encoded); err != nil {
		return nil, err
	}
	return value, nil
}

// fingerprintOf returns node id's fingerprint as of its most recent
// evaluation through RunUpTo. Only meaningful for single-target runs: a
// node evaluated as part of a BatchRunner sweep is evaluated once per
// item, so this reflects only the last item processed. Batch-internal ref
// resolution never consults this — see evalNode's fps parameter.
func (g *Graph) fingerprintOf(id int) string {
	n := g.nodes[id]
	if n.isConstant {
		return n.constantFP
	}
	return n.lastFP
}

func (g *Graph) initNode(ctx context.Context, n *node, batchItem int) error {
	state, err := n.kind.Init(ctx, n.kwargs)
	if err != nil {
		return &ResourceError{NodeID: n.id, NodeName: n.name, Phase: "init", Cause: err}
	}
	n.state = state
	n.phase = phaseInitialized
	g.tracker.recordInit(n.name)
	g.metrics.recordInit(n.name)
	g.emitter.Emit(emit.Event{BatchItem: batchItem, NodeID: n.id, NodeName: n.name, Msg: "init"})
	g.updateResidentGauge()
	return nil
}

func (g *Graph) processWithRetry(ctx context.Context, n *node, inputs map[string]any, fp string, batchItem int) (any, error) {
	retry := n.retry
	if retry == nil {
		retry = g.defaultRetry
	}
	maxAttempts := 1
	if retry != nil {
		maxAttempts = retry.MaxAttempts
	}
	timeout := getNodeTimeout(n.timeout, g.defaultTimeout)

	var lastErr error
	var rng *rand.Rand
attemptLoop:
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		value, err := runProcessWithTimeout(ctx, n, inputs, timeout)
		latency := time.Since(start)

		status := "success"
		if err != nil {
			status = "error"
		}
		g.tracker.recordProcess(n.name, latency)
		g.metrics.recordProcessLatency(n.name, latency, status)
		g.emitter.Emit(emit.Event{
			BatchItem: batchItem, NodeID: n.id, NodeName: n.name, Msg: "process",
			Meta: map[string]interface{}{"duration_ms": latency.Milliseconds(), "status": status, "attempt": attempt},
		})

		if err == nil {
			return value, nil
		}
		lastErr = err
		if !retry.shouldRetry(attempt, err) {
			break
		}
		if rng == nil {
			rng = rand.New(rand.NewSource(int64(n.id)))
		}
		delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, rng)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attemptLoop
		case <-time.After(delay):
		}
	}
	return nil, &NodeError{NodeID: n.id, NodeName: n.name, Fingerprint: fp, Cause: lastErr}
}

func decodeValue(kind ProcessorKind, raw []byte) (any, error) {
	if enc, ok := kind.(Encoder); ok {
		return enc.Decode(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeValue(kind ProcessorKind, value any) ([]byte, error) {
	if enc, ok := kind.(Encoder); ok {
		return enc.Encode(value)
	}
	return json.Marshal(value)
}
