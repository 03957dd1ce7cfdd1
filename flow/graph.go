package flow

import (
	"context"
	"sort"
	"time"

	"github.com/dshills/flow/emit"
	"github.com/dshills/flow/store"
)

// Graph is the DAG of nodes: a mapping from node id to node plus each
// node's input bindings. Graphs are not safe for concurrent use; a graph
// is evaluated by at most one Executor/BatchRunner at a time.
type Graph struct {
	nodes map[int]*node
	order []int // insertion order, for stable iteration/debugging only

	store   store.Store
	emitter emit.Emitter
	metrics *PrometheusMetrics
	tracker *ResourceTracker

	defaultTimeout time.Duration
	defaultRetry   *RetryPolicy
}

// NewGraph returns an empty graph backed by s. Pass options shared with
// Executor/BatchRunner (WithEmitter, WithMetrics, WithResourceTracker) to
// wire observability through every RunUpTo/BatchRunner call made against
// this graph.
func NewGraph(s store.Store, opts ...Option) (*Graph, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Graph{
		nodes:          make(map[int]*node),
		store:          s,
		emitter:        cfg.emitter,
		metrics:        cfg.metrics,
		tracker:        cfg.tracker,
		defaultTimeout: cfg.defaultTimeout,
		defaultRetry:   cfg.defaultRetry,
	}, nil
}

// AddConstantNode adds a node holding a directly-set value of arbitrary
// type. A constant has no bindings; its process step is identity over its
// stored value.
func (g *Graph) AddConstantNode(id int, name string, value any) error {
	if _, exists := g.nodes[id]; exists {
		return &ConstructionError{NodeID: id, Code: "DUPLICATE_ID", Message: "node id already in graph"}
	}
	n := &node{id: id, name: name, isConstant: true}
	if err := n.setConstant(value); err != nil {
		return err
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return nil
}

// AddNodeOption configures one AddNode call.
type AddNodeOption func(*node)

// WithRetry attaches a RetryPolicy to the node being added.
func WithRetry(rp *RetryPolicy) AddNodeOption {
	return func(n *node) { n.retry = rp }
}

// WithTimeout attaches a per-node process timeout, overriding the
// Executor/BatchRunner default.
func WithTimeout(d time.Duration) AddNodeOption {
	return func(n *node) { n.timeout = d }
}

// AddNode adds a processor node built from kind, bound via bindings.
// Bindings are validated against kind's declared input schema immediately;
// a binding for an unknown parameter, a missing parameter, or a
// type-mismatched literal is a ConstructionError and the graph is left
// unchanged. Adding a node that would introduce a cycle is also rejected.
func (g *Graph) AddNode(id int, name string, kind ProcessorKind, bindings map[string]Binding, kwargs map[string]any, opts ...AddNodeOption) error {
	if _, exists := g.nodes[id]; exists {
		return &ConstructionError{NodeID: id, Code: "DUPLICATE_ID", Message: "node id already in graph"}
	}
	if err := validateBindings(id, kind.InputSchema(), bindings); err != nil {
		return err
	}
	for _, b := range bindings {
		if b.IsRef {
			if _, ok := g.nodes[b.RefID]; !ok {
				return &ConstructionError{NodeID: id, Code: "UNKNOWN_REF", Message: "binding references a node id not yet in the graph"}
			}
		}
	}

	n := &node{
		id:       id,
		name:     name,
		kind:     kind,
		bindings: cloneBindings(bindings),
		kwargs:   kwargs,
	}
	for _, opt := range opts {
		opt(n)
	}

	g.nodes[id] = n
	g.order = append(g.order, id)

	if err := g.checkAcyclic(id); err != nil {
		delete(g.nodes, id)
		g.order = g.order[:len(g.order)-1]
		return err
	}
	return nil
}

func cloneBindings(b map[string]Binding) map[string]Binding {
	out := make(map[string]Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// checkAcyclic runs a DFS from startID reachable via incoming reference
// edges (ancestor direction) and reports a ConstructionError if a cycle is
// found. Since bindings may only reference ids already in the graph at
// AddNode time, the only way a cycle can appear is if startID is
// (transitively) its own ancestor — impossible under that ordering
// discipline, but checked explicitly to fail loudly on any future relaxation
// (e.g. forward-reference wiring).
func (g *Graph) checkAcyclic(startID int) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(g.nodes))
	var visit func(id int) error
	visit = func(id int) error {
		color[id] = gray
		n := g.nodes[id]
		for _, b := range n.bindings {
			if !b.IsRef {
				continue
			}
			switch color[b.RefID] {
			case gray:
				return &ConstructionError{NodeID: id, Code: "CYCLE", Message: "adding this node introduces a cycle"}
			case white:
				if err := visit(b.RefID); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	return visit(startID)
}

// TopologicalSort returns target and every one of its ancestors, ancestors
// before descendants, with ties broken by ascending node id.
func (g *Graph) TopologicalSort(target int) ([]int, error) {
	if _, ok := g.nodes[target]; !ok {
		return nil, ErrNotInGraph
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[int]int, len(g.nodes))
	var order []int

	var visit func(id int) error
	visit = func(id int) error {
		if state[id] == visited {
			return nil
		}
		if state[id] == visiting {
			return &ConstructionError{NodeID: id, Code: "CYCLE", Message: "cycle detected during topological sort"}
		}
		state[id] = visiting

		n, ok := g.nodes[id]
		if !ok {
			return ErrNotInGraph
		}
		refs := make([]int, 0, len(n.bindings))
		for _, b := range n.bindings {
			if b.IsRef {
				refs = append(refs, b.RefID)
			}
		}
		sort.Ints(refs)
		for _, r := range refs {
			if err := visit(r); err != nil {
				return err
			}
		}

		state[id] = visited
		order = append(order, id)
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}
	return order, nil
}

// Rebind changes one existing processor node's binding for param, e.g. to
// reassign an input from one upstream node to another between runs. The
// new binding is type-checked against the node's declared schema and the
// whole graph is re-checked for cycles; on failure the previous binding is
// restored and the graph is left exactly as it was.
func (g *Graph) Rebind(id int, param string, b Binding) error {
	n, ok := g.nodes[id]
	if !ok {
		return ErrNotInGraph
	}
	if n.isConstant {
		return &ConstructionError{NodeID: id, Code: "NOT_PROCESSOR", Message: "cannot rebind a constant node"}
	}
	prev, hadPrev := n.bindings[param]

	candidate := cloneBindings(n.bindings)
	candidate[param] = b
	if err := validateBindings(id, n.kind.InputSchema(), candidate); err != nil {
		return err
	}
	if b.IsRef {
		if _, ok := g.nodes[b.RefID]; !ok {
			return &ConstructionError{NodeID: id, Code: "UNKNOWN_REF", Message: "binding references a node id not in the graph"}
		}
	}

	n.bindings[param] = b
	if err := g.checkAcyclicFull(); err != nil {
		if hadPrev {
			n.bindings[param] = prev
		} else {
			delete(n.bindings, param)
		}
		return err
	}
	return nil
}

// checkAcyclicFull DFS-checks the entire graph for cycles, used after a
// Rebind that could reintroduce one through an existing node's updated
// binding rather than through AddNode's append-only wiring.
func (g *Graph) checkAcyclicFull() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(g.nodes))
	var visit func(id int) error
	visit = func(id int) error {
		color[id] = gray
		for _, b := range g.nodes[id].bindings {
			if !b.IsRef {
				continue
			}
			switch color[b.RefID] {
			case gray:
				return &ConstructionError{NodeID: id, Code: "CYCLE", Message: "rebinding introduces a cycle"}
			case white:
				if err := visit(b.RefID); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// unionTopologicalSort returns the deterministic topological order of the
// union of every ancestor of every target in targets.
func (g *Graph) unionTopologicalSort(targets []int) ([]int, error) {
	seen := make(map[int]bool)
	var all []int
	for _, t := range targets {
		order, err := g.TopologicalSort(t)
		if err != nil {
			return nil, err
		}
		for _, id := range order {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
	}
	return all, nil
}

// ReleaseResources calls Release on every initialized node and marks them
// released; cached outputs in the value store are untouched.
func (g *Graph) ReleaseResources(ctx context.Context) error {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.isConstant || n.phase != phaseInitialized {
			continue
		}
		if err := n.kind.Release(ctx, n.state); err != nil {
			return &ResourceError{NodeID: n.id, NodeName: n.name, Phase: "release", Cause: err}
		}
		n.state = nil
		n.phase = phaseReleased
		g.tracker.recordRelease(n.name)
		g.metrics.recordRelease(n.name)
		g.emitter.Emit(emit.Event{BatchItem: -1, NodeID: n.id, NodeName: n.name, Msg: "release"})
	}
	g.updateResidentGauge()
	return nil
}

// Persist forwards to the value store's Bind, designating location as the
// active persistence target for subsequent RunUpTo calls.
func (g *Graph) Persist(ctx context.Context, location string) error {
	return g.store.Bind(ctx, location)
}

// SetConstant mutates the value of the constant node with the given id.
// This is the primary mechanism for driving a new item through an existing
// graph: the constant's fingerprint changes, which transitively invalidates
// the value-store cache entries of every descendant the next time RunUpTo
// resolves through it.
func (g *Graph) SetConstant(id int, value any) error {
	n, ok := g.nodes[id]
	if !ok {
		return ErrNotInGraph
	}
	if !n.isConstant {
		return &ConstructionError{NodeID: id, Code: "NOT_CONSTANT", Message: "node is not a constant node"}
	}
	return n.setConstant(value)
}

func (g *Graph) updateResidentGauge() {
	if g.metrics == nil {
		return
	}
	n := 0
	for _, id := range g.order {
		if g.nodes[id].phase == phaseInitialized {
			n++
		}
	}
	g.metrics.setResidentNodes(n)
}
