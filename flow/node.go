package flow

import (
	"context"
	"time"
)

// ProcessorKind is the declarative template from which a processor node is
// instantiated: a name, a version, a typed input schema, an init step that
// produces lazily-created internal state, the process step itself, and an
// optional release step.
//
// Version must be bumped whenever the computation's meaning changes — it
// participates in the cache fingerprint alongside the node's name and the
// resolved inputs, so a version bump invalidates every downstream cache
// entry for nodes of this kind even when literal input values are unchanged.
type ProcessorKind interface {
	// Name identifies this processor kind. Flow does not read it: the
	// fingerprint, events and metrics use the node name passed to AddNode.
	Name() string

	// Version is bumped whenever Process's meaning changes.
	Version() string

	// InputSchema declares the named, typed parameters Process expects.
	// Flow validates graph bindings against this schema once, at
	// construction time.
	InputSchema() []ParamSpec

	// Init acquires this kind's internal state (GPU context, model handle,
	// subprocess, ...). It is called at most once between any two Release
	// calls for a given node. kwargs are the kind_init_kwargs supplied at
	// AddNode time.
	Init(ctx context.Context, kwargs map[string]any) (any, error)

	// Process computes this node's output from its resolved inputs and the
	// internal state produced by Init. It must be pure with respect to its
	// declared inputs modulo legitimate non-determinism.
	Process(ctx context.Context, state any, inputs map[string]any) (any, error)

	// Release discards internal state. It must be idempotent and safe to
	// call whether or not Init ran.
	Release(ctx context.Context, state any) error
}

// Encoder is implemented by a ProcessorKind whose output is not naturally
// JSON-serializable. Flow never fabricates a representation for such a
// value: the kind itself must supply Encode/Decode.
type Encoder interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// BaseKind is embedded by processor kinds that don't need custom
// encode/decode hooks or init kwargs; it supplies a no-op Release and a
// kwargs-less Init so kinds can implement only Name/Version/InputSchema/Process.
type BaseKind struct{}

// Init returns nil state by default. Override on kinds that need real
// internal state.
func (BaseKind) Init(ctx context.Context, kwargs map[string]any) (any, error) { return nil, nil }

// Release is a no-op by default.
func (BaseKind) Release(ctx context.Context, state any) error { return nil }

// Binding is a processor node's resolved binding for one declared input
// parameter: either a literal value or a reference to another node's id.
type Binding struct {
	IsRef   bool
	Literal any
	RefID   int
}

// Lit returns a literal-value binding.
func Lit(v any) Binding { return Binding{Literal: v} }

// Ref returns a binding that resolves to the current output of the node
// with the given id.
func Ref(nodeID int) Binding { return Binding{IsRef: true, RefID: nodeID} }

// lifecyclePhase tracks whether a node's internal state is live.
type lifecyclePhase int

const (
	phaseUninitialized lifecyclePhase = iota
	phaseInitialized
	phaseReleased
)

// node is Flow's internal representation of a graph node: either a
// constant (isConstant true, kind nil) or a processor node backed by a
// ProcessorKind. It carries its lifecycle phase and cached internal state.
type node struct {
	id   int
	name string

	isConstant  bool
	constantVal any
	constantFP  string // recomputed each time the constant value is set

	kind     ProcessorKind
	bindings map[string]Binding
	kwargs   map[string]any

	phase  lifecyclePhase
	state  any    // internal state returned by kind.Init
	lastFP string // fingerprint computed during the node's most recent evaluation

	retry   *RetryPolicy
	timeout time.Duration
}
