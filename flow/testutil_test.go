package flow

import (
	"context"
	"fmt"
)

// addKind adds two named inputs. version lets tests exercise fingerprint
// invalidation on a version bump.
type addKind struct {
	BaseKind
	version string
}

func (k addKind) Name() string    { return "add" }
func (k addKind) Version() string { return k.version }
func (k addKind) InputSchema() []ParamSpec {
	return []ParamSpec{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeInt}}
}
func (k addKind) Process(_ context.Context, _ any, inputs map[string]any) (any, error) {
	return inputs["a"].(int) + inputs["b"].(int), nil
}

// countingAddKind is addKind with a caller-chosen name and a call counter,
// so a multi-level chain of add nodes can be told apart in assertions.
type countingAddKind struct {
	BaseKind
	kindName string
	calls    *int
	lastB    *int
}

func (k countingAddKind) Name() string    { return k.kindName }
func (k countingAddKind) Version() string { return "v1" }
func (k countingAddKind) InputSchema() []ParamSpec {
	return []ParamSpec{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeInt}}
}
func (k countingAddKind) Process(_ context.Context, _ any, inputs map[string]any) (any, error) {
	*k.calls++
	if k.lastB != nil {
		*k.lastB = inputs["b"].(int)
	}
	return inputs["a"].(int) + inputs["b"].(int), nil
}

// countingKind tracks how many times Init/Release/Process ran, in addition
// to doing real work, so tests can assert the one-init-per-node invariant.
type countingKind struct {
	BaseKind
	inits, releases, processCalls *int
}

func (k countingKind) Name() string                { return "counting" }
func (k countingKind) Version() string              { return "v1" }
func (k countingKind) InputSchema() []ParamSpec     { return []ParamSpec{{Name: "x", Type: TypeInt}} }
func (k countingKind) Init(_ context.Context, _ map[string]any) (any, error) {
	*k.inits++
	return "state", nil
}
func (k countingKind) Release(_ context.Context, _ any) error {
	*k.releases++
	return nil
}
func (k countingKind) Process(_ context.Context, state any, inputs map[string]any) (any, error) {
	*k.processCalls++
	return fmt.Sprintf("%v:%d", state, inputs["x"].(int)), nil
}

// failingKind always fails Process, for retry/error-path tests.
type failingKind struct {
	BaseKind
	calls *int
	err   error
}

func (k failingKind) Name() string                { return "failing" }
func (k failingKind) Version() string              { return "v1" }
func (k failingKind) InputSchema() []ParamSpec     { return nil }
func (k failingKind) Process(_ context.Context, _ any, _ map[string]any) (any, error) {
	*k.calls++
	return nil, k.err
}

// flakyKind fails until succeedOnAttempt (1-indexed), then succeeds.
type flakyKind struct {
	BaseKind
	calls           *int
	succeedOnAttempt int
}

func (k flakyKind) Name() string                { return "flaky" }
func (k flakyKind) Version() string              { return "v1" }
func (k flakyKind) InputSchema() []ParamSpec     { return nil }
func (k flakyKind) Process(_ context.Context, _ any, _ map[string]any) (any, error) {
	*k.calls++
	if *k.calls < k.succeedOnAttempt {
		return nil, fmt.Errorf("transient failure, attempt %d", *k.calls)
	}
	return "ok", nil
}
