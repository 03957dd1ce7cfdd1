package flow

import (
	"context"
	"testing"

	"github.com/dshills/flow/store"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(store.NewMemStore())
	require.NoError(t, err)
	return g
}

func TestGraph_AddConstantAndProcessorNode(t *testing.T) {
	g := newTestGraph(t)

	require.NoError(t, g.AddConstantNode(1, "x", 2))
	require.NoError(t, g.AddConstantNode(2, "y", 3))
	require.NoError(t, g.AddNode(3, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Ref(1),
		"b": Ref(2),
	}, nil))

	out, err := g.RunUpTo(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 5, out)
}

func TestGraph_AddNode_DuplicateID(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddConstantNode(1, "x", 1))

	err := g.AddConstantNode(1, "x2", 2)
	require.Error(t, err)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "DUPLICATE_ID", ce.Code)
}

func TestGraph_AddNode_UnknownRef(t *testing.T) {
	g := newTestGraph(t)

	err := g.AddNode(1, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Ref(99),
		"b": Lit(1),
	}, nil)
	require.Error(t, err)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "UNKNOWN_REF", ce.Code)
}

func TestGraph_AddNode_UnknownParam(t *testing.T) {
	g := newTestGraph(t)

	err := g.AddNode(1, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Lit(1),
		"b": Lit(2),
		"c": Lit(3),
	}, nil)
	require.Error(t, err)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "UNKNOWN_PARAM", ce.Code)
}

func TestGraph_AddNode_MissingParam(t *testing.T) {
	g := newTestGraph(t)

	err := g.AddNode(1, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Lit(1),
	}, nil)
	require.Error(t, err)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "MISSING_PARAM", ce.Code)
}

func TestGraph_AddNode_TypeMismatch(t *testing.T) {
	g := newTestGraph(t)

	err := g.AddNode(1, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Lit("not an int"),
		"b": Lit(2),
	}, nil)
	require.Error(t, err)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "TYPE_MISMATCH", ce.Code)
}

// TestGraph_Rebind_IntroducesCycle exercises the spec's rewiring scenario:
// two processor nodes wired acyclically, then rebound so that one points
// back at the other's own (transitive) output, which must be rejected and
// must leave the graph exactly as it was before the call.
func TestGraph_Rebind_IntroducesCycle(t *testing.T) {
	g := newTestGraph(t)

	require.NoError(t, g.AddConstantNode(1, "seed", 1))
	require.NoError(t, g.AddNode(2, "double", addKind{version: "v1"}, map[string]Binding{
		"a": Ref(1), "b": Lit(0),
	}, nil))
	require.NoError(t, g.AddNode(3, "triple", addKind{version: "v1"}, map[string]Binding{
		"a": Ref(2), "b": Lit(0),
	}, nil))

	err := g.Rebind(2, "a", Ref(3))
	require.Error(t, err)
	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "CYCLE", ce.Code)

	// The graph must still be runnable exactly as before the failed rebind.
	out, err := g.RunUpTo(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 1, out)
}

func TestGraph_Rebind_Succeeds(t *testing.T) {
	g := newTestGraph(t)

	require.NoError(t, g.AddConstantNode(1, "a", 10))
	require.NoError(t, g.AddConstantNode(2, "b", 20))
	require.NoError(t, g.AddNode(3, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Ref(1), "b": Lit(0),
	}, nil))

	out, err := g.RunUpTo(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 10, out)

	require.NoError(t, g.Rebind(3, "b", Ref(2)))

	out, err = g.RunUpTo(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 30, out)
}

func TestGraph_TopologicalSort_DeterministicTieBreak(t *testing.T) {
	g := newTestGraph(t)

	require.NoError(t, g.AddConstantNode(2, "b", 1))
	require.NoError(t, g.AddConstantNode(1, "a", 1))
	require.NoError(t, g.AddNode(3, "sum", addKind{version: "v1"}, map[string]Binding{
		"a": Ref(1), "b": Ref(2),
	}, nil))

	order, err := g.TopologicalSort(3)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestGraph_SetConstant_ChangesFingerprint(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddConstantNode(1, "x", 1))

	fp1 := g.fingerprintOf(1)
	require.NoError(t, g.SetConstant(1, 2))
	fp2 := g.fingerprintOf(1)

	require.NotEqual(t, fp1, fp2)
}
