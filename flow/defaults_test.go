package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/flow/store"
	"github.com/stretchr/testify/require"
)

// TestGraph_DefaultRetryPolicyAppliesWhenNodeDeclaresNone checks that
// WithDefaultRetryPolicy passed to NewGraph actually reaches the
// executor's retry loop for nodes that don't set their own RetryPolicy
// via WithRetry.
func TestGraph_DefaultRetryPolicyAppliesWhenNodeDeclaresNone(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, st.Bind(ctx, "item-1"))

	var calls int
	kind := flakyKind{calls: &calls, succeedOnAttempt: 2}

	g, err := NewGraph(st, WithDefaultRetryPolicy(&RetryPolicy{
		MaxAttempts: 3,
		Retryable:   func(error) bool { return true },
	}))
	require.NoError(t, err)
	require.NoError(t, g.AddNode(1, "flaky", kind, map[string]Binding{}, nil))

	out, err := g.RunUpTo(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 2, calls, "the graph-level default retry policy must cover a node with no retry of its own")
}

// TestGraph_DefaultNodeTimeoutAppliesWhenNodeDeclaresNone checks that
// WithDefaultNodeTimeout reaches runProcessWithTimeout for nodes that
// don't declare a per-node WithTimeout.
func TestGraph_DefaultNodeTimeoutAppliesWhenNodeDeclaresNone(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, st.Bind(ctx, "item-1"))

	kind := untilCancelledKind{}
	g, err := NewGraph(st, WithDefaultNodeTimeout(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, g.AddNode(1, "blocking", kind, map[string]Binding{}, nil))

	_, err = g.RunUpTo(ctx, 1)
	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	require.Equal(t, 1, nodeErr.NodeID)
}

// untilCancelledKind never returns until its context is cancelled,
// exercising the default-timeout path.
type untilCancelledKind struct{ BaseKind }

func (k untilCancelledKind) Name() string            { return "blocking" }
func (k untilCancelledKind) Version() string          { return "v1" }
func (k untilCancelledKind) InputSchema() []ParamSpec { return nil }
func (k untilCancelledKind) Process(ctx context.Context, _ any, _ map[string]any) (any, error) {
	<-ctx.Done()
	return nil, errors.New("cancelled")
}
