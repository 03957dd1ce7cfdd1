package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// conformanceSuite exercises the behavior every Store implementation must
// provide, independent of backend. New implementations should be run
// through this suite before anything backend-specific.
func conformanceSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("lookup miss on empty store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Bind(ctx, "item-1"))

		_, ok, err := s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("store then lookup round-trips the value", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Bind(ctx, "item-1"))

		require.NoError(t, s.Store(ctx, 1, "fp-a", []byte(`{"x":1}`)))

		value, ok, err := s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte(`{"x":1}`), value)
	})

	t.Run("lookup with a stale fingerprint is a miss, not an error", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Bind(ctx, "item-1"))
		require.NoError(t, s.Store(ctx, 1, "fp-a", []byte("v1")))

		_, ok, err := s.Lookup(ctx, 1, "fp-b")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("storing again overwrites the previous entry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Bind(ctx, "item-1"))

		require.NoError(t, s.Store(ctx, 1, "fp-a", []byte("v1")))
		require.NoError(t, s.Store(ctx, 1, "fp-b", []byte("v2")))

		value, ok, err := s.Lookup(ctx, 1, "fp-b")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v2"), value)

		_, ok, err = s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("forget removes the entry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Bind(ctx, "item-1"))
		require.NoError(t, s.Store(ctx, 1, "fp-a", []byte("v1")))

		require.NoError(t, s.Forget(ctx, 1))

		_, ok, err := s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("locations are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Bind(ctx, "item-1"))
		require.NoError(t, s.Store(ctx, 1, "fp-a", []byte("item-1-value")))

		require.NoError(t, s.Bind(ctx, "item-2"))
		_, ok, err := s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.False(t, ok, "node 1 at item-2 must not see item-1's entry")

		require.NoError(t, s.Bind(ctx, "item-1"))
		value, ok, err := s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("item-1-value"), value)
	})

	t.Run("distinct node ids at the same location don't collide", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Bind(ctx, "item-1"))

		require.NoError(t, s.Store(ctx, 1, "fp-a", []byte("node-1")))
		require.NoError(t, s.Store(ctx, 2, "fp-a", []byte("node-2")))

		v1, ok, err := s.Lookup(ctx, 1, "fp-a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("node-1"), v1)

		v2, ok, err := s.Lookup(ctx, 2, "fp-a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("node-2"), v2)
	})
}
