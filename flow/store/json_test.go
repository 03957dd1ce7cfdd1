package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONStore_Conformance(t *testing.T) {
	conformanceSuite(t, func(t *testing.T) Store {
		dir := t.TempDir()
		s, err := NewJSONStore(dir)
		require.NoError(t, err)
		return s
	})
}

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Bind(ctx, "item-1"))
	require.NoError(t, s1.Store(ctx, 1, "fp-a", []byte(`{"v":1}`)))
	require.NoError(t, s1.Close())

	s2, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, s2.Bind(ctx, "item-1"))

	value, ok, err := s2.Lookup(ctx, 1, "fp-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"v":1}`, string(value))
}

func TestJSONStore_WritesHumanReadableFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Bind(ctx, "item-1"))
	require.NoError(t, s.Store(ctx, 1, "fp-a", []byte(`{"v":1}`)))

	data, err := os.ReadFile(filepath.Join(dir, "item-1.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "fingerprint")
	require.Contains(t, string(data), "fp-a")
}

func TestJSONStore_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "path")
	_, err := NewJSONStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestJSONStore_BindUnknownLocationStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Bind(ctx, "never-seen"))

	_, ok, err := s.Lookup(ctx, 1, "fp-a")
	require.NoError(t, err)
	require.False(t, ok)
}
