package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntry_Struct(t *testing.T) {
	e := Entry{Fingerprint: "fp-a", Value: []byte("v1")}
	require.Equal(t, "fp-a", e.Fingerprint)
	require.Equal(t, []byte("v1"), e.Value)
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	require.NotEqual(t, ErrNotFound.Error(), ErrClosedStore.Error())
}

func TestImplementationsSatisfyStore(t *testing.T) {
	var _ Store = NewMemStore()
	var _ Store = (*JSONStore)(nil)
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*MySQLStore)(nil)
}
