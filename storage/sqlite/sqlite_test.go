package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(filepath.Join(t.TempDir(), "state", "dialogmesh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Write(ctx, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, store.Write(ctx, map[string]string{"a": "3"}))

	got, err := store.Read(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "3", "b": "2"}, got)

	require.NoError(t, store.Delete(ctx, []string{"a", "c"}))
	got, err = store.Read(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, got)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dialogmesh.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, map[string]string{"k": "v"}))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Read(ctx, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, "v", got["k"])
}

func TestStore_ClosedDatabase(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Read(context.Background(), []string{"k"})
	assert.Error(t, err)
}
