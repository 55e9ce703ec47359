package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cp.db"))
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "orders")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "orders", "token-1"))
	require.NoError(t, s.Save(ctx, "orders", "token-2"))

	token, ok, err := s.Load(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token-2", token)

	assert.ErrorIs(t, s.Save(ctx, "", "x"), docerrors.ErrInvalidOptions)
}

func TestListAndDelete(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cp.db"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "b", "2"))
	require.NoError(t, s.Save(ctx, "a", "1"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "1", list[0].Token)
	assert.False(t, list[0].UpdatedAt.IsZero())
	assert.Equal(t, "b", list[1].Name)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), docerrors.ErrCheckpointNotFound)

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "feed", "abc"))
	require.NoError(t, s.Close())

	s = openStore(t, path)
	token, ok, err := s.Load(context.Background(), "feed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}
