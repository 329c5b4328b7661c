package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Othernet-Project/fsal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/index.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSeedsDbmgrStats(t *testing.T) {
	s := openTestStore(t)
	got, err := s.LastOpTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)
}

func TestSetOpTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetOpTime(ctx, 123.5))
	got, err := s.LastOpTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 123.5, got)
}

func TestOpTimeInFutureReadsAsZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	future := float64(time.Now().Add(24*time.Hour).UnixNano()) / 1e9
	require.NoError(t, s.SetOpTime(ctx, future))

	got, err := s.LastOpTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)
}

func TestUpsertAndGetEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	id, err := s.UpsertEntry(ctx, nil, store.EntryRow{
		BasePath:   "/base",
		RelPath:    "foo.txt",
		Name:       "foo.txt",
		Size:       42,
		CreateTime: now,
		ModifyTime: now,
		IsDir:      false,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := s.GetByPath(ctx, "/base", "foo.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Size)
	assert.False(t, got.IsDir)

	// Upsert again with a new size updates in place rather than duplicating.
	_, err = s.UpsertEntry(ctx, nil, store.EntryRow{
		BasePath:   "/base",
		RelPath:    "foo.txt",
		Name:       "foo.txt",
		Size:       99,
		CreateTime: now,
		ModifyTime: now,
		IsDir:      false,
	})
	require.NoError(t, err)
	got, err = s.GetByPath(ctx, "/base", "foo.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Size)
}

func TestSamePathDifferentBasesCoexist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, base := range []string{"/base-a", "/base-b"} {
		_, err := s.UpsertEntry(ctx, nil, store.EntryRow{
			BasePath: base, RelPath: "shared.txt", Name: "shared.txt",
			CreateTime: now, ModifyTime: now,
		})
		require.NoError(t, err)
	}

	a, err := s.GetByPath(ctx, "/base-a", "shared.txt")
	require.NoError(t, err)
	b, err := s.GetByPath(ctx, "/base-b", "shared.txt")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDeleteByPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_, err := s.UpsertEntry(ctx, nil, store.EntryRow{
		BasePath: "/base", RelPath: "gone.txt", Name: "gone.txt",
		CreateTime: now, ModifyTime: now,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByPath(ctx, nil, "/base", "gone.txt"))
	_, err = s.GetByPath(ctx, "/base", "gone.txt")
	assert.Error(t, err)
}

func TestRenamePathKeepsSurrogateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	id, err := s.UpsertEntry(ctx, nil, store.EntryRow{
		BasePath: "/base", RelPath: "old/name.txt", Name: "name.txt",
		CreateTime: now, ModifyTime: now,
	})
	require.NoError(t, err)

	require.NoError(t, s.RenamePath(ctx, nil, "/base", "old/name.txt", "new/name.txt", "name.txt", 0))

	_, err = s.GetByPath(ctx, "/base", "old/name.txt")
	assert.Error(t, err)
	got, err := s.GetByPath(ctx, "/base", "new/name.txt")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestListChildrenOrderedByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	for _, name := range []string{"zeta.txt", "alpha.txt", "mid.txt"} {
		_, err := s.UpsertEntry(ctx, nil, store.EntryRow{
			BasePath: "/base", RelPath: name, Name: name, ParentID: 0,
			CreateTime: now, ModifyTime: now,
		})
		require.NoError(t, err)
	}

	children, err := s.ListChildren(ctx, "/base", 0)
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, []string{"alpha.txt", "mid.txt", "zeta.txt"},
		[]string{children[0].Name, children[1].Name, children[2].Name})
}
