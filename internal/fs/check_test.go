package fs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deskfs/internal/kv"
)

// plainStore hides the Lister side of a MemoryStore.
type plainStore struct {
	inner *kv.MemoryStore
}

func (s plainStore) Get(key string) (string, bool, error) { return s.inner.Get(key) }
func (s plainStore) Set(key, value string) error         { return s.inner.Set(key, value) }
func (s plainStore) Remove(key string) error             { return s.inner.Remove(key) }
func (s plainStore) Close() error                        { return s.inner.Close() }

func TestCheckHealthy(t *testing.T) {
	fsys := newTestFS(t, kv.NewMemoryStore())
	require.NoError(t, fsys.WriteFile("/home/a.txt", "a"))

	report, err := fsys.Check()
	require.NoError(t, err)
	require.True(t, report.Healthy())
	require.True(t, report.OrphanScan)
	require.Equal(t, fsys.Len(), report.Entries)
}

func TestCheckFindsProblems(t *testing.T) {
	store := kv.NewMemoryStore()
	fsys := newTestFS(t, store)
	require.NoError(t, fsys.WriteFile("/home/kept.txt", "k"))
	require.NoError(t, fsys.WriteFile("/home/lost.txt", "l"))

	require.NoError(t, store.Remove("deskfs_file:/home/lost.txt"))
	require.NoError(t, store.Set("deskfs_file:/home/stray.txt", "s"))
	require.NoError(t, store.Set("deskfs_file:/home", "directory shadow"))
	require.NoError(t, store.Set("unrelated", "ignored"))

	report, err := fsys.Check()
	require.NoError(t, err)
	require.False(t, report.Healthy())
	require.Equal(t, []string{"/home/lost.txt"}, report.Dangling)
	require.Equal(t, []string{"/home", "/home/stray.txt"}, report.Orphans)
	require.Empty(t, report.ParentViolations)

	removed, err := fsys.Reclaim()
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, ok, err := store.Get("deskfs_file:/home/stray.txt")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.Get("unrelated")
	require.NoError(t, err)
	require.True(t, ok)

	contents, err := fsys.ReadFile("/home/kept.txt")
	require.NoError(t, err)
	require.Equal(t, "k", contents)

	// Reclaim never touches dangling entries.
	report, err = fsys.Check()
	require.NoError(t, err)
	require.Equal(t, []string{"/home/lost.txt"}, report.Dangling)
	require.Empty(t, report.Orphans)
}

func TestCheckWithoutLister(t *testing.T) {
	inner := kv.NewMemoryStore()
	fsys := newTestFS(t, plainStore{inner: inner})
	require.NoError(t, inner.Set("deskfs_file:/home/stray.txt", "s"))

	report, err := fsys.Check()
	require.NoError(t, err)
	require.False(t, report.OrphanScan)
	require.Empty(t, report.Orphans)

	removed, err := fsys.Reclaim()
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestCheckStoreFailure(t *testing.T) {
	store := newFaultyStore()
	fsys := newTestFS(t, store)
	require.NoError(t, fsys.WriteFile("/home/a.txt", "a"))

	store.failGet = true
	_, err := fsys.Check()
	require.ErrorIs(t, err, ErrIO)
}
