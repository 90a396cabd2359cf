package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore is an in-memory Store with a counter version, optionally
// injecting conflicts.
type stubStore struct {
	mu        sync.Mutex
	doc       Document
	version   int
	saves     int
	conflicts int // number of saves to reject before accepting
}

func (s *stubStore) Load(context.Context) (Document, Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Document{}, "", nil
	}
	return s.doc.Clone(), s.versionLocked(), nil
}

func (s *stubStore) Save(_ context.Context, doc Document, expected Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.conflicts > 0 {
		s.conflicts--
		return "", ErrVersionConflict
	}
	if expected != s.versionLocked() {
		return "", ErrVersionConflict
	}
	s.doc = doc.Clone()
	s.version++
	return s.versionLocked(), nil
}

func (s *stubStore) versionLocked() Version {
	if s.version == 0 {
		return ""
	}
	return Version(rune('0' + s.version))
}

func TestBook_SetGetRemove(t *testing.T) {
	t.Parallel()

	book := NewBook(&stubStore{})
	require.NoError(t, book.Load(context.Background()))

	book.Set("k1", Entry{Status: StatusYet, ItemID: "item-1"})
	got, ok := book.Get("k1")
	require.True(t, ok)
	assert.Equal(t, StatusYet, got.Status)
	assert.Equal(t, "item-1", got.ItemID)

	book.SetStatus("k1", StatusGood)
	got, _ = book.Get("k1")
	assert.Equal(t, StatusGood, got.Status)
	assert.Equal(t, "item-1", got.ItemID, "status update preserves item id")

	book.Remove("k1")
	_, ok = book.Get("k1")
	assert.False(t, ok)
}

func TestBook_FindDuplicate(t *testing.T) {
	t.Parallel()

	book := NewBook(&stubStore{})
	require.NoError(t, book.Load(context.Background()))
	book.Set("2024.01.01 10:00 Ash 12 80% 2P", Entry{Status: StatusYet})

	key, found := book.FindDuplicate("Ash 12 80% 2P")
	assert.True(t, found)
	assert.Equal(t, "2024.01.01 10:00 Ash 12 80% 2P", key)

	_, found = book.FindDuplicate("Misty 7 20% 5P")
	assert.False(t, found)
}

func TestBook_PendingKeys(t *testing.T) {
	t.Parallel()

	book := NewBook(&stubStore{})
	require.NoError(t, book.Load(context.Background()))
	book.Set("b", Entry{Status: StatusYet})
	book.Set("a", Entry{Status: StatusYet})
	book.Set("c", Entry{Status: StatusGood})
	book.Set("d", Entry{Status: StatusNaN})

	assert.Equal(t, []string{"a", "b"}, book.PendingKeys())
}

func TestBook_Search(t *testing.T) {
	t.Parallel()

	book := NewBook(&stubStore{})
	require.NoError(t, book.Load(context.Background()))
	book.Set("2024.01.01 10:00 Ash 12 80% 2P", Entry{Status: StatusYet})
	book.Set("2024.01.02 11:00 Ash 12 60% 3P", Entry{Status: StatusYet})
	book.Set("2024.01.01 10:00 Misty 7 20% 5P", Entry{Status: StatusYet})

	matches := book.Search("Ash", "12")
	require.Len(t, matches, 2)
	assert.Equal(t, "2024.01.01 10:00 Ash 12 80% 2P", matches[0])

	assert.Empty(t, book.Search("Ash", "1"), "number must match whole token")
}

func TestBook_PersistOnlyWhenDirty(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	book := NewBook(store)
	require.NoError(t, book.Load(context.Background()))

	require.NoError(t, book.Persist(context.Background()))
	assert.Zero(t, store.saves, "clean book must not write")

	book.Set("k", Entry{Status: StatusYet})
	require.NoError(t, book.Persist(context.Background()))
	assert.Equal(t, 1, store.saves)

	require.NoError(t, book.Persist(context.Background()))
	assert.Equal(t, 1, store.saves, "second persist with no change must not write")
}

func TestBook_PersistRetriesOnConflict(t *testing.T) {
	t.Parallel()

	store := &stubStore{conflicts: 2}
	// Seed an entry written by another writer so the reload matters.
	store.doc = Document{"other": {Status: StatusGood}}
	store.version = 1

	book := NewBook(store)
	require.NoError(t, book.Load(context.Background()))
	book.Set("mine", Entry{Status: StatusYet})

	require.NoError(t, book.Persist(context.Background()))
	assert.Equal(t, 3, store.saves)

	// Both the concurrent writer's entry and ours survive.
	doc, _, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, doc, "other")
	assert.Contains(t, doc, "mine")
	assert.False(t, book.Dirty())
}

func TestBook_LoadReplaysPending(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	book := NewBook(store)
	require.NoError(t, book.Load(context.Background()))
	book.Set("k", Entry{Status: StatusYet})

	// Reload before persisting; the unsaved mutation must survive.
	require.NoError(t, book.Load(context.Background()))
	got, ok := book.Get("k")
	require.True(t, ok)
	assert.Equal(t, StatusYet, got.Status)
}
