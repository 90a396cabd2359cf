package ledger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jkivela/packwatch/internal/errors"
	"github.com/jkivela/packwatch/internal/logging"
)

// persistAttempts bounds the reload-reapply-save loop on version conflicts.
const persistAttempts = 3

// Book is the in-memory view of the ledger document plus the mutation log
// needed to survive a conditional-save conflict. All methods are safe for
// concurrent use; the periodic pass and manual overrides share one Book.
type Book struct {
	mu      sync.Mutex
	store   Store
	doc     Document
	version Version
	// pending records mutations since the last successful save so they can
	// be replayed onto a freshly loaded document after a conflict. A nil
	// entry pointer is a removal.
	pending map[string]*Entry
	logger  *slog.Logger
}

// NewBook creates a Book over the given store. Call Load before first use.
func NewBook(store Store) *Book {
	return &Book{
		store:   store,
		doc:     Document{},
		pending: make(map[string]*Entry),
		logger:  logging.ForService("ledger"),
	}
}

// Load replaces the in-memory document with the stored one. Pending
// mutations are replayed on top, so a failed persist is not lost by a
// subsequent load.
func (b *Book) Load(ctx context.Context) error {
	doc, version, err := b.store.Load(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = doc
	b.version = version
	b.replayLocked()
	return nil
}

func (b *Book) replayLocked() {
	for key, entry := range b.pending {
		if entry == nil {
			delete(b.doc, key)
		} else {
			b.doc[key] = *entry
		}
	}
}

// Get returns the entry for key.
func (b *Book) Get(key string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.doc[key]
	return e, ok
}

// Set records an entry for key, replacing any previous value.
func (b *Book) Set(key string, entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc[key] = entry
	e := entry
	b.pending[key] = &e
}

// SetStatus updates only the status of an existing entry, preserving its
// item ID. Unknown keys create a bare entry.
func (b *Book) SetStatus(key string, status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.doc[key]
	e.Status = status
	b.doc[key] = e
	cp := e
	b.pending[key] = &cp
}

// Remove deletes an entry. Used by the administrator override only.
func (b *Book) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.doc, key)
	b.pending[key] = nil
}

// Dirty reports whether there are unsaved mutations.
func (b *Book) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) > 0
}

// Len returns the number of entries.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.doc)
}

// Snapshot returns a copy of the current document.
func (b *Book) Snapshot() Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone()
}

// FindDuplicate scans all keys for one containing sub as a substring. This
// is the code-less dedup check: the key embeds the dedup substring, so a
// match means the same discovery was already recorded.
func (b *Book) FindDuplicate(sub string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.doc {
		if strings.Contains(key, sub) {
			return key, true
		}
	}
	return "", false
}

// PendingKeys returns all keys with status Yet, sorted for deterministic
// iteration.
func (b *Book) PendingKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0)
	for key, entry := range b.doc {
		if entry.Status == StatusYet {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Search returns all keys whose embedded reporter handle matches the given
// name and number, sorted. The manual override surface uses this to
// disambiguate by index when a prefix matches several entries.
func (b *Book) Search(name, number string) []string {
	needle := " " + name + " " + number + " "
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0)
	for key := range b.doc {
		if strings.Contains(key, needle) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Persist saves the document if there are unsaved mutations. On a version
// conflict it reloads the stored document, replays the pending mutations and
// tries again, so a concurrent writer's untouched entries survive
// (last-writer-wins applies per entry we mutated, not to the whole
// document).
func (b *Book) Persist(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		version, err := b.store.Save(ctx, b.doc.Clone(), b.version)
		if err == nil {
			b.version = version
			b.pending = make(map[string]*Entry)
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}

		b.logger.Warn("ledger version conflict, reloading and replaying",
			"attempt", attempt,
			"pending_mutations", len(b.pending))

		doc, version, err := b.store.Load(ctx)
		if err != nil {
			return err
		}
		b.doc = doc
		b.version = version
		b.replayLocked()
	}
	return lastErr
}
