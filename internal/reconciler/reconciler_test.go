package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkivela/packwatch/internal/classifier"
	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/forum"
	"github.com/jkivela/packwatch/internal/ledger"
	"github.com/jkivela/packwatch/internal/notify"
	"github.com/jkivela/packwatch/internal/report"
)

// memStore counts saves so tests can assert the single-batch-write rule.
type memStore struct {
	mu      sync.Mutex
	doc     ledger.Document
	version int
	saves   int
}

func (s *memStore) Load(context.Context) (ledger.Document, ledger.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ledger.Document{}, "", nil
	}
	return s.doc.Clone(), s.versionLocked(), nil
}

func (s *memStore) Save(_ context.Context, doc ledger.Document, expected ledger.Version) (ledger.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expected != s.versionLocked() {
		return "", ledger.ErrVersionConflict
	}
	s.doc = doc.Clone()
	s.version++
	s.saves++
	return s.versionLocked(), nil
}

func (s *memStore) versionLocked() ledger.Version {
	if s.version == 0 {
		return ""
	}
	return ledger.Version(rune('0' + s.version))
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testGroup() *conf.GroupSettings {
	return &conf.GroupSettings{
		ID:     "group-1",
		Period: 2 * time.Minute,
		Tags: conf.TagSettings{
			Pending: "tag-pending",
			Good:    "tag-good",
			Bad:     "tag-bad",
			Notice:  "tag-notice",
			Pack:    map[string]string{"2": "tag-2p"},
		},
		Thresholds: conf.ThresholdSettings{
			NoReactionGrace: 30 * time.Minute,
			MinUnsureCount:  3,
		},
		CreationGrace: 10 * time.Minute,
		ReplyLimit:    50,
		HistoryDepth:  100,
	}
}

type fixture struct {
	mock  *forum.Mock
	store *memStore
	book  *ledger.Book
	rec   *Reconciler
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := &forum.Mock{}
	store := &memStore{}
	book := ledger.NewBook(store)
	require.NoError(t, book.Load(context.Background()))

	notifier, err := notify.New(mock, &conf.NotifySettings{
		AlertChannel:    "alerts",
		AnnounceChannel: "announce",
		ShowcaseChannel: "showcase",
	})
	require.NoError(t, err)

	rec := New(mock, book, notifier, nil, testGroup(), nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, report.DisplayZone)
	rec.now = func() time.Time { return now }
	return &fixture{mock: mock, store: store, book: book, rec: rec, now: now}
}

// seedEntry adds a Yet ledger entry whose timestamp is age before now and
// persists, so the save counter starts clean for the pass under test.
func (f *fixture) seedEntry(t *testing.T, age time.Duration, itemID string) (key, title string) {
	t.Helper()
	keys := report.Derive(&report.DetectionRecord{
		Name: "Ash", Number: "12", Percent: 80, Pack: "2",
	}, f.now.Add(-age))
	f.book.Set(keys.Key, ledger.Entry{Status: ledger.StatusYet, ItemID: itemID})
	require.NoError(t, f.book.Persist(context.Background()))
	f.store.mu.Lock()
	f.store.saves = 0
	f.store.mu.Unlock()
	return keys.Key, keys.Title
}

func classifiedAs(item forum.Item, state classifier.State) *classifier.Result {
	result := classifier.NewResult()
	result.Add(item, state)
	return result
}

func TestPass_GoodTransition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "item-7")
	item := forum.Item{ID: "item-7", Title: title, Images: []string{"https://cdn.example/lead.png"}}

	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StateGood)))

	entry, ok := f.book.Get(key)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusGood, entry.Status)
	assert.Equal(t, 1, f.store.saveCount())

	require.Len(t, f.mock.Notices("alerts"), 1)
	require.Len(t, f.mock.Notices("announce"), 1)
	showcase := f.mock.Notices("showcase")
	require.Len(t, showcase, 1)
	assert.Equal(t, []string{"https://cdn.example/lead.png"}, showcase[0].Images)
}

func TestPass_BadTransition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "item-7")
	item := forum.Item{ID: "item-7", Title: title}

	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StateBad)))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusBad, entry.Status)
	require.Len(t, f.mock.Notices("alerts"), 1)
	assert.Empty(t, f.mock.Notices("announce"))
}

func TestPass_PendingLeavesLedgerAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "item-7")
	item := forum.Item{ID: "item-7", Title: title}

	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StatePending)))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusYet, entry.Status)
	assert.Zero(t, f.store.saveCount())
}

func TestPass_UnparsedDefersEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "item-7")
	item := forum.Item{ID: "item-7", Title: title}

	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StateUnparsed)))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusYet, entry.Status, "transient condition is not terminal")
	assert.Zero(t, f.store.saveCount())
}

func TestPass_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, title := f.seedEntry(t, time.Hour, "item-7")
	item := forum.Item{ID: "item-7", Title: title}
	classified := classifiedAs(item, classifier.StateGood)

	require.NoError(t, f.rec.Pass(context.Background(), classified))
	require.NoError(t, f.rec.Pass(context.Background(), classified))

	assert.Equal(t, 1, f.store.saveCount(), "second pass must not write")
	assert.Len(t, f.mock.Notices("alerts"), 1, "no duplicate notifications")
	assert.Len(t, f.mock.Notices("announce"), 1)
}

func TestPass_LegacyEntryMatchedByTitle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "") // no stored item ID
	item := forum.Item{ID: "item-99", Title: title}

	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StateGood)))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusGood, entry.Status)
}

func TestPass_StaleItemIDFallsBackToTitle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "item-gone")
	// The stored item vanished; a recreated item carries the same title.
	item := forum.Item{ID: "item-new", Title: title}

	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StateGood)))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusGood, entry.Status)
}

func TestPass_MissingWithinGraceSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, _ := f.seedEntry(t, 5*time.Minute, "item-7")

	require.NoError(t, f.rec.Pass(context.Background(), classifier.NewResult()))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusYet, entry.Status)
	assert.Zero(t, f.store.saveCount())
	assert.Empty(t, f.mock.Deleted())
	// No recreation happened.
	items, err := f.mock.ListItems(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPass_LostItemRecreated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, title := f.seedEntry(t, time.Hour, "item-7")
	f.mock.AddHistory("group-1", forum.Message{
		Text:   "Valid\nAsh12 (55)\n[4/5][2P]",
		Images: []string{"https://cdn.example/proof.png"},
	})
	f.mock.AddHistory("group-1", forum.Message{
		Text: "Valid\nMisty7\n[1/5][5P]",
	})

	require.NoError(t, f.rec.Pass(context.Background(), classifier.NewResult()))

	items, err := f.mock.ListItems(context.Background(), "group-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, title, items[0].Title)
	assert.ElementsMatch(t, []string{"tag-pending", "tag-2p"}, items[0].AppliedTags)
	assert.Equal(t, []string{"https://cdn.example/proof.png"}, items[0].Images)

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusYet, entry.Status, "recreated entries stay pending")
	assert.Equal(t, items[0].ID, entry.ItemID, "new item id is stored")
	assert.Equal(t, 1, f.store.saveCount())
}

func TestPass_RecreationWithoutHistoryMatchHasNoImages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedEntry(t, time.Hour, "item-7")

	require.NoError(t, f.rec.Pass(context.Background(), classifier.NewResult()))

	items, err := f.mock.ListItems(context.Background(), "group-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].Images)
}

func TestPass_RecreationFailureKeepsEntryPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	key, _ := f.seedEntry(t, time.Hour, "item-7")
	f.mock.CreateErr = assert.AnError

	require.NoError(t, f.rec.Pass(context.Background(), classifier.NewResult()))

	entry, _ := f.book.Get(key)
	assert.Equal(t, ledger.StatusYet, entry.Status)
	assert.Empty(t, entry.ItemID, "failed recreation leaves the entry untouched")
	assert.Zero(t, f.store.saveCount())
}

func TestPass_OnlyYetEntriesConsidered(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	keys := report.Derive(&report.DetectionRecord{
		Name: "Misty", Number: "7", Percent: 20, Pack: "5",
	}, f.now.Add(-2*time.Hour))
	f.book.Set(keys.Key, ledger.Entry{Status: ledger.StatusNaN})
	require.NoError(t, f.book.Persist(context.Background()))
	f.store.mu.Lock()
	f.store.saves = 0
	f.store.mu.Unlock()

	require.NoError(t, f.rec.Pass(context.Background(), classifier.NewResult()))

	// NaN entries are never recreated or touched.
	items, err := f.mock.ListItems(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, f.store.saveCount())
}

type fakeAnnouncer struct {
	mu     sync.Mutex
	titles []string
}

func (a *fakeAnnouncer) ConfirmedGood(_ context.Context, title string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

func TestPass_AnnouncerNotifiedOnGood(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, title := f.seedEntry(t, time.Hour, "item-7")
	announcer := &fakeAnnouncer{}
	f.rec.announcer = announcer

	item := forum.Item{ID: "item-7", Title: title}
	require.NoError(t, f.rec.Pass(context.Background(), classifiedAs(item, classifier.StateGood)))

	assert.Equal(t, []string{title}, announcer.titles)
}
