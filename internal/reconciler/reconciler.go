// Package reconciler repairs drift between the status ledger and the live
// discussion items after every classification pass.
package reconciler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jkivela/packwatch/internal/classifier"
	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/forum"
	"github.com/jkivela/packwatch/internal/ledger"
	"github.com/jkivela/packwatch/internal/logging"
	"github.com/jkivela/packwatch/internal/notify"
	"github.com/jkivela/packwatch/internal/observability"
	"github.com/jkivela/packwatch/internal/report"
)

// Announcer publishes confirmed discoveries to an external fan-out such as
// an MQTT topic. Optional.
type Announcer interface {
	ConfirmedGood(ctx context.Context, title string) error
}

// Reconciler cross-references pending ledger entries against the classified
// item set and applies status transitions, notifications and lost-item
// recovery.
type Reconciler struct {
	forum     forum.Interface
	book      *ledger.Book
	notifier  *notify.Notifier
	announcer Announcer
	group     *conf.GroupSettings
	metrics   *observability.Metrics

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Reconciler for one group. announcer may be nil.
func New(f forum.Interface, book *ledger.Book, notifier *notify.Notifier, announcer Announcer,
	group *conf.GroupSettings, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		forum:     f,
		book:      book,
		notifier:  notifier,
		announcer: announcer,
		group:     group,
		metrics:   metrics,
		logger:    logging.ForService("reconciler").With("group", group.ID),
		now:       time.Now,
	}
}

// Pass walks every ledger entry with status Yet and reconciles it against
// the classified item set. The ledger is persisted once at the end, and only
// when something changed.
func (r *Reconciler) Pass(ctx context.Context, classified *classifier.Result) error {
	for _, key := range r.book.PendingKeys() {
		entry, ok := r.book.Get(key)
		if !ok {
			continue
		}

		state, found := r.lookup(classified, key, &entry)
		if !found {
			r.handleMissing(ctx, key, &entry)
			continue
		}

		switch state.State {
		case classifier.StatePending:
			// Still under community review.

		case classifier.StateGood:
			r.book.SetStatus(key, ledger.StatusGood)
			r.metrics.ReconcilerAction("confirmed_good")
			r.announceGood(ctx, &state.Item)

		case classifier.StateBad:
			r.book.SetStatus(key, ledger.StatusBad)
			r.metrics.ReconcilerAction("confirmed_bad")
			r.notifier.Alert(ctx, "confirmed bad: "+state.Item.Title)

		case classifier.StateUnparsed:
			// Transient fetch trouble; the entry stays Yet for the next
			// pass.
			r.metrics.ReconcilerAction("deferred")
			r.logger.Info("deferring entry with unparsed item",
				"key", key, "item", state.Item.ID)

		case classifier.StateNotice:
			// A ledger entry should never point at an administrative item.
			r.logger.Warn("ledger entry matches a notice item",
				"key", key, "item", state.Item.ID)
		}
	}

	if r.book.Dirty() {
		if err := r.book.Persist(ctx); err != nil {
			return err
		}
		r.metrics.LedgerWrite()
	}
	return nil
}

// lookup finds the classified item for a ledger entry, by stored item ID
// first and by derived title for entries that predate stored IDs.
func (r *Reconciler) lookup(classified *classifier.Result, key string, entry *ledger.Entry) (classifier.ItemState, bool) {
	if entry.ItemID != "" {
		if state, ok := classified.ByID(entry.ItemID); ok {
			return state, true
		}
		// The stored item is gone; fall through to the title join in case
		// the item was recreated under a new ID.
	}
	title, ok := report.TitleFromKey(key)
	if !ok {
		return classifier.ItemState{}, false
	}
	return classified.ByTitle(title)
}

// announceGood fires the confirmed-good notifications. The showcase forward
// is best-effort and never blocks the rest of the pass.
func (r *Reconciler) announceGood(ctx context.Context, item *forum.Item) {
	text := "confirmed good: " + item.Title
	r.notifier.Alert(ctx, text)
	r.notifier.Announce(ctx, text)
	r.notifier.Push(ctx, "Confirmed discovery", item.Title)

	if err := r.notifier.Showcase(ctx, item.Title, item.Images); err != nil {
		r.logger.Error("showcase forward failed", "item", item.ID, "error", err)
	}

	if r.announcer != nil {
		if err := r.announcer.ConfirmedGood(ctx, item.Title); err != nil {
			r.logger.Error("confirmed-good announce failed", "item", item.ID, "error", err)
		}
	}
}

// handleMissing deals with a Yet entry that matches no live item. Entries
// younger than the creation grace window are skipped; anything older is
// treated as lost and recreated best-effort.
func (r *Reconciler) handleMissing(ctx context.Context, key string, entry *ledger.Entry) {
	ts, ok := report.TimestampFromKey(key)
	if !ok {
		r.logger.Warn("ledger key has no parseable timestamp", "key", key)
		return
	}
	if r.now().Sub(ts) <= r.group.CreationGrace {
		// The item is likely still being created concurrently.
		return
	}

	r.recreate(ctx, key, entry)
}

// recreate re-issues item creation for a lost entry, recovering any images
// from the recent detection history.
func (r *Reconciler) recreate(ctx context.Context, key string, entry *ledger.Entry) {
	title, ok := report.TitleFromKey(key)
	if !ok {
		r.logger.Warn("cannot derive title for lost entry", "key", key)
		return
	}
	name, number, ok := report.HandleFromKey(key)
	if !ok {
		r.logger.Warn("cannot derive handle for lost entry", "key", key)
		return
	}

	recoveryID := uuid.NewString()
	r.logger.Info("recreating lost item",
		"key", key, "title", title, "recovery_id", recoveryID)

	images := r.recoverImages(ctx, name, number)

	tags := []string{r.group.Tags.Pending}
	if packTag, ok := r.group.Tags.Pack[packFromKey(key)]; ok {
		tags = append(tags, packTag)
	}

	itemID, err := r.forum.CreateItem(ctx, r.group.ID, title, tags, images)
	if err != nil {
		// The entry stays Yet; the next pass retries from scratch.
		r.logger.Error("lost item recreation failed",
			"key", key, "recovery_id", recoveryID, "error", err)
		return
	}

	entry.ItemID = itemID
	r.book.Set(key, *entry)
	r.metrics.ReconcilerAction("recreated")
	r.logger.Info("recreated lost item",
		"key", key, "item", itemID, "recovery_id", recoveryID)
}

// recoverImages scans recent detection history for a report from the same
// reporter and returns its attachments.
func (r *Reconciler) recoverImages(ctx context.Context, name, number string) []string {
	msgs, err := r.forum.RecentReports(ctx, r.group.ID, r.group.HistoryDepth)
	if err != nil {
		r.logger.Warn("history scan failed, recreating without images", "error", err)
		return nil
	}
	for i := range msgs {
		rec, err := report.Parse(msgs[i].Text)
		if err != nil {
			continue
		}
		if rec.Name == name && rec.Number == number {
			return msgs[i].Images
		}
	}
	return nil
}

// packFromKey extracts the pack count from the key's trailing "NP" token.
func packFromKey(key string) string {
	fields := strings.Fields(key)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	return strings.TrimSuffix(last, "P")
}
