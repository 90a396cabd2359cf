// Package curator ties the pipeline together: report intake into the ledger
// and forum, plus the periodic classify-and-reconcile pass per forum group.
package curator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jkivela/packwatch/internal/classifier"
	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/errors"
	"github.com/jkivela/packwatch/internal/forum"
	"github.com/jkivela/packwatch/internal/ledger"
	"github.com/jkivela/packwatch/internal/logging"
	"github.com/jkivela/packwatch/internal/notify"
	"github.com/jkivela/packwatch/internal/observability"
	"github.com/jkivela/packwatch/internal/reconciler"
	"github.com/jkivela/packwatch/internal/report"
)

// Group is the per-forum-group context object: configuration plus the
// collaborators one group's curation needs. Constructed at startup, lives
// for the process lifetime.
type Group struct {
	cfg        *conf.GroupSettings
	forum      forum.Interface
	book       *ledger.Book
	classifier *classifier.Classifier
	reconciler *reconciler.Reconciler
	metrics    *observability.Metrics

	// lastScan is the newest report message already fed through intake.
	// Guarded by mu; RunPass and HandleReport may race with a shutdown.
	mu       sync.Mutex
	lastScan time.Time

	logger *slog.Logger
}

// NewGroup wires one group's classifier and reconciler. announcer may be
// nil.
func NewGroup(f forum.Interface, book *ledger.Book, notifier *notify.Notifier,
	announcer reconciler.Announcer, cfg *conf.GroupSettings, metrics *observability.Metrics) *Group {
	return &Group{
		cfg:        cfg,
		forum:      f,
		book:       book,
		classifier: classifier.New(f, notifier, cfg, metrics),
		reconciler: reconciler.New(f, book, notifier, announcer, cfg, metrics),
		metrics:    metrics,
		logger:     logging.ForService("curator").With("group", cfg.ID),
	}
}

// ID returns the group's forum ID.
func (g *Group) ID() string {
	return g.cfg.ID
}

// Period returns the group's pass period.
func (g *Group) Period() time.Duration {
	return g.cfg.Period
}

// HandleReport processes one raw detection report observed at ts with any
// attached images. Parse failures are expected noise: logged, never an
// error. Duplicate arrivals are recorded as NaN entries without creating an
// item.
func (g *Group) HandleReport(ctx context.Context, text string, ts time.Time, images []string) error {
	rec, err := report.Parse(text)
	if err != nil {
		if errors.Is(err, report.ErrMalformedReport) {
			g.metrics.ReportParsed("malformed")
			g.logger.Warn("discarding malformed report", "error", err)
		} else {
			g.metrics.ReportParsed("rejected")
			g.logger.Debug("message is not a report")
		}
		return nil
	}

	keys := report.Derive(rec, ts)

	// Re-delivery of the exact same report is a no-op, which keeps the
	// intake scan idempotent across restarts.
	if _, ok := g.book.Get(keys.Key); ok {
		g.logger.Debug("report already recorded", "key", keys.Key)
		return nil
	}

	// Records without an instance code dedup on the derived substring; a
	// code by itself disambiguates instances.
	if !rec.HasCode() {
		if existing, dup := g.book.FindDuplicate(keys.Sub); dup {
			g.metrics.ReportParsed("duplicate")
			g.logger.Info("duplicate report suppressed",
				"key", keys.Key, "existing", existing)
			g.book.Set(keys.Key, ledger.Entry{Status: ledger.StatusNaN})
			return g.book.Persist(ctx)
		}
	}

	// Record first so a crashed creation is recovered by reconciliation.
	g.book.Set(keys.Key, ledger.Entry{Status: ledger.StatusYet})

	tags := []string{g.cfg.Tags.Pending}
	if packTag, ok := g.cfg.Tags.Pack[rec.Pack]; ok {
		tags = append(tags, packTag)
	}

	itemID, err := g.forum.CreateItem(ctx, g.cfg.ID, keys.Title, tags, images)
	if err != nil {
		g.logger.Error("item creation failed, entry left pending",
			"key", keys.Key, "error", err)
	} else {
		g.book.Set(keys.Key, ledger.Entry{Status: ledger.StatusYet, ItemID: itemID})
		g.logger.Info("accepted detection report",
			"key", keys.Key, "item", itemID, "percent", rec.Percent, "pack", rec.Pack)
	}

	g.metrics.ReportParsed("accepted")
	return g.book.Persist(ctx)
}

// ScanReports feeds new messages from the group's report feed through
// intake. Only messages newer than the previous scan are handled; the
// per-key guard in HandleReport covers overlap.
func (g *Group) ScanReports(ctx context.Context) error {
	msgs, err := g.forum.RecentReports(ctx, g.cfg.ID, g.cfg.HistoryDepth)
	if err != nil {
		return err
	}

	g.mu.Lock()
	since := g.lastScan
	g.mu.Unlock()

	newest := since
	// RecentReports returns newest first; intake wants arrival order.
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if !msg.CreatedAt.After(since) {
			continue
		}
		if err := g.HandleReport(ctx, msg.Text, msg.CreatedAt, msg.Images); err != nil {
			return err
		}
		if msg.CreatedAt.After(newest) {
			newest = msg.CreatedAt
		}
	}

	g.mu.Lock()
	g.lastScan = newest
	g.mu.Unlock()
	return nil
}

// RunPass executes one intake-classify-reconcile pass. A failure aborts only
// this group's pass; the next period retries wholesale.
func (g *Group) RunPass(ctx context.Context) error {
	start := time.Now()

	if err := g.ScanReports(ctx); err != nil {
		return err
	}

	result, err := g.classifier.Pass(ctx)
	if err != nil {
		return err
	}
	if err := g.reconciler.Pass(ctx, result); err != nil {
		return err
	}

	g.metrics.ObservePass(g.cfg.ID, time.Since(start))
	g.logger.Debug("pass complete", "items", result.Len(), "duration", time.Since(start))
	return nil
}
