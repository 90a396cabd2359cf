// Package classifier runs the per-group state machine that turns a
// discussion item's reactions and age into a verification state.
package classifier

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/forum"
	"github.com/jkivela/packwatch/internal/logging"
	"github.com/jkivela/packwatch/internal/notify"
	"github.com/jkivela/packwatch/internal/observability"
	"github.com/jkivela/packwatch/internal/report"
	"github.com/jkivela/packwatch/internal/retry"
)

// State is the recognized classification of a discussion item.
type State string

const (
	StatePending  State = "Pending"
	StateGood     State = "Good"
	StateBad      State = "Bad"
	StateNotice   State = "Notice"
	StateUnparsed State = "Unparsed"
)

// Reaction markers counted in replies. The first marker present in a reply
// wins, in this priority order.
const (
	markerApprove = "👍"
	markerReject  = "👎"
	markerUnsure  = "❓"
)

// malformedAlertTTL suppresses repeat alerts for the same malformed item
// across passes; the condition is operator-fixed, not self-healing.
const malformedAlertTTL = 6 * time.Hour

// reactionCounts are the tallied reactions of one item's replies.
type reactionCounts struct {
	approve int
	reject  int
	unsure  int
}

func (rc reactionCounts) total() int { return rc.approve + rc.reject + rc.unsure }

// Classifier evaluates every discussion item of one forum group.
type Classifier struct {
	forum    forum.Interface
	notifier *notify.Notifier
	group    *conf.GroupSettings
	metrics  *observability.Metrics

	packByTag map[string]string // tag ID -> pack count
	seenBad   *gocache.Cache    // malformed-item alert dedup

	retryCfg retry.Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Classifier for one group.
func New(f forum.Interface, notifier *notify.Notifier, group *conf.GroupSettings, metrics *observability.Metrics) *Classifier {
	packByTag := make(map[string]string, len(group.Tags.Pack))
	for pack, tag := range group.Tags.Pack {
		packByTag[tag] = pack
	}
	return &Classifier{
		forum:     f,
		notifier:  notifier,
		group:     group,
		metrics:   metrics,
		packByTag: packByTag,
		seenBad:   gocache.New(malformedAlertTTL, 2*malformedAlertTTL),
		retryCfg:  retry.DefaultConfig("fetch-replies"),
		logger:    logging.ForService("classifier").With("group", group.ID),
		now:       time.Now,
	}
}

// Pass classifies every item in the group and returns the resulting state
// set. A ListItems failure aborts the whole group pass.
func (c *Classifier) Pass(ctx context.Context) (*Result, error) {
	items, err := c.forum.ListItems(ctx, c.group.ID)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	now := c.now()

	for i := range items {
		item := items[i]
		state, known := c.stateOf(&item)
		if !known {
			c.alertMalformed(ctx, &item)
			continue
		}

		switch state {
		case StateBad:
			if c.pastDeletionHorizon(&item, now) {
				if err := c.forum.DeleteItem(ctx, item.ID); err != nil {
					c.logger.Error("failed to delete aged-out item",
						"item", item.ID, "title", item.Title, "error", err)
					result.Add(item, StateBad)
					continue
				}
				c.logger.Info("deleted aged-out item", "item", item.ID, "title", item.Title)
				// Deleted items leave the working set for this pass.
				continue
			}
			result.Add(item, StateBad)

		case StatePending:
			next := c.classifyPending(ctx, &item, now)
			if next != StatePending && next != StateUnparsed {
				if err := c.applyState(ctx, &item, next); err != nil {
					c.logger.Error("failed to apply state tag",
						"item", item.ID, "state", next, "error", err)
					// Tag write failed; the item is still Pending on the
					// platform, re-evaluated next pass.
					result.Add(item, StatePending)
					continue
				}
				c.metrics.Classified(string(next))
			}
			result.Add(item, next)

		default:
			// Good stays Good, Notice is administrative.
			result.Add(item, state)
		}
	}

	return result, nil
}

// classifyPending applies the transition rules to a Pending item.
func (c *Classifier) classifyPending(ctx context.Context, item *forum.Item, now time.Time) State {
	counts, err := c.fetchReactions(ctx, item)
	if err != nil {
		c.metrics.RetryExhausted()
		c.logger.Warn("reply fetch exhausted retries, deferring item",
			"item", item.ID, "title", item.Title, "error", err)
		return StateUnparsed
	}

	// One approval is sufficient regardless of rejections.
	if counts.approve >= 1 {
		return StateGood
	}

	elapsed := now.Sub(c.createdAt(item))
	grace := c.group.Thresholds.NoReactionGrace

	if counts.total() == 0 && elapsed > grace {
		return StateBad
	}
	if counts.unsure >= c.group.Thresholds.MinUnsureCount && counts.reject == 0 && elapsed > grace {
		return StateBad
	}

	pack := c.packOf(item)
	if threshold, ok := c.group.Thresholds.Time[pack]; ok && elapsed > threshold {
		return StateBad
	}
	if threshold, ok := c.group.Thresholds.Reject[pack]; ok && counts.reject >= threshold {
		return StateBad
	}

	return StatePending
}

// fetchReactions pulls the item's replies through the bounded retry wrapper
// and tallies the reaction markers.
func (c *Classifier) fetchReactions(ctx context.Context, item *forum.Item) (reactionCounts, error) {
	var replies []forum.Reply
	cfg := c.retryCfg
	cfg.Logger = c.logger
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		replies, err = c.forum.FetchReplies(ctx, item.ID, c.group.ReplyLimit)
		return err
	})
	if err != nil {
		return reactionCounts{}, err
	}

	var counts reactionCounts
	for i := range replies {
		switch {
		case strings.Contains(replies[i].Text, markerApprove):
			counts.approve++
		case strings.Contains(replies[i].Text, markerReject):
			counts.reject++
		case strings.Contains(replies[i].Text, markerUnsure):
			counts.unsure++
		}
	}
	return counts, nil
}

// stateOf reads an item's applied tags through the group's tag mapping.
// Exactly one status tag must be present for the state to be known.
func (c *Classifier) stateOf(item *forum.Item) (State, bool) {
	var state State
	var matches int
	for _, tag := range item.AppliedTags {
		switch tag {
		case c.group.Tags.Pending:
			state, matches = StatePending, matches+1
		case c.group.Tags.Good:
			state, matches = StateGood, matches+1
		case c.group.Tags.Bad:
			state, matches = StateBad, matches+1
		case c.group.Tags.Notice:
			state, matches = StateNotice, matches+1
		}
	}
	if matches != 1 {
		return "", false
	}
	return state, true
}

// applyState swaps the item's status tag, keeping every other tag.
func (c *Classifier) applyState(ctx context.Context, item *forum.Item, state State) error {
	statusTag := map[State]string{
		StatePending: c.group.Tags.Pending,
		StateGood:    c.group.Tags.Good,
		StateBad:     c.group.Tags.Bad,
		StateNotice:  c.group.Tags.Notice,
	}[state]

	tags := make([]string, 0, len(item.AppliedTags))
	for _, tag := range item.AppliedTags {
		if tag == c.group.Tags.Pending || tag == c.group.Tags.Good ||
			tag == c.group.Tags.Bad || tag == c.group.Tags.Notice {
			continue
		}
		tags = append(tags, tag)
	}
	tags = append(tags, statusTag)

	if err := c.forum.SetAppliedTags(ctx, item.ID, tags); err != nil {
		return err
	}
	item.AppliedTags = tags
	return nil
}

// packOf extracts the pack count from the item's pack-size tag.
func (c *Classifier) packOf(item *forum.Item) string {
	for _, tag := range item.AppliedTags {
		if pack, ok := c.packByTag[tag]; ok {
			return pack
		}
	}
	return ""
}

// createdAt prefers the timestamp embedded in the title over the platform's
// own creation time; recreated items keep their original stamp in the title.
func (c *Classifier) createdAt(item *forum.Item) time.Time {
	if ts, ok := report.CreatedAtFromTitle(item.Title); ok {
		return ts
	}
	return item.CreatedAt
}

func (c *Classifier) pastDeletionHorizon(item *forum.Item, now time.Time) bool {
	if c.group.DeleteHorizon <= 0 {
		return false
	}
	return now.Sub(c.createdAt(item)) > c.group.DeleteHorizon
}

// alertMalformed reports an item whose tags match no recognized state. The
// alert is deduplicated across passes; the log line fires every time.
func (c *Classifier) alertMalformed(ctx context.Context, item *forum.Item) {
	c.logger.Warn("item has unrecognized tag combination",
		"item", item.ID, "title", item.Title, "tags", item.AppliedTags)
	if _, seen := c.seenBad.Get(item.ID); seen {
		return
	}
	c.seenBad.SetDefault(item.ID, struct{}{})
	if c.notifier != nil {
		c.notifier.Alert(ctx, "item has unrecognized tags: "+item.Title)
	}
}
