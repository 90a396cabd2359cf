// Package forum defines the contract with the external discussion-forum
// service. The curation engine only ever talks to Interface; Client speaks
// to the forum gateway over JSON HTTP and Mock backs the tests.
package forum

import (
	"context"
	"time"
)

// Item is one discussion item as seen on the platform. AppliedTags carries
// platform tag IDs; the classifier interprets them through the per-group tag
// mapping.
type Item struct {
	ID          string
	Title       string
	AppliedTags []string
	CreatedAt   time.Time
	Archived    bool
	// Images holds the item's lead image URLs, forwarded to the showcase
	// channel on confirmation.
	Images []string
}

// Reply is one reply inside a discussion item.
type Reply struct {
	Text string
}

// Message is one raw message from the detection-report history, used when
// recreating a lost item.
type Message struct {
	Text      string
	Images    []string
	CreatedAt time.Time
}

// Interface is the discussion-forum service contract.
type Interface interface {
	// CreateItem opens a new discussion item and returns its ID.
	CreateItem(ctx context.Context, groupID, title string, tags, images []string) (string, error)
	// ListItems returns the group's discussion items, active and archived.
	ListItems(ctx context.Context, groupID string) ([]Item, error)
	// SetAppliedTags replaces an item's tag set.
	SetAppliedTags(ctx context.Context, itemID string, tags []string) error
	// FetchReplies returns up to limit replies of an item. This is the one
	// inherently flaky call; callers wrap it in a bounded retry.
	FetchReplies(ctx context.Context, itemID string, limit int) ([]Reply, error)
	// DeleteItem removes an item from the forum.
	DeleteItem(ctx context.Context, itemID string) error
	// Notify posts text to a channel.
	Notify(ctx context.Context, channelID, text string) error
	// NotifyImages posts text plus attached images to a channel.
	NotifyImages(ctx context.Context, channelID, text string, images []string) error
	// RecentReports returns the latest raw messages from the group's
	// detection-report history, newest first.
	RecentReports(ctx context.Context, groupID string, limit int) ([]Message, error)
}
