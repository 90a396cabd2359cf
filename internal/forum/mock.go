package forum

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is an in-memory forum used by tests across packages. Per-method error
// hooks inject failures; the zero value is usable.
type Mock struct {
	mu     sync.Mutex
	nextID int

	items   map[string]*Item          // itemID -> item
	groups  map[string][]string       // groupID -> itemIDs in creation order
	replies map[string][]Reply        // itemID -> replies
	history map[string][]Message      // groupID -> recent reports
	notices map[string][]Notice       // channelID -> posted notices
	deleted []string

	CreateErr  error
	ListErr    error
	SetTagsErr error
	FetchErr   error
	// FetchFailures fails the first N FetchReplies calls per item before
	// succeeding, for retry tests.
	FetchFailures map[string]int
	DeleteErr     error
	NotifyErr     error
}

// Notice is one message posted to a channel, with any attached images.
type Notice struct {
	Text   string
	Images []string
}

func (m *Mock) init() {
	if m.items == nil {
		m.items = make(map[string]*Item)
		m.groups = make(map[string][]string)
		m.replies = make(map[string][]Reply)
		m.history = make(map[string][]Message)
		m.notices = make(map[string][]Notice)
	}
}

// CreateItem implements Interface.
func (m *Mock) CreateItem(_ context.Context, groupID, title string, tags, images []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.nextID++
	id := fmt.Sprintf("item-%d", m.nextID)
	m.items[id] = &Item{
		ID:          id,
		Title:       title,
		AppliedTags: append([]string(nil), tags...),
		CreatedAt:   time.Now(),
		Images:      append([]string(nil), images...),
	}
	m.groups[groupID] = append(m.groups[groupID], id)
	return id, nil
}

// ListItems implements Interface.
func (m *Mock) ListItems(_ context.Context, groupID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]Item, 0, len(m.groups[groupID]))
	for _, id := range m.groups[groupID] {
		if item, ok := m.items[id]; ok {
			out = append(out, *item)
		}
	}
	return out, nil
}

// SetAppliedTags implements Interface.
func (m *Mock) SetAppliedTags(_ context.Context, itemID string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.SetTagsErr != nil {
		return m.SetTagsErr
	}
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("no such item %s", itemID)
	}
	item.AppliedTags = append([]string(nil), tags...)
	return nil
}

// FetchReplies implements Interface.
func (m *Mock) FetchReplies(_ context.Context, itemID string, limit int) ([]Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.FetchFailures[itemID] > 0 {
		m.FetchFailures[itemID]--
		return nil, fmt.Errorf("transient reply fetch failure for %s", itemID)
	}
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	replies := m.replies[itemID]
	if len(replies) > limit {
		replies = replies[:limit]
	}
	return append([]Reply(nil), replies...), nil
}

// DeleteItem implements Interface.
func (m *Mock) DeleteItem(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.items, itemID)
	m.deleted = append(m.deleted, itemID)
	return nil
}

// Notify implements Interface.
func (m *Mock) Notify(_ context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.notices[channelID] = append(m.notices[channelID], Notice{Text: text})
	return nil
}

// NotifyImages implements Interface.
func (m *Mock) NotifyImages(_ context.Context, channelID, text string, images []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.notices[channelID] = append(m.notices[channelID], Notice{Text: text, Images: append([]string(nil), images...)})
	return nil
}

// RecentReports implements Interface.
func (m *Mock) RecentReports(_ context.Context, groupID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	msgs := m.history[groupID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]Message(nil), msgs...), nil
}

// --- test helpers ---

// AddReply appends a reply to an item.
func (m *Mock) AddReply(itemID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.replies[itemID] = append(m.replies[itemID], Reply{Text: text})
}

// AddHistory appends a raw message to a group's report history.
func (m *Mock) AddHistory(groupID string, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.history[groupID] = append([]Message{msg}, m.history[groupID]...)
}

// SeedItem inserts an item directly, bypassing CreateItem.
func (m *Mock) SeedItem(groupID string, item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	cp := item
	m.items[item.ID] = &cp
	m.groups[groupID] = append(m.groups[groupID], item.ID)
}

// Item returns a copy of the stored item.
func (m *Mock) Item(itemID string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	item, ok := m.items[itemID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Notices returns all notices posted to a channel.
func (m *Mock) Notices(channelID string) []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return append([]Notice(nil), m.notices[channelID]...)
}

// Deleted returns the IDs of deleted items in deletion order.
func (m *Mock) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}
