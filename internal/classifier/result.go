package classifier

import "github.com/jkivela/packwatch/internal/forum"

// ItemState pairs a discussion item with its classified state.
type ItemState struct {
	Item  forum.Item
	State State
}

// Result is the state set one classification pass produced. The reconciler
// looks items up by forum item ID (entries created with stored IDs) or by
// title (legacy entries).
type Result struct {
	states  []ItemState
	byID    map[string]int
	byTitle map[string]int
}

// NewResult creates an empty state set. Pass fills one per group; tests
// build them directly.
func NewResult() *Result {
	return &Result{
		byID:    make(map[string]int),
		byTitle: make(map[string]int),
	}
}

// Add records one classified item.
func (r *Result) Add(item forum.Item, state State) {
	r.states = append(r.states, ItemState{Item: item, State: state})
	idx := len(r.states) - 1
	r.byID[item.ID] = idx
	if _, exists := r.byTitle[item.Title]; !exists {
		// First item wins on duplicate titles; the title join is a known
		// aliasing risk for entries without stored IDs.
		r.byTitle[item.Title] = idx
	}
}

// ByID returns the classified state of the item with the given forum ID.
func (r *Result) ByID(id string) (ItemState, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return ItemState{}, false
	}
	return r.states[idx], true
}

// ByTitle returns the classified state of the item with the given title.
func (r *Result) ByTitle(title string) (ItemState, bool) {
	idx, ok := r.byTitle[title]
	if !ok {
		return ItemState{}, false
	}
	return r.states[idx], true
}

// All returns every classified item in listing order.
func (r *Result) All() []ItemState {
	return r.states
}

// Len returns the number of classified items.
func (r *Result) Len() int {
	return len(r.states)
}
