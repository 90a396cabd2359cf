package ledger

import (
	"encoding/json"
	"fmt"
)

// Entry is the persisted value for one ledger key. ItemID records the forum
// item created for the entry; entries written before item IDs were stored
// decode with an empty ItemID and are matched back to their item by title.
type Entry struct {
	Status Status `json:"status"`
	ItemID string `json:"item_id,omitempty"`
}

// UnmarshalJSON accepts both the current object form and the legacy bare
// status string form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Status = Status(s)
		e.ItemID = ""
		return nil
	}

	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("ledger entry: %w", err)
	}
	*e = Entry(p)
	return nil
}

// Document is the whole persisted ledger, key to entry.
type Document map[string]Entry

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
