package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayZone is the fixed timezone every report timestamp is rendered in.
// The community the pipeline serves operates on UTC+9 regardless of where
// the service itself runs.
var DisplayZone = time.FixedZone("UTC+9", 9*60*60)

const (
	dateLayout  = "2006.01.02"
	clockLayout = "15:04"
	stampLayout = dateLayout + " " + clockLayout
)

// TimestampLayout is the canonical display form of report timestamps.
const TimestampLayout = stampLayout

// Keys holds the derived identifiers for one accepted record. Title doubles
// as the discussion item's display name; Sub is the code-less dedup
// substring; Key is the ledger's unique key.
type Keys struct {
	Title string
	Sub   string
	Key   string
}

// Derive computes the canonical title, dedup substring and ledger key for a
// record observed at ts. The derivation is deterministic: equal inputs yield
// equal keys.
func Derive(r *DetectionRecord, ts time.Time) Keys {
	stamp := ts.In(DisplayZone).Format(stampLayout)
	pct := strconv.FormatFloat(r.Percent, 'f', 0, 64)
	sub := fmt.Sprintf("%s %s %s%% %sP", r.Name, r.Number, pct, r.Pack)
	return Keys{
		Title: fmt.Sprintf("%s %s / %s%% / %sP / %s", r.Name, r.Number, pct, r.Pack, stamp),
		Sub:   sub,
		Key:   stamp + " " + sub,
	}
}

// TitleFromKey reconstructs the item title a ledger key corresponds to. This
// is the join used by reconciliation for entries that predate stored item
// IDs.
func TitleFromKey(key string) (string, bool) {
	f := strings.Fields(key)
	if len(f) != 6 {
		return "", false
	}
	// key layout: date clock name number percent% packP
	return fmt.Sprintf("%s %s / %s / %s / %s %s", f[2], f[3], f[4], f[5], f[0], f[1]), true
}

// TimestampFromKey extracts the report timestamp embedded in a ledger key.
func TimestampFromKey(key string) (time.Time, bool) {
	f := strings.Fields(key)
	if len(f) < 2 {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(stampLayout, f[0]+" "+f[1], DisplayZone)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// HandleFromKey extracts the reporter name and number embedded in a ledger
// key. Used when re-scanning detection history for a lost item.
func HandleFromKey(key string) (name, number string, ok bool) {
	f := strings.Fields(key)
	if len(f) != 6 {
		return "", "", false
	}
	return f[2], f[3], true
}

// CreatedAtFromTitle parses the creation time embedded at the end of an item
// title. Returns false when the title does not carry a parseable stamp, in
// which case callers fall back to the platform's own creation timestamp.
func CreatedAtFromTitle(title string) (time.Time, bool) {
	idx := strings.LastIndex(title, " / ")
	if idx < 0 {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(stampLayout, title[idx+3:], DisplayZone)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
