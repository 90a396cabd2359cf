// Package report parses raw detection reports into structured records and
// derives the canonical titles and ledger keys used for deduplication.
package report

// NumberSentinel is used when a reporter handle carries no trailing digits.
const NumberSentinel = "000"

// DetectionRecord is one parsed detection report.
type DetectionRecord struct {
	Name    string  // reporter handle with trailing digits split off
	Number  string  // trailing digits of the handle, or NumberSentinel
	Code    string  // optional numeric instance identifier, empty when absent
	Percent float64 // 0-100
	Pack    string  // pack count as a string, "1"-"5"
}

// HasCode reports whether the record carries an instance identifier.
func (r *DetectionRecord) HasCode() bool {
	return r.Code != ""
}
