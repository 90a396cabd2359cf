// Package ledger persists the verification status of every accepted
// detection, keyed by the derived report key.
package ledger

// Status is the verification state of one ledger entry.
type Status string

const (
	// StatusYet marks an entry pending community verification.
	StatusYet Status = "Yet"
	// StatusGood marks a community-confirmed discovery.
	StatusGood Status = "Good"
	// StatusBad marks a community-rejected discovery.
	StatusBad Status = "Bad"
	// StatusNaN marks a suppressed duplicate or an administrator-cleared
	// entry. Not an error state.
	StatusNaN Status = "NaN"
)

// Valid reports whether s is one of the recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusYet, StatusGood, StatusBad, StatusNaN:
		return true
	}
	return false
}
