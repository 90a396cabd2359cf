package report

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jkivela/packwatch/internal/errors"
)

// Sentinel errors for parse outcomes. Neither is an operational failure;
// callers log and move on.
var (
	// ErrNotReport means the message is not a detection report at all,
	// including the explicit "Invalid" (nothing found) signal.
	ErrNotReport = errors.NewStd("message is not a detection report")
	// ErrMalformedReport means a report marker matched but the expected
	// fields could not be extracted.
	ErrMalformedReport = errors.NewStd("detection report is malformed")
)

const (
	structuredMarker = "Valid"
	rejectMarker     = "Invalid"
	pseudoMarker     = "found by "
	doubleMarker     = "Double"

	// Fixed percent tiers for reports that carry no fraction.
	altPatternPercent   = 10
	pseudoDoublePercent = 40
	pseudoSinglePercent = 20
)

var (
	handleRe     = regexp.MustCompile(`^([A-Za-z0-9]+?)(\d*)$`)
	codeRe       = regexp.MustCompile(`\((\d+)\)`)
	fractionRe   = regexp.MustCompile(`(\d+)/(\d+)\]\[(\d+)[pP]`)
	altPackRe    = regexp.MustCompile(`\((\d+) packs?\)`)
	pseudoPackRe = regexp.MustCompile(`\((\d+) packs`)
)

// Parse turns raw report text into a DetectionRecord. It returns ErrNotReport
// for messages that are not reports (including "Invalid" results) and
// ErrMalformedReport when a recognized report shape fails field extraction.
func Parse(text string) (*DetectionRecord, error) {
	if strings.Contains(text, rejectMarker) {
		return nil, ErrNotReport
	}

	lines := strings.Split(text, "\n")

	switch {
	case strings.Contains(text, structuredMarker) && len(lines) >= 3:
		return parseStructured(lines)
	case strings.Contains(text, pseudoMarker) && len(lines) >= 3:
		return parsePseudo(lines)
	default:
		return nil, ErrNotReport
	}
}

// parseStructured handles the three-line report emitted by the detection
// tooling: a verdict line, a reporter line and a result line such as
// "[4/5][2P]".
func parseStructured(lines []string) (*DetectionRecord, error) {
	fields := strings.Fields(lines[1])
	if len(fields) == 0 {
		return nil, ErrMalformedReport
	}

	name, number, ok := splitHandle(fields[0])
	if !ok {
		return nil, ErrMalformedReport
	}

	var code string
	if len(fields) > 1 {
		if m := codeRe.FindStringSubmatch(fields[1]); m != nil {
			code = m[1]
		}
	}

	percent, pack, ok := parseResultLine(lines[2])
	if !ok {
		return nil, ErrMalformedReport
	}

	return &DetectionRecord{
		Name:    name,
		Number:  number,
		Code:    code,
		Percent: percent,
		Pack:    pack,
	}, nil
}

// parsePseudo handles the free-form "found by" report variant. The percent
// is a fixed tier: double discoveries score 40, singles 20.
func parsePseudo(lines []string) (*DetectionRecord, error) {
	head := lines[0]

	percent := float64(pseudoSinglePercent)
	if strings.Contains(head, doubleMarker) {
		percent = pseudoDoublePercent
	}

	idx := strings.Index(head, pseudoMarker)
	if idx < 0 {
		return nil, ErrMalformedReport
	}
	fields := strings.Fields(head[idx+len(pseudoMarker):])
	if len(fields) == 0 {
		return nil, ErrMalformedReport
	}

	name, number, ok := splitHandle(fields[0])
	if !ok {
		return nil, ErrMalformedReport
	}

	var code string
	if len(fields) > 1 {
		if m := codeRe.FindStringSubmatch(fields[1]); m != nil {
			code = m[1]
		}
	}

	m := pseudoPackRe.FindStringSubmatch(head)
	if m == nil {
		return nil, ErrMalformedReport
	}

	return &DetectionRecord{
		Name:    name,
		Number:  number,
		Code:    code,
		Percent: percent,
		Pack:    m[1],
	}, nil
}

// parseResultLine extracts percent and pack count from a structured result
// line. The primary shape is a bracketed fraction plus pack count,
// "[4/5][2P]"; the fallback shape "(3 packs)" carries a fixed percent.
func parseResultLine(line string) (percent float64, pack string, ok bool) {
	if m := fractionRe.FindStringSubmatch(line); m != nil {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA != nil || errB != nil || b == 0 {
			return 0, "", false
		}
		return 100 * a / b, m[3], true
	}
	if m := altPackRe.FindStringSubmatch(line); m != nil {
		return altPatternPercent, m[1], true
	}
	return 0, "", false
}

// splitHandle splits a reporter handle into its name and trailing digits.
// Digits default to NumberSentinel when absent.
func splitHandle(token string) (name, number string, ok bool) {
	m := handleRe.FindStringSubmatch(token)
	if m == nil {
		return "", "", false
	}
	name = m[1]
	number = m[2]
	if number == "" {
		number = NumberSentinel
	}
	return name, number, true
}
