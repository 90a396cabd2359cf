package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	t.Parallel()

	rec := &DetectionRecord{Name: "Ash", Number: "12", Code: "55", Percent: 80, Pack: "2"}
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, DisplayZone)

	keys := Derive(rec, ts)
	assert.Equal(t, "Ash 12 / 80% / 2P / 2024.01.01 10:00", keys.Title)
	assert.Equal(t, "Ash 12 80% 2P", keys.Sub)
	assert.Equal(t, "2024.01.01 10:00 Ash 12 80% 2P", keys.Key)
}

func TestDerive_NormalizesToDisplayZone(t *testing.T) {
	t.Parallel()

	rec := &DetectionRecord{Name: "Misty", Number: "7", Percent: 20, Pack: "5"}
	// 01:00 UTC is 10:00 in the display zone.
	ts := time.Date(2024, 6, 15, 1, 0, 0, 0, time.UTC)

	keys := Derive(rec, ts)
	assert.Equal(t, "Misty 7 / 20% / 5P / 2024.06.15 10:00", keys.Title)
}

func TestDerive_Deterministic(t *testing.T) {
	t.Parallel()

	rec := &DetectionRecord{Name: "Gary", Number: "44", Percent: 60, Pack: "3"}
	ts := time.Date(2024, 3, 3, 3, 3, 0, 0, DisplayZone)

	assert.Equal(t, Derive(rec, ts), Derive(rec, ts))
}

func TestTitleFromKey_RoundTrip(t *testing.T) {
	t.Parallel()

	rec := &DetectionRecord{Name: "Ash", Number: "12", Percent: 80, Pack: "2"}
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, DisplayZone)
	keys := Derive(rec, ts)

	title, ok := TitleFromKey(keys.Key)
	require.True(t, ok)
	assert.Equal(t, keys.Title, title)
}

func TestTitleFromKey_Malformed(t *testing.T) {
	t.Parallel()

	_, ok := TitleFromKey("not a ledger key")
	assert.False(t, ok)
}

func TestTimestampFromKey(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, DisplayZone)
	keys := Derive(&DetectionRecord{Name: "Ash", Number: "12", Percent: 80, Pack: "2"}, ts)

	got, ok := TimestampFromKey(keys.Key)
	require.True(t, ok)
	assert.True(t, got.Equal(ts))
}

func TestHandleFromKey(t *testing.T) {
	t.Parallel()

	keys := Derive(&DetectionRecord{Name: "Oak", Number: "99", Percent: 60, Pack: "4"},
		time.Date(2024, 2, 2, 12, 30, 0, 0, DisplayZone))

	name, number, ok := HandleFromKey(keys.Key)
	require.True(t, ok)
	assert.Equal(t, "Oak", name)
	assert.Equal(t, "99", number)
}

func TestCreatedAtFromTitle(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, DisplayZone)
	keys := Derive(&DetectionRecord{Name: "Ash", Number: "12", Percent: 80, Pack: "2"}, ts)

	got, ok := CreatedAtFromTitle(keys.Title)
	require.True(t, ok)
	assert.True(t, got.Equal(ts))

	_, ok = CreatedAtFromTitle("administrative notice")
	assert.False(t, ok)
}
