package sqlitedb

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimeSortsChronologically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	times := []time.Time{
		base.Add(120 * time.Millisecond),
		base.Add(100 * time.Millisecond),
		base,
		base.Add(time.Second),
	}
	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = FormatTime(ts)
	}
	sort.Strings(formatted)

	assert.Equal(t, []string{
		"2026-03-01T12:00:05.000000000Z",
		"2026-03-01T12:00:05.100000000Z",
		"2026-03-01T12:00:05.120000000Z",
		"2026-03-01T12:00:06.000000000Z",
	}, formatted)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 5, 120_000_000, time.UTC)

	got, err := ParseTime(FormatTime(want.In(time.FixedZone("CET", 3600))))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseTime("2026-03-01T12:00:05.12Z")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	_, err = ParseTime("yesterday")
	assert.ErrorContains(t, err, "parse time")
}

func TestOpenAppliesSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), `CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY);`)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO t (id) VALUES (1)`)
	require.NoError(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "bad.db"), `CREATE TABLE (`)
	assert.ErrorContains(t, err, "apply schema")
}
