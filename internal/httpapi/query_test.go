package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/llm-observatory-storage/internal/repository"
)

func reqWithQuery(t *testing.T, rawQuery string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil)
	return r
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 50, parseLimit(reqWithQuery(t, ""), 50))
	assert.Equal(t, 10, parseLimit(reqWithQuery(t, "limit=10"), 50))
	assert.Equal(t, 1000, parseLimit(reqWithQuery(t, "limit=5000"), 50))
	assert.Equal(t, 50, parseLimit(reqWithQuery(t, "limit=notanumber"), 50))
}

func TestParseCursor(t *testing.T) {
	t.Run("Absent", func(t *testing.T) {
		c, err := parseCursor(reqWithQuery(t, ""))
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("Present", func(t *testing.T) {
		cursor := repository.Cursor{Timestamp: time.Now().UTC(), TraceID: "abc"}
		r := reqWithQuery(t, "cursor="+cursor.Encode())
		got, err := parseCursor(r)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "abc", got.TraceID)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := parseCursor(reqWithQuery(t, "cursor=not-valid-base64!!!"))
		require.Error(t, err)
	})
}

func TestParseTimeParam(t *testing.T) {
	t.Run("Absent", func(t *testing.T) {
		_, ok, err := parseTimeParam(reqWithQuery(t, ""), "start")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Valid", func(t *testing.T) {
		r := reqWithQuery(t, "start=2026-01-01T00%3A00%3A00Z")
		ts, ok, err := parseTimeParam(r, "start")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2026, ts.Year())
	})

	t.Run("Invalid", func(t *testing.T) {
		r := reqWithQuery(t, "start=not-a-time")
		_, _, err := parseTimeParam(r, "start")
		require.Error(t, err)
	})
}

func TestParseAnalyticsWindow(t *testing.T) {
	t.Run("DefaultsToTrailing24h", func(t *testing.T) {
		start, end, err := parseAnalyticsWindow(reqWithQuery(t, ""))
		require.NoError(t, err)
		assert.WithinDuration(t, end.Add(-24*time.Hour), start, time.Second)
	})

	t.Run("StartAfterEndRejected", func(t *testing.T) {
		r := reqWithQuery(t, "start=2026-02-01T00%3A00%3A00Z&end=2026-01-01T00%3A00%3A00Z")
		_, _, err := parseAnalyticsWindow(r)
		require.Error(t, err)
	})
}

func TestGranularityToSeconds(t *testing.T) {
	assert.Equal(t, 60, granularityToSeconds("1min"))
	assert.Equal(t, 3600, granularityToSeconds("1hour"))
	assert.Equal(t, 86400, granularityToSeconds("1day"))
	assert.Equal(t, 3600, granularityToSeconds("raw"))
	assert.Equal(t, 3600, granularityToSeconds(""))
}
