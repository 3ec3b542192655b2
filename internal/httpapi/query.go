package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/repository"
)

// parseLimit reads the "limit" query parameter, clamping to [1, 1000] with
// defaultLimit substituted when absent.
func parseLimit(r *http.Request, defaultLimit int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return repository.ClampLimit(0, defaultLimit)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return repository.ClampLimit(0, defaultLimit)
	}
	return repository.ClampLimit(n, defaultLimit)
}

// parseCursor decodes the "cursor" query parameter, if present.
func parseCursor(r *http.Request) (*repository.Cursor, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		return nil, nil
	}
	c, err := repository.DecodeCursor(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// parseTimeParam parses an RFC3339 query parameter, returning ok=false
// when absent.
func parseTimeParam(r *http.Request, name string) (time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, apperror.New(apperror.CodeValidation, "invalid timestamp").WithField(name)
	}
	return t, true, nil
}

// parseAnalyticsWindow parses the common "start"/"end" analytics query
// parameters, defaulting to the trailing 24h window when absent, and
// rejecting start > end.
func parseAnalyticsWindow(r *http.Request) (start, end time.Time, err error) {
	now := time.Now().UTC()
	end = now
	start = now.Add(-24 * time.Hour)

	if t, ok, parseErr := parseTimeParam(r, "start"); parseErr != nil {
		return time.Time{}, time.Time{}, parseErr
	} else if ok {
		start = t
	}
	if t, ok, parseErr := parseTimeParam(r, "end"); parseErr != nil {
		return time.Time{}, time.Time{}, parseErr
	} else if ok {
		end = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, apperror.New(apperror.CodeInvalidDateRange, "start must not be after end").WithField("start")
	}
	return start, end, nil
}

// granularityToSeconds maps the spec's granularity enum to a date_bin
// bucket width; "raw" and unrecognized values fall back to 1 hour.
func granularityToSeconds(granularity string) int {
	switch granularity {
	case "1min":
		return 60
	case "1hour":
		return 3600
	case "1day":
		return 86400
	default:
		return 3600
	}
}
