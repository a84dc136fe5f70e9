package notebook

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006/1/2 15:04:05",
	"2006/1/2",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006",
}

// parseDate parses the date strings notes have been written with.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Date.toString() appends the zone name in parentheses.
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return inRange(t.UTC())
		}
	}
	return time.Time{}, false
}

func fromMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, false
	}
	return inRange(time.UnixMilli(int64(ms)).UTC())
}

// inRange rejects dates that cannot be written as a four digit year.
func inRange(t time.Time) (time.Time, bool) {
	if t.Year() < 0 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t, true
}

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatDate formats t in the canonical note date layout.
func FormatDate(t time.Time) string {
	return formatDate(t)
}

// DateValue converts a stored date of any supported shape to the canonical layout.
func DateValue(v any) (string, bool) {
	t, ok, _ := coerceDate(v)
	if !ok {
		return "", false
	}
	return formatDate(t), true
}

// coerceDate converts a stored date value to the canonical layout.
// missing is true when there was no date at all.
func coerceDate(v any) (t time.Time, ok bool, missing bool) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false, true
	case string:
		if strings.TrimSpace(d) == "" {
			return time.Time{}, false, true
		}
		if t, ok := parseDate(d); ok {
			return t, true, false
		}
		if ms, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil {
			t, ok := fromMillis(ms)
			return t, ok, false
		}
		return time.Time{}, false, false
	case json.Number:
		ms, err := d.Float64()
		if err != nil {
			return time.Time{}, false, false
		}
		t, ok := fromMillis(ms)
		return t, ok, false
	case float64:
		t, ok := fromMillis(d)
		return t, ok, false
	case int64:
		t, ok := fromMillis(float64(d))
		return t, ok, false
	case int:
		t, ok := fromMillis(float64(d))
		return t, ok, false
	case time.Time:
		t, ok := inRange(d.UTC())
		return t, ok, false
	case map[string]any:
		// Extended JSON dates: {"$date": ...}
		if inner, found := d["$date"]; found {
			t, ok, _ := coerceDate(inner)
			return t, ok, false
		}
		return time.Time{}, false, false
	default:
		return time.Time{}, false, false
	}
}
