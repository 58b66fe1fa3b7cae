package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts accepted for textual timestamps. Naive layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// ParseTimestamp converts a raw timestamp from an external collaborator into an instant.
//
// Accepted forms: RFC 3339 strings, naive ISO-8601 strings, epoch seconds or
// milliseconds (numbers or numeric strings), and provider timestamp objects with
// seconds/nanoseconds fields. The boolean is false when the value cannot be
// interpreted; callers must treat that as an unknown instant.
func ParseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		return parseTimestampString(v)
	case float64:
		return fromEpoch(v)
	case int64:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case map[string]any:
		return fromTimestampObject(v)
	case json.RawMessage:
		return ParseTimestampJSON(v)
	}
	return time.Time{}, false
}

// ParseTimestampJSON decodes a raw JSON value and parses it as a timestamp.
func ParseTimestampJSON(data []byte) (time.Time, bool) {
	if len(data) == 0 {
		return time.Time{}, false
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return time.Time{}, false
	}
	return ParseTimestamp(v)
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}

	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f > epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func fromTimestampObject(m map[string]any) (time.Time, bool) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, false
	}

	sec, ok := toFloat(secRaw)
	if !ok {
		return time.Time{}, false
	}

	nsRaw, ok := m["nanoseconds"]
	if !ok {
		nsRaw = m["_nanoseconds"]
	}
	ns, _ := toFloat(nsRaw)

	if sec <= 0 && ns <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), int64(ns)).UTC(), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
