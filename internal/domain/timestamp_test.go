package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 13, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		raw    any
		want   time.Time
		wantOK bool
	}{
		{name: "rfc3339 zulu", raw: "2024-01-13T10:30:00Z", want: want, wantOK: true},
		{name: "rfc3339 offset", raw: "2024-01-13T12:30:00+02:00", want: want, wantOK: true},
		{name: "rfc3339 fractional", raw: "2024-01-13T10:30:00.000Z", want: want, wantOK: true},
		{name: "naive iso is utc", raw: "2024-01-13T10:30:00", want: want, wantOK: true},
		{name: "naive iso with micros", raw: "2024-01-13T10:30:00.000000", want: want, wantOK: true},
		{name: "epoch seconds", raw: float64(want.Unix()), want: want, wantOK: true},
		{name: "epoch millis", raw: float64(want.UnixMilli()), want: want, wantOK: true},
		{name: "epoch millis int64", raw: want.UnixMilli(), want: want, wantOK: true},
		{name: "numeric string", raw: "1705141800", want: want, wantOK: true},
		{name: "json number", raw: json.Number("1705141800000"), want: want, wantOK: true},
		{name: "provider object", raw: map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)}, want: want, wantOK: true},
		{name: "provider object underscored", raw: map[string]any{"_seconds": float64(want.Unix()), "_nanoseconds": float64(0)}, want: want, wantOK: true},
		{name: "time value", raw: want, want: want, wantOK: true},
		{name: "nil", raw: nil, wantOK: false},
		{name: "empty string", raw: "", wantOK: false},
		{name: "garbage", raw: "yesterday-ish", wantOK: false},
		{name: "negative epoch", raw: float64(-5), wantOK: false},
		{name: "object without seconds", raw: map[string]any{"foo": 1}, wantOK: false},
		{name: "unsupported type", raw: []string{"x"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestParseTimestampJSON(t *testing.T) {
	want := time.Date(2024, 1, 13, 10, 30, 0, 0, time.UTC)

	got, ok := ParseTimestampJSON([]byte(`{"_seconds":1705141800,"_nanoseconds":0}`))
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	got, ok = ParseTimestampJSON([]byte(`"2024-01-13T10:30:00"`))
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	_, ok = ParseTimestampJSON([]byte(`null`))
	assert.False(t, ok)

	_, ok = ParseTimestampJSON(nil)
	assert.False(t, ok)
}
