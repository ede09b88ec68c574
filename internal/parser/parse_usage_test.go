package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsageResponse(t *testing.T) {
	p := NewParser(nil)

	raw := "Here is the data you asked for:\n```json\n" +
		`{"dataPoints":[{"date":"2023-01-15T00:00:00Z","usage":120.5},{"date":"2023-02-15","usage":"98"}]}` +
		"\n```\nLet me know if you need anything else."

	points, err := p.ParseUsageResponse(raw)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), points[0].Date)
	assert.Equal(t, 120.5, points[0].Usage)
	assert.Equal(t, 98.0, points[1].Usage)
}

func TestParseUsageResponse_EmptyList(t *testing.T) {
	points, err := NewParser(nil).ParseUsageResponse(`{"dataPoints":[]}`)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestParseUsageResponse_Malformed(t *testing.T) {
	p := NewParser(nil)
	tests := []struct {
		name string
		raw  string
	}{
		{"no braces", "I could not read this bill."},
		{"reversed braces", "} oops {"},
		{"truncated", `{"dataPoints":[{"date":"2023-01-15","usage":1`},
		{"missing key", `{"points":[]}`},
		{"bad date", `{"dataPoints":[{"date":"last winter","usage":1}]}`},
		{"bad usage", `{"dataPoints":[{"date":"2023-01-15","usage":"n/a"}]}`},
		{"negative usage", `{"dataPoints":[{"date":"2023-01-15","usage":-4}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseUsageResponse(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestTrimToObject(t *testing.T) {
	got, ok := TrimToObject("prefix {\"a\":{\"b\":1}} suffix")
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":1}}`, got)

	_, ok = TrimToObject("nothing here")
	assert.False(t, ok)
}
