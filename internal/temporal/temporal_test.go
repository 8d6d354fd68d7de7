package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday, March 4 2026, 10:15 local.
func refNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return time.Date(2026, time.March, 4, 10, 15, 0, 0, loc)
}

func TestParseDateRelative(t *testing.T) {
	now := refNow(t)

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"today", "can we do today", time.Date(2026, 3, 4, 0, 0, 0, 0, now.Location())},
		{"tomorrow", "tomorrow works", time.Date(2026, 3, 5, 0, 0, 0, 0, now.Location())},
		{"manana", "mañana por favor", time.Date(2026, 3, 5, 0, 0, 0, 0, now.Location())},
		{"in n days", "in 3 days", time.Date(2026, 3, 7, 0, 0, 0, 0, now.Location())},
		{"en dias", "en 5 días", time.Date(2026, 3, 9, 0, 0, 0, 0, now.Location())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.text, now)
			require.True(t, ok)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestParseDateWeekdayAlwaysFuture(t *testing.T) {
	now := refNow(t) // a Wednesday

	for name, wd := range map[string]time.Weekday{
		"monday":   time.Monday,
		"thursday": time.Thursday,
		"jueves":   time.Thursday,
		"sunday":   time.Sunday,
		// Same-named weekday must roll a full week, never resolve to today.
		"wednesday": time.Wednesday,
		"miércoles": time.Wednesday,
	} {
		got, ok := ParseDate("how about "+name, now)
		require.True(t, ok, name)
		assert.Equal(t, wd, got.Weekday(), name)
		diff := got.Sub(now)
		assert.True(t, diff > 0, "%s resolved to the past or today: %s", name, got)
		assert.True(t, got.Sub(now) <= 7*24*time.Hour, "%s more than a week out: %s", name, got)
	}
}

func TestParseDateExplicitForms(t *testing.T) {
	now := refNow(t)

	got, ok := ParseDate("2026-04-09 works", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 4, 9, 0, 0, 0, 0, now.Location()), got)

	got, ok = ParseDate("how about 4/9", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 4, 9, 0, 0, 0, 0, now.Location()), got)

	// Month/day already past this year rolls to next year.
	got, ok = ParseDate("1/15 then", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, now.Location()), got)

	got, ok = ParseDate("march 20 please", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, now.Location()), got)

	got, ok = ParseDate("el 20 de marzo", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, now.Location()), got)
}

func TestParseDateRejectsGarbage(t *testing.T) {
	now := refNow(t)

	for _, text := range []string{
		"",
		"just some words",
		"february 30",
		"13/45",
	} {
		_, ok := ParseDate(text, now)
		assert.False(t, ok, "expected no date for %q", text)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Clock
	}{
		{"explicit pm", "thursday at 1pm", Clock{13, 0}},
		{"explicit am", "9am works", Clock{9, 0}},
		{"twelve am", "12am", Clock{0, 0}},
		{"h colon mm", "let's say 10:45", Clock{10, 45}},
		{"hmm pm", "2:30 p.m.", Clock{14, 30}},
		{"noon", "noon is fine", Clock{12, 0}},
		{"mediodia", "al mediodía", Clock{12, 0}},
		{"midnight", "midnight", Clock{0, 0}},
		{"bare small hour is pm", "at 3", Clock{15, 0}},
		{"bare business hour kept", "at 10", Clock{10, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeRejects(t *testing.T) {
	for _, text := range []string{
		"",
		"no numbers here",
		"25:00",
		"10:75",
		"123 Main Street",  // street number, not a time
		"8/30",             // a date, not a time
		"call 2024-05-01",  // ISO date
	} {
		_, ok := ParseTime(text)
		assert.False(t, ok, "expected no time for %q", text)
	}
}

func TestParseExplicitTime(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Clock
	}{
		{"am pm marker", "2 pm", Clock{14, 0}},
		{"minutes", "2:30", Clock{14, 30}},
		{"noon literal", "noon works for me", Clock{12, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseExplicitTime(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	// Bare numbers that ParseTime accepts are rejected here.
	for _, text := range []string{
		"i have 2 mortgages on the property",
		"at 3",
		"room 12",
	} {
		_, ok := ParseExplicitTime(text)
		assert.False(t, ok, "expected no explicit time for %q", text)
	}
}

func TestParseTimeDeterministic(t *testing.T) {
	now := refNow(t)
	a, okA := ParseDate("monday or friday", now)
	require.True(t, okA)
	for i := 0; i < 20; i++ {
		b, okB := ParseDate("monday or friday", now)
		require.True(t, okB)
		assert.True(t, a.Equal(b))
	}
}

func TestCombine(t *testing.T) {
	now := refNow(t)
	date, ok := ParseDate("tomorrow", now)
	require.True(t, ok)
	clock, ok := ParseTime("1pm")
	require.True(t, ok)

	at := Combine(date, clock)
	assert.Equal(t, 13, at.Hour())
	assert.Equal(t, date.Day(), at.Day())
	assert.Equal(t, now.Location(), at.Location())
}
