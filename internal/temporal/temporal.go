// Package temporal turns free-form date and time phrases into concrete
// calendar dates and clock times in the business timezone. All functions are
// pure: same utterance and same "now" always yield the same result.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day without a date.
type Clock struct {
	Hour   int
	Minute int
}

// businessHourCutoff: a bare hour at or below this with no am/pm marker is
// assumed to be afternoon ("at 1" means 1 PM for a consultation line).
const businessHourCutoff = 7

// weekdayNames is ordered so that multi-weekday utterances resolve the same
// way every time (first mention in this table wins).
var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"sunday", time.Sunday},
	{"domingo", time.Sunday},
	{"monday", time.Monday},
	{"lunes", time.Monday},
	{"tuesday", time.Tuesday},
	{"martes", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"miercoles", time.Wednesday},
	{"miércoles", time.Wednesday},
	{"thursday", time.Thursday},
	{"jueves", time.Thursday},
	{"friday", time.Friday},
	{"viernes", time.Friday},
	{"saturday", time.Saturday},
	{"sabado", time.Saturday},
	{"sábado", time.Saturday},
}

var monthNames = map[string]time.Month{
	"january":    time.January,
	"enero":      time.January,
	"february":   time.February,
	"febrero":    time.February,
	"march":      time.March,
	"marzo":      time.March,
	"april":      time.April,
	"abril":      time.April,
	"may":        time.May,
	"mayo":       time.May,
	"june":       time.June,
	"junio":      time.June,
	"july":       time.July,
	"julio":      time.July,
	"august":     time.August,
	"agosto":     time.August,
	"september":  time.September,
	"septiembre": time.September,
	"october":    time.October,
	"octubre":    time.October,
	"november":   time.November,
	"noviembre":  time.November,
	"december":   time.December,
	"diciembre":  time.December,
}

var (
	inDaysRE   = regexp.MustCompile(`\b(?:in|en)\s+(\d{1,3})\s+(?:days?|d[ií]as?)\b`)
	isoDateRE  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashRE    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	monthDayRE = regexp.MustCompile(`\b([a-záéíóú]+)\s+(\d{1,2})\b`)
	dayMonthRE = regexp.MustCompile(`\b(\d{1,2})\s+de\s+([a-záéíóú]+)\b`)
	clockRE    = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?`)
)

// ParseDate extracts a calendar date from the utterance, resolved against
// now in now's location. The returned time is midnight local. Weekday names
// resolve to the next occurrence, never today and never in the past.
func ParseDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	today := midnight(now)

	if containsWord(lower, "today", "hoy") {
		return today, true
	}
	if containsWord(lower, "tomorrow", "mañana", "manana") {
		return today.AddDate(0, 0, 1), true
	}
	if m := inDaysRE.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 0 {
			return today.AddDate(0, 0, n), true
		}
	}

	// Earliest weekday mention in the utterance wins.
	bestIdx := -1
	var bestDay time.Weekday
	for _, entry := range weekdayNames {
		idx := wordIndex(lower, entry.name)
		if idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			bestIdx = idx
			bestDay = entry.day
		}
	}
	if bestIdx >= 0 {
		days := int(bestDay-today.Weekday()+7) % 7
		if days == 0 {
			days = 7 // "Thursday" on a Thursday means next week
		}
		return today.AddDate(0, 0, days), true
	}

	if m := isoDateRE.FindStringSubmatch(lower); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if date, ok := civil(y, mo, d, now.Location()); ok {
			return date, true
		}
	}

	if m := slashRE.FindStringSubmatch(lower); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		year := today.Year()
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
			year = y
		}
		if date, ok := civil(year, mo, d, now.Location()); ok {
			if m[3] == "" && date.Before(today) {
				date = date.AddDate(1, 0, 0)
			}
			return date, true
		}
	}

	if m := dayMonthRE.FindStringSubmatch(lower); m != nil {
		if mo, ok := monthNames[m[2]]; ok {
			d, _ := strconv.Atoi(m[1])
			if date, ok := civil(today.Year(), int(mo), d, now.Location()); ok {
				if date.Before(today) {
					date = date.AddDate(1, 0, 0)
				}
				return date, true
			}
		}
	}

	for _, m := range monthDayRE.FindAllStringSubmatch(lower, -1) {
		mo, ok := monthNames[m[1]]
		if !ok {
			continue
		}
		d, _ := strconv.Atoi(m[2])
		if date, ok := civil(today.Year(), int(mo), d, now.Location()); ok {
			if date.Before(today) {
				date = date.AddDate(1, 0, 0)
			}
			return date, true
		}
	}

	return time.Time{}, false
}

// ParseTime extracts a clock time from the utterance. A bare hour at or
// below businessHourCutoff with no am/pm marker is read as PM. Hours above
// 23 or minutes above 59 yield no result.
func ParseTime(text string) (Clock, bool) {
	return parseClock(text, false)
}

// ParseExplicitTime is ParseTime restricted to unambiguous time phrases: an
// am/pm marker, minutes, or a noon/midnight literal. A bare number ("2
// mortgages") never qualifies. Use it where a time mention alone changes
// the conversation flow.
func ParseExplicitTime(text string) (Clock, bool) {
	return parseClock(text, true)
}

func parseClock(text string, explicit bool) (Clock, bool) {
	lower := strings.ToLower(text)

	if containsWord(lower, "noon", "mediodia", "mediodía") {
		return Clock{Hour: 12}, true
	}
	if containsWord(lower, "midnight", "medianoche") {
		return Clock{Hour: 0}, true
	}

	for _, idx := range clockRE.FindAllStringSubmatchIndex(lower, -1) {
		if partOfLargerToken(lower, idx[0], idx[1]) {
			continue
		}
		m := groups(lower, idx, 3)
		hour, err := strconv.Atoi(m[0])
		if err != nil {
			continue
		}
		minute := 0
		if m[1] != "" {
			minute, _ = strconv.Atoi(m[1])
		}
		if hour > 23 || minute > 59 {
			continue
		}
		marker := strings.ReplaceAll(m[2], ".", "")
		if explicit && marker == "" && m[1] == "" {
			continue
		}
		switch marker {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		default:
			// No marker: a bare business-hours number reads as afternoon.
			// This is deliberately lenient and only safe when a time is
			// already expected, such as an armed time slot.
			if hour >= 1 && hour <= businessHourCutoff {
				hour += 12
			}
		}
		return Clock{Hour: hour, Minute: minute}, true
	}

	return Clock{}, false
}

// Combine merges a parsed date with a parsed clock time in the date's
// location.
func Combine(date time.Time, c Clock) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// civil validates the calendar components before building a date.
func civil(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, false // e.g. Feb 30 rolled over
	}
	return date, true
}

func containsWord(text string, words ...string) bool {
	for _, w := range words {
		if wordIndex(text, w) >= 0 {
			return true
		}
	}
	return false
}

// wordIndex returns the byte offset of w in text with word boundaries on
// both sides, or -1.
func wordIndex(text, w string) int {
	from := 0
	for {
		idx := strings.Index(text[from:], w)
		if idx < 0 {
			return -1
		}
		idx += from
		before := idx == 0 || !isWordChar(rune(text[idx-1]))
		afterIdx := idx + len(w)
		after := afterIdx >= len(text) || !isWordChar(rune(text[afterIdx]))
		if before && after {
			return idx
		}
		from = idx + 1
	}
}

func isWordChar(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// partOfLargerToken rejects clock matches embedded in dates or street
// numbers ("8/30", "123 Main", "2024-05-01").
func partOfLargerToken(text string, start, end int) bool {
	if start > 0 {
		prev := text[start-1]
		if prev == '/' || prev == '-' || prev == ':' || prev == '.' || (prev >= '0' && prev <= '9') {
			return true
		}
	}
	if end < len(text) {
		next := text[end]
		if next == '/' || next == '-' || (next >= '0' && next <= '9') {
			return true
		}
	}
	return false
}

func groups(text string, idx []int, n int) []string {
	out := make([]string, n)
	for i := 1; i <= n; i++ {
		lo, hi := idx[2*i], idx[2*i+1]
		if lo >= 0 && hi >= 0 {
			out[i-1] = text[lo:hi]
		}
	}
	return out
}
