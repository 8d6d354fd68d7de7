package store

import (
	"strings"
	"time"
)

const icsStamp = "20060102T150405Z"

// renderICS builds a single-event VCALENDAR body. Timestamps are UTC per
// RFC 5545; lines are CRLF separated.
func renderICS(uid string, start, end time.Time, summary, description string, now time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//FRG//Chloe//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + now.UTC().Format(icsStamp),
		"DTSTART:" + start.UTC().Format(icsStamp),
		"DTEND:" + end.UTC().Format(icsStamp),
		"SUMMARY:" + escapeICS(summary),
		"DESCRIPTION:" + escapeICS(description),
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}
	return strings.Join(lines, "\r\n")
}

// escapeICS escapes the text value characters RFC 5545 reserves.
func escapeICS(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}
