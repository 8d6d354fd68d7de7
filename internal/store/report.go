package store

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// reportColumns is the fixed CSV column order for per-date reports.
var reportColumns = []string{
	"id", "record_type", "created_at", "caller", "name", "address",
	"appointment_start", "appointment_end", "note", "calendar_link",
}

var dateKeyRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// reportRow is the union of booking and optout fields for rendering.
type reportRow struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	Caller       string    `json:"caller"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Note         string    `json:"note"`
	CalendarLink string    `json:"calendar_link"`
}

// RenderReport reads the date's log and renders it as CSV with a fixed
// column order. Malformed lines are skipped, never fatal; a date with no
// records yields only the header row.
func (s *Store) RenderReport(date string) (string, error) {
	if !dateKeyRE.MatchString(date) {
		return "", fmt.Errorf("%w: report date %q", ErrBadRequest, date)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportColumns); err != nil {
		return "", fmt.Errorf("store: render report header: %w", err)
	}

	f, err := os.Open(s.logPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			w.Flush()
			return buf.String(), w.Error()
		}
		return "", fmt.Errorf("store: open log %s: %w", date, err)
	}
	defer f.Close()

	lock := s.fileLock(s.logPath(date))
	lock.Lock()
	defer lock.Unlock()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row reportRow
		if err := json.Unmarshal(line, &row); err != nil || row.ID == "" {
			s.logger.Warn("store: skipping malformed report line", "date", date, "line", lineNo)
			continue
		}
		record := []string{
			row.ID,
			row.Type,
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.Caller,
			row.Name,
			row.Address,
			row.Start,
			row.End,
			row.Note,
			row.CalendarLink,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("store: render report row: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("store: scan log %s: %w", date, err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("store: flush report: %w", err)
	}
	return buf.String(), nil
}
