package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefline/chloe-voice/pkg/logging"
)

func newTestStore(t *testing.T, clock func() time.Time) *Store {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	opts := []Option{}
	if clock != nil {
		opts = append(opts, WithClock(clock))
	}
	s, err := New(t.TempDir(), "Foreclosure Relief Group", loc, logging.New("error"), opts...)
	require.NoError(t, err)
	return s
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCommitBookingWritesLogAndCalendar(t *testing.T) {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	callTime := time.Date(2026, 3, 4, 9, 0, 0, 0, loc)
	s := newTestStore(t, fixedClock(callTime))

	start := time.Date(2026, 3, 5, 13, 0, 0, 0, loc)
	rec, err := s.CommitBooking(context.Background(), BookingRequest{
		Start:       start,
		DurationMin: 30,
		Caller:      "+15595550134",
		Name:        "John Smith",
		Address:     "123 Main St",
	})
	require.NoError(t, err)
	require.Len(t, rec.ID, 12)
	assert.Equal(t, RecordTypeBooking, rec.Type)
	assert.Equal(t, start.Format(time.RFC3339), rec.Start)
	assert.Equal(t, start.Add(30*time.Minute).Format(time.RFC3339), rec.End)
	assert.Equal(t, "/calendar/"+rec.ID+".ics", rec.CalendarLink)
	assert.Equal(t, "Consultation", rec.Note)

	// Keyed by appointment date, mirrored to the call date.
	for _, date := range []string{"2026-03-05", "2026-03-04"} {
		data, err := os.ReadFile(filepath.Join(s.baseDir, appointmentsDir, date+".jsonl"))
		require.NoError(t, err, date)
		assert.Contains(t, string(data), rec.ID)
	}

	ics, err := s.Calendar(rec.ID)
	require.NoError(t, err)
	assert.Contains(t, ics, "UID:"+rec.ID)
	assert.Contains(t, ics, "BEGIN:VEVENT")
	assert.Contains(t, ics, "DTSTART:20260305T210000Z") // 1 PM PST in UTC
}

func TestCommitBookingSameDayNotMirroredTwice(t *testing.T) {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	callTime := time.Date(2026, 3, 5, 9, 0, 0, 0, loc)
	s := newTestStore(t, fixedClock(callTime))

	start := time.Date(2026, 3, 5, 13, 0, 0, 0, loc)
	rec, err := s.CommitBooking(context.Background(), BookingRequest{Start: start, Name: "A B", Address: "1 Oak St", Phone: "+155955501"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.baseDir, appointmentsDir, "2026-03-05.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), rec.ID))
}

func TestCommitBookingRequiresStart(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.CommitBooking(context.Background(), BookingRequest{Name: "X Y"})
	assert.Error(t, err)
}

func TestCommitOptOut(t *testing.T) {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	callTime := time.Date(2026, 3, 4, 16, 30, 0, 0, loc)
	s := newTestStore(t, fixedClock(callTime))

	rec, err := s.CommitOptOut(context.Background(), OptOutRequest{
		Name:    "Maria Lopez",
		Address: "45 Camino Real",
		Phone:   "+15595550199",
	})
	require.NoError(t, err)
	assert.Equal(t, RecordTypeOptOut, rec.Type)
	assert.Equal(t, "+15595550199", rec.Caller) // falls back to phone

	data, err := os.ReadFile(filepath.Join(s.baseDir, appointmentsDir, "2026-03-04.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), rec.ID)
}

func TestRenderReportEmptyDateIsHeaderOnly(t *testing.T) {
	s := newTestStore(t, nil)
	csvText, err := s.RenderReport("2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(reportColumns, ",")+"\n", csvText)
}

func TestRenderReportRoundTripAndQuoting(t *testing.T) {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	callTime := time.Date(2026, 3, 4, 9, 0, 0, 0, loc)
	s := newTestStore(t, fixedClock(callTime))

	start := time.Date(2026, 3, 5, 13, 0, 0, 0, loc)
	rec, err := s.CommitBooking(context.Background(), BookingRequest{
		Start:   start,
		Name:    "John Smith",
		Address: "123 Main St, Apt 4",
		Phone:   "+15595550134",
	})
	require.NoError(t, err)

	csvText, err := s.RenderReport("2026-03-05")
	require.NoError(t, err)
	assert.Contains(t, csvText, rec.ID)
	// Embedded commas must be quoted.
	assert.Contains(t, csvText, "\"123 Main St, Apt 4\"")

	ics, err := s.Calendar(rec.ID)
	require.NoError(t, err)
	assert.Contains(t, ics, rec.ID)
}

func TestRenderReportSkipsMalformedLines(t *testing.T) {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	callTime := time.Date(2026, 3, 4, 9, 0, 0, 0, loc)
	s := newTestStore(t, fixedClock(callTime))

	_, err := s.CommitOptOut(context.Background(), OptOutRequest{Name: "A B", Address: "1 Oak St", Phone: "+15595550100"})
	require.NoError(t, err)

	// Corrupt the log with a half-written line and noise.
	path := filepath.Join(s.baseDir, appointmentsDir, "2026-03-04.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"id\": \"truncat\nnot json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	csvText, err := s.RenderReport("2026-03-04")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	assert.Len(t, lines, 2) // header + the one good record
}

func TestRenderReportRejectsBadDateKey(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.RenderReport("../etc/passwd")
	assert.Error(t, err)
}

func TestCalendarRejectsBadID(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.Calendar("../../secret")
	assert.Error(t, err)
	_, err = s.Calendar("zzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	callTime := time.Date(2026, 3, 4, 9, 0, 0, 0, loc)
	s := newTestStore(t, fixedClock(callTime))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CommitOptOut(context.Background(), OptOutRequest{
				Name:    fmt.Sprintf("Caller %d", i),
				Address: "1 Oak St",
				Phone:   "+15595550100",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	csvText, err := s.RenderReport("2026-03-04")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	assert.Len(t, lines, n+1)
}
