// Package store is the durable side of the assistant: append-only per-day
// record logs, one calendar file per booking, and on-demand CSV reports.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

const (
	appointmentsDir = "appointments"
	calendarDir     = "ics"

	RecordTypeBooking = "booking"
	RecordTypeOptOut  = "optout"
)

// ErrBadRequest marks caller mistakes (malformed date or calendar id) so the
// HTTP layer can answer 4xx instead of 5xx.
var ErrBadRequest = errors.New("store: bad request")

// BookingRecord is written once at commit time and never mutated.
type BookingRecord struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	Start        string    `json:"start"`      // business-local, explicit offset
	End          string    `json:"end"`
	Caller       string    `json:"caller"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Note         string    `json:"note"`
	CalendarLink string    `json:"calendar_link"`
}

// OptOutRecord marks a do-not-contact request. No time range.
type OptOutRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Caller    string    `json:"caller"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Note      string    `json:"note"`
}

// BookingRequest carries the confirmed slot values into a commit.
type BookingRequest struct {
	Start       time.Time
	DurationMin int
	Caller      string
	Name        string
	Address     string
	Phone       string
	Note        string
}

// OptOutRequest carries a confirmed do-not-contact request.
type OptOutRequest struct {
	Caller  string
	Name    string
	Address string
	Phone   string
	Note    string
}

// Store owns the append-only per-day logs. Appends use O_APPEND plus a
// per-file mutex so concurrent calls committing to the same date never
// interleave partial lines.
type Store struct {
	baseDir string
	orgName string
	loc     *time.Location
	clock   func() time.Time
	logger  *logging.Logger

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the record timestamp source (tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a Store rooted at baseDir, creating the appointments and
// calendar directories.
func New(baseDir, orgName string, loc *time.Location, logger *logging.Logger, opts ...Option) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		baseDir: baseDir,
		orgName: orgName,
		loc:     loc,
		clock:   time.Now,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{s.recordsDir(), s.calendarsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) recordsDir() string   { return filepath.Join(s.baseDir, appointmentsDir) }
func (s *Store) calendarsDir() string { return filepath.Join(s.baseDir, calendarDir) }

// CommitBooking allocates an id, derives the end time, writes the record to
// the appointment-date log (mirrored to the call-date log when different)
// and generates the calendar file.
func (s *Store) CommitBooking(ctx context.Context, req BookingRequest) (*BookingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("store: commit booking: %w", err)
	}
	if req.Start.IsZero() {
		return nil, fmt.Errorf("store: commit booking: start time required")
	}
	if req.DurationMin <= 0 {
		req.DurationMin = 30
	}

	id := newID()
	start := req.Start.In(s.loc)
	end := start.Add(time.Duration(req.DurationMin) * time.Minute)
	caller := req.Caller
	if caller == "" {
		caller = req.Phone
	}
	note := req.Note
	if note == "" {
		note = "Consultation"
	}

	rec := &BookingRecord{
		ID:           id,
		Type:         RecordTypeBooking,
		CreatedAt:    s.clock().UTC(),
		Start:        start.Format(time.RFC3339),
		End:          end.Format(time.RFC3339),
		Caller:       caller,
		Name:         req.Name,
		Address:      req.Address,
		Note:         note,
		CalendarLink: "/calendar/" + id + ".ics",
	}

	ics := renderICS(id, start, end, s.orgName+" Consultation",
		fmt.Sprintf("Caller: %s; Name: %s; Address: %s", rec.Caller, rec.Name, rec.Address), s.clock().UTC())
	icsPath := filepath.Join(s.calendarsDir(), id+".ics")
	if err := os.WriteFile(icsPath, []byte(ics), 0o644); err != nil {
		return nil, fmt.Errorf("store: write calendar file: %w", err)
	}

	apptDate := start.Format("2006-01-02")
	if err := s.appendRecord(apptDate, rec); err != nil {
		return nil, err
	}
	// Mirror into the call-date log for same-day reporting convenience.
	callDate := s.clock().In(s.loc).Format("2006-01-02")
	if callDate != apptDate {
		if err := s.appendRecord(callDate, rec); err != nil {
			s.logger.Warn("store: mirror append failed", "date", callDate, "id", id, "error", err)
		}
	}

	s.logger.Info("store: booking committed", "id", id, "start", rec.Start, "date", apptDate)
	return rec, nil
}

// CommitOptOut writes a do-not-contact record to the current date's log.
func (s *Store) CommitOptOut(ctx context.Context, req OptOutRequest) (*OptOutRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("store: commit optout: %w", err)
	}
	caller := req.Caller
	if caller == "" {
		caller = req.Phone
	}
	rec := &OptOutRecord{
		ID:        newID(),
		Type:      RecordTypeOptOut,
		CreatedAt: s.clock().UTC(),
		Caller:    caller,
		Name:      req.Name,
		Address:   req.Address,
		Note:      req.Note,
	}
	date := s.clock().In(s.loc).Format("2006-01-02")
	if err := s.appendRecord(date, rec); err != nil {
		return nil, err
	}
	s.logger.Info("store: optout committed", "id", rec.ID, "date", date)
	return rec, nil
}

// Calendar returns the ICS text for a booking id.
func (s *Store) Calendar(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: calendar id %q", ErrBadRequest, id)
	}
	data, err := os.ReadFile(filepath.Join(s.calendarsDir(), id+".ics"))
	if err != nil {
		return "", fmt.Errorf("store: read calendar: %w", err)
	}
	return string(data), nil
}

func (s *Store) appendRecord(date string, rec any) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	line = append(line, '\n')

	path := s.logPath(date)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open log %s: %w", date, err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("store: append log %s: %w", date, err)
	}
	return nil
}

func (s *Store) logPath(date string) string {
	return filepath.Join(s.recordsDir(), date+".jsonl")
}

func (s *Store) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[path]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[path] = l
	return l
}

// newID is a 12-hex-char record id, short enough to read back over a call.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func validID(id string) bool {
	if len(id) != 12 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
