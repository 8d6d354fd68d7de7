// Package dialog implements the per-call dialogue state machine: phase
// tracking, intent disambiguation, slot filling, and the guard that decides
// when a confirmed transaction may actually be committed.
package dialog

import (
	"time"

	"github.com/reliefline/chloe-voice/internal/temporal"
)

// Phase is the conversation phase of one call.
type Phase int

const (
	PhaseLanguage Phase = iota
	PhaseIntro
	PhaseQNA
	PhaseBooking
	PhaseOptOut
	PhaseConfirm
	PhaseOutro
)

func (p Phase) String() string {
	switch p {
	case PhaseLanguage:
		return "language"
	case PhaseIntro:
		return "intro"
	case PhaseQNA:
		return "qna"
	case PhaseBooking:
		return "booking"
	case PhaseOptOut:
		return "optout"
	case PhaseConfirm:
		return "confirm"
	case PhaseOutro:
		return "outro"
	default:
		return "unknown"
	}
}

// Mode is the pending transaction kind. At most one is active at a time.
type Mode int

const (
	ModeNone Mode = iota
	ModeBooking
	ModeOptOut
)

// Slot names one required field of the pending transaction.
type Slot int

const (
	SlotNone Slot = iota
	SlotDate
	SlotTime
	SlotName
	SlotAddress
	SlotPhone
)

func (s Slot) String() string {
	switch s {
	case SlotDate:
		return "date"
	case SlotTime:
		return "time"
	case SlotName:
		return "name"
	case SlotAddress:
		return "address"
	case SlotPhone:
		return "phone"
	default:
		return "none"
	}
}

// Held carries the partially-collected slot values. Date and time are
// booking-only; name, address and phone are shared between modes.
type Held struct {
	Date    time.Time
	HasDate bool
	Time    temporal.Clock
	HasTime bool
	Name    string
	Address string
	Phone   string
}

// ClearBookingOnly drops the mode-specific values when switching away from
// booking. Shared values survive.
func (h *Held) ClearBookingOnly() {
	h.Date = time.Time{}
	h.HasDate = false
	h.Time = temporal.Clock{}
	h.HasTime = false
}

// Turn is one entry of the rolling conversation history handed to the LLM
// fallback.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CallSession is the per-call mutable record. It is created at call setup,
// mutated exclusively by the Controller for the duration of one call, and
// discarded at teardown. It is never persisted.
type CallSession struct {
	CallerID string
	Language string // "", "en-US" or "es-US"

	Phase       Phase
	Mode        Mode
	PendingSlot Slot
	Held        Held

	// RetryCount counts re-prompts for the active slot; bounded, reset when
	// the slot resolves or the mode changes.
	RetryCount int

	// OfferActive is true only immediately after the system explicitly
	// proposed scheduling; consumed on the next turn regardless of outcome.
	OfferActive bool

	// LangReprompts counts how many times the language question was re-asked.
	LangReprompts int

	// Names survives interruptions: barge-in re-arms listening but never
	// resets accumulated name state.
	Names NameCollector

	History []Turn

	// DNCKnown is set at setup when the caller is already on the
	// do-not-contact list.
	DNCKnown bool
}

// NewCallSession creates the session for one call.
func NewCallSession(callerID string) *CallSession {
	return &CallSession{
		CallerID: callerID,
		Phase:    PhaseLanguage,
	}
}

// Remember appends a history turn, trimming to the window.
func (s *CallSession) Remember(role, content string, window int) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if window > 0 && len(s.History) > window {
		s.History = s.History[len(s.History)-window:]
	}
}
