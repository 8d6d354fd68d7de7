package dialog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/reliefline/chloe-voice/internal/extract"
	"github.com/reliefline/chloe-voice/internal/observability/metrics"
	"github.com/reliefline/chloe-voice/internal/store"
	"github.com/reliefline/chloe-voice/internal/temporal"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

// ErrGuardBlocked marks a commit attempt that failed the anti-loop or
// required-field invariant. It is recovered by re-prompting, never surfaced
// to the caller as an error.
var ErrGuardBlocked = errors.New("dialog: commit guard blocked")

// Store is the persistence boundary the controller commits through.
type Store interface {
	CommitBooking(ctx context.Context, req store.BookingRequest) (*store.BookingRecord, error)
	CommitOptOut(ctx context.Context, req store.OptOutRequest) (*store.OptOutRecord, error)
}

// DNCIndex is the optional do-not-contact lookup consulted at setup and
// updated after opt-out commits.
type DNCIndex interface {
	IsMarked(ctx context.Context, phone string) (bool, error)
	Mark(ctx context.Context, phone, recordID string) error
}

// Tool names the LLM may propose. Proposals are advisory: the controller
// applies the same guard and required-field invariants as typed input.
const (
	ToolBookAppointment = "book_appointment"
	ToolMarkOptOut      = "mark_opt_out"
)

// ToolCall is an advisory action proposed by the LLM fallback.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ChatRequest is what the controller hands to the LLM fallback.
type ChatRequest struct {
	Language string
	History  []Turn
	CallerID string
}

// ChatReply is the fallback's answer: text to speak plus any advisory tool
// calls.
type ChatReply struct {
	Text      string
	ToolCalls []ToolCall
}

// ChatClient is the LLM fallback boundary.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
}

// Reply is the controller's per-turn output for the transport adapter.
type Reply struct {
	Text           string
	SwitchLanguage bool
	TTSLanguage    string
	STTLanguage    string
}

// Options configures a Controller.
type Options struct {
	OrgName            string
	AssistantName      string
	Location           *time.Location
	DefaultLanguage    string
	DefaultDurationMin int
	DefaultCountryCode string
	HistoryWindow      int
	MaxSlotRetries     int
	LLMTimeout         time.Duration
	CommitTimeout      time.Duration
	Clock              func() time.Time
}

// Controller is the per-call dialogue state machine. One Controller serves
// all calls; all per-call state lives in the CallSession, which each call's
// event loop owns exclusively.
type Controller struct {
	store   Store
	chat    ChatClient
	dnc     DNCIndex
	metrics *metrics.CallMetrics
	logger  *logging.Logger
	opts    Options
}

// NewController wires the dialogue state machine.
func NewController(st Store, chat ChatClient, dnc DNCIndex, m *metrics.CallMetrics, logger *logging.Logger, opts Options) *Controller {
	if st == nil {
		panic("dialog: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = LangEnglish
	}
	if opts.DefaultDurationMin <= 0 {
		opts.DefaultDurationMin = 30
	}
	if opts.DefaultCountryCode == "" {
		opts.DefaultCountryCode = "1"
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 12
	}
	if opts.MaxSlotRetries <= 0 {
		opts.MaxSlotRetries = 2
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{store: st, chat: chat, dnc: dnc, metrics: m, logger: logger, opts: opts}
}

// Setup starts a call: creates the greeting and, when a DNC index is wired,
// adjusts it for callers already marked do-not-contact.
func (c *Controller) Setup(ctx context.Context, s *CallSession) Reply {
	p := promptsFor(c.opts.DefaultLanguage)
	greeting := p.Greeting
	if c.dnc != nil && s.CallerID != "" {
		marked, err := c.dnc.IsMarked(ctx, s.CallerID)
		if err != nil {
			c.logger.Warn("dialog: dnc lookup failed", "error", err)
		} else if marked {
			s.DNCKnown = true
			greeting = p.DNCGreeting
		}
	}
	s.Phase = PhaseLanguage
	return Reply{Text: fmt.Sprintf(greeting, c.opts.AssistantName, c.opts.OrgName)}
}

// HandleUtterance processes one caller turn and always returns something to
// speak.
func (c *Controller) HandleUtterance(ctx context.Context, s *CallSession, text string) Reply {
	c.metrics.ObserveTurn(s.Phase.String())

	text = strings.TrimSpace(text)
	p := c.prompts(s)
	if text == "" {
		return Reply{Text: p.Repeat}
	}

	// The scheduling offer is consumed on this turn no matter the outcome.
	offered := s.OfferActive
	s.OfferActive = false

	if s.Phase == PhaseIntro || s.Phase == PhaseOutro {
		s.Phase = PhaseQNA
	}

	if s.Phase == PhaseLanguage {
		return c.handleLanguagePhase(ctx, s, text, offered)
	}

	// An explicit request for the other language wins over everything; it
	// never resets held state.
	if lang, ok := extract.LanguageRequest(text); ok && lang != s.Language {
		return c.switchLanguage(s, lang)
	}

	// Opt-out intent binds from any phase, skipping booking progress but
	// keeping shared slots.
	if extract.WantsOptOut(text) && s.Mode != ModeOptOut {
		c.enterMode(s, ModeOptOut)
		return c.advance(ctx, s)
	}

	if s.Phase == PhaseConfirm {
		return c.handleConfirm(ctx, s, text)
	}

	// Mid-flow informational question: snap back to QNA, acknowledge the
	// topic change, keep every held slot, and offer to pick the flow back
	// up so a bare yes or a slot answer resumes on the next turn.
	if s.Mode != ModeNone && s.Phase != PhaseQNA && extract.IsQuestion(text) {
		s.Phase = PhaseQNA
		answer := c.llmFallback(ctx, s, text)
		answer.Text = strings.TrimSpace(p.TopicChange + " " + answer.Text)
		if s.Mode != ModeNone && s.Phase == PhaseQNA {
			s.OfferActive = true
			answer.Text = strings.TrimSpace(answer.Text + " " + p.ResumeOffer)
		}
		return answer
	}

	if s.Mode != ModeNone && (s.Phase == PhaseBooking || s.Phase == PhaseOptOut) {
		return c.fillSlot(ctx, s, text, offered)
	}

	return c.handleQNA(ctx, s, text, offered)
}

// HandleInterrupt acknowledges a barge-in. The pending slot stays armed and
// accumulated state (including partial names) survives; any in-flight LLM
// response was already discarded by the transport adapter cancelling the
// turn context.
func (c *Controller) HandleInterrupt(s *CallSession, partial string) Reply {
	c.metrics.ObserveInterrupt()
	c.logger.Debug("dialog: interrupted", "phase", s.Phase.String(), "pending", s.PendingSlot.String(), "partial_len", len(partial))
	return Reply{Text: c.prompts(s).InterruptAck}
}

// HandleLanguageRequest switches the call language explicitly (transport
// level language event).
func (c *Controller) HandleLanguageRequest(s *CallSession, target string) Reply {
	if target != LangSpanish {
		target = LangEnglish
	}
	return c.switchLanguage(s, target)
}

func (c *Controller) prompts(s *CallSession) promptSet {
	if s.Language == "" {
		return promptsFor(c.opts.DefaultLanguage)
	}
	return promptsFor(s.Language)
}

func (c *Controller) switchLanguage(s *CallSession, lang string) Reply {
	s.Language = lang
	if s.Phase == PhaseLanguage {
		s.Phase = PhaseIntro
	}
	p := promptsFor(lang)
	text := p.LanguageAck
	// Re-issue the pending prompt so the caller knows where we left off.
	if s.Mode != ModeNone && s.PendingSlot != SlotNone {
		text = text + " " + c.slotPrompt(s, p)
	}
	return Reply{
		Text:           text,
		SwitchLanguage: true,
		TTSLanguage:    lang,
		STTLanguage:    lang,
	}
}

// handleLanguagePhase resolves the initial language choice: one re-prompt,
// then the default language and normal processing of the same utterance.
func (c *Controller) handleLanguagePhase(ctx context.Context, s *CallSession, text string, offered bool) Reply {
	if lang, ok := extract.LanguageRequest(text); ok {
		return c.switchLanguage(s, lang)
	}
	if s.LangReprompts == 0 {
		s.LangReprompts++
		return Reply{Text: promptsFor(c.opts.DefaultLanguage).AskLanguage}
	}
	s.Language = c.opts.DefaultLanguage
	s.Phase = PhaseQNA
	return c.HandleUtterance(ctx, s, text)
}

func (c *Controller) enterMode(s *CallSession, m Mode) {
	if s.Mode == ModeBooking && m != ModeBooking {
		s.Held.ClearBookingOnly()
	}
	s.Mode = m
	s.RetryCount = 0
	s.PendingSlot = SlotNone
	switch m {
	case ModeBooking:
		s.Phase = PhaseBooking
	case ModeOptOut:
		s.Phase = PhaseOptOut
	default:
		s.Phase = PhaseQNA
	}
}

// handleQNA is the resting phase: booking triggers, human escalation, mode
// resumption, and otherwise the LLM fallback.
func (c *Controller) handleQNA(ctx context.Context, s *CallSession, text string, offered bool) Reply {
	p := c.prompts(s)

	if extract.WantsHuman(text) {
		s.OfferActive = true
		return Reply{Text: p.HumanHandoff}
	}

	date, hasDate := temporal.ParseDate(text, c.now())
	// A bare number ("I have 2 mortgages") must not read as a time here;
	// only an unambiguous time phrase can start a booking on its own.
	_, hasExplicitTime := temporal.ParseExplicitTime(text)

	// An affirmative after our offer starts a booking unless an opt-out is
	// paused; that one resumes below instead.
	wantsBooking := extract.WantsScheduling(text) ||
		hasDate || hasExplicitTime ||
		(offered && s.Mode != ModeOptOut && extract.IsAffirmative(text))

	if wantsBooking {
		if s.Mode != ModeBooking {
			c.enterMode(s, ModeBooking)
		} else {
			s.Phase = PhaseBooking
		}
		if hasDate {
			s.Held.Date = date
			s.Held.HasDate = true
		}
		if clock, ok := temporal.ParseTime(text); ok {
			s.Held.Time = clock
			s.Held.HasTime = true
		}
		return c.advance(ctx, s)
	}

	// A paused opt-out resumes on an affirmative after our offer.
	if s.Mode == ModeOptOut && offered && extract.IsAffirmative(text) {
		s.Phase = PhaseOptOut
		return c.advance(ctx, s)
	}

	// Right after a resume offer, answering the pending slot directly picks
	// the paused mode back up.
	if s.Mode != ModeNone && s.PendingSlot != SlotNone && offered && !extract.IsQuestion(text) {
		if s.Mode == ModeBooking {
			s.Phase = PhaseBooking
		} else {
			s.Phase = PhaseOptOut
		}
		return c.fillSlot(ctx, s, text, offered)
	}

	return c.llmFallback(ctx, s, text)
}

// fillSlot tries to resolve the pending slot from the utterance and either
// advances or re-prompts within the bounded retry budget.
func (c *Controller) fillSlot(ctx context.Context, s *CallSession, text string, offered bool) Reply {
	if s.PendingSlot == SlotNone {
		return c.advance(ctx, s)
	}
	p := c.prompts(s)

	resolved := false
	switch s.PendingSlot {
	case SlotDate:
		if date, ok := temporal.ParseDate(text, c.now()); ok {
			s.Held.Date = date
			s.Held.HasDate = true
			resolved = true
		}
		// Opportunistic: "Thursday at 1pm" fills both.
		if clock, ok := temporal.ParseTime(text); ok {
			s.Held.Time = clock
			s.Held.HasTime = true
		}
	case SlotTime:
		if clock, ok := temporal.ParseTime(text); ok {
			s.Held.Time = clock
			s.Held.HasTime = true
			resolved = true
		}
		if date, ok := temporal.ParseDate(text, c.now()); ok {
			s.Held.Date = date
			s.Held.HasDate = true
		}
	case SlotName:
		prevFirst, prevConfirm := s.Names.First(), s.Names.AwaitingConfirm()
		resolved = c.observeName(s, text)
		if !resolved {
			progressed := s.Names.First() != prevFirst || s.Names.AwaitingConfirm() != prevConfirm
			return c.nameReprompt(s, p, progressed)
		}
	case SlotAddress:
		if addr, ok := extract.Address(text); ok && extract.IsFullStreetAddress(addr) {
			s.Held.Address = addr
			resolved = true
		}
	case SlotPhone:
		if phone, ok := extract.Phone(text, c.opts.DefaultCountryCode); ok {
			s.Held.Phone = phone
			resolved = true
		}
	}

	if resolved {
		s.RetryCount = 0
		s.PendingSlot = SlotNone
		return c.advance(ctx, s)
	}

	s.RetryCount++
	if s.RetryCount > c.opts.MaxSlotRetries {
		// Abandon the mode without discarding held values.
		c.logger.Info("dialog: slot retries exhausted", "slot", s.PendingSlot.String(), "mode_phase", s.Phase.String())
		s.Mode = ModeNone
		s.Phase = PhaseQNA
		s.PendingSlot = SlotNone
		s.RetryCount = 0
		return Reply{Text: p.SlotAbandon}
	}
	return Reply{Text: p.SorryRetry + c.slotPrompt(s, p)}
}

// observeName runs the name sub-machine, including the confirm-as-is path.
func (c *Controller) observeName(s *CallSession, text string) bool {
	if s.Names.AwaitingConfirm() && extract.IsAffirmative(text) {
		if name, ok := s.Names.ConfirmAsIs(); ok {
			s.Held.Name = name
			return true
		}
	}
	if name, ok := extract.Name(text); ok {
		s.Held.Name = name
		return true
	}
	done, name := s.Names.Observe(text)
	if done {
		s.Held.Name = name
		return true
	}
	return false
}

// nameReprompt picks the right prompt for the collector's intermediate
// states. An observation that moved the collector forward (a first token
// bound, the confirm-as-is offer opened) resets the retry budget; one that
// did not spends it, so a held first token cannot re-prompt forever.
func (c *Controller) nameReprompt(s *CallSession, p promptSet, progressed bool) Reply {
	if progressed {
		s.RetryCount = 0
	} else {
		s.RetryCount++
		if s.RetryCount > c.opts.MaxSlotRetries {
			s.Mode = ModeNone
			s.Phase = PhaseQNA
			s.PendingSlot = SlotNone
			s.RetryCount = 0
			return Reply{Text: p.SlotAbandon}
		}
	}
	switch {
	case s.Names.AwaitingConfirm():
		return Reply{Text: fmt.Sprintf(p.AskNameConfirm, s.Names.First())}
	case s.Names.First() != "":
		prompt := fmt.Sprintf(p.AskSurname, s.Names.First())
		if progressed {
			return Reply{Text: prompt}
		}
		return Reply{Text: p.SorryRetry + prompt}
	default:
		return Reply{Text: p.SorryRetry + p.AskName}
	}
}

// advance walks the slot order for the active mode, prompting for exactly
// one missing slot per turn, or moves to CONFIRM when complete.
func (c *Controller) advance(ctx context.Context, s *CallSession) Reply {
	p := c.prompts(s)

	for _, slot := range c.slotOrder(s) {
		if c.slotFilled(s, slot) {
			continue
		}
		if s.PendingSlot != slot {
			s.PendingSlot = slot
			s.RetryCount = 0
		}
		return Reply{Text: c.slotPrompt(s, p)}
	}

	s.PendingSlot = SlotNone
	s.Phase = PhaseConfirm
	// The confirmation readback is itself an explicit scheduling offer, so
	// the following affirmative passes the commit guard.
	s.OfferActive = true
	switch s.Mode {
	case ModeBooking:
		when := formatWhen(c.startTime(s), s.Language)
		return Reply{Text: fmt.Sprintf(p.ConfirmBooking, s.Held.Name, s.Held.Address, when)}
	default:
		return Reply{Text: fmt.Sprintf(p.ConfirmOptOut, s.Held.Name, s.Held.Address)}
	}
}

func (c *Controller) slotOrder(s *CallSession) []Slot {
	if s.Mode == ModeBooking {
		if s.CallerID == "" {
			return []Slot{SlotDate, SlotTime, SlotName, SlotAddress, SlotPhone}
		}
		return []Slot{SlotDate, SlotTime, SlotName, SlotAddress}
	}
	if s.CallerID == "" {
		return []Slot{SlotName, SlotAddress, SlotPhone}
	}
	return []Slot{SlotName, SlotAddress}
}

func (c *Controller) slotFilled(s *CallSession, slot Slot) bool {
	switch slot {
	case SlotDate:
		return s.Held.HasDate
	case SlotTime:
		return s.Held.HasTime
	case SlotName:
		return s.Held.Name != ""
	case SlotAddress:
		return s.Held.Address != ""
	case SlotPhone:
		return s.Held.Phone != ""
	default:
		return true
	}
}

func (c *Controller) slotPrompt(s *CallSession, p promptSet) string {
	switch s.PendingSlot {
	case SlotDate:
		return p.AskDate
	case SlotTime:
		return p.AskTime
	case SlotName:
		if s.Names.AwaitingConfirm() {
			return fmt.Sprintf(p.AskNameConfirm, s.Names.First())
		}
		if s.Names.First() != "" {
			return fmt.Sprintf(p.AskSurname, s.Names.First())
		}
		return p.AskName
	case SlotAddress:
		return p.AskAddress
	case SlotPhone:
		return p.AskPhone
	default:
		return p.Outro
	}
}

// handleConfirm is the only place a commit can fire.
func (c *Controller) handleConfirm(ctx context.Context, s *CallSession, text string) Reply {
	p := c.prompts(s)

	if extract.IsQuestion(text) {
		s.Phase = PhaseQNA
		answer := c.llmFallback(ctx, s, text)
		answer.Text = strings.TrimSpace(p.TopicChange + " " + answer.Text)
		if s.Phase == PhaseQNA {
			s.OfferActive = true
			answer.Text = strings.TrimSpace(answer.Text + " " + p.ResumeOffer)
		}
		return answer
	}
	if extract.IsNegative(text) {
		// Caller declined the readback; drop the mode, keep held values.
		s.Mode = ModeNone
		s.Phase = PhaseQNA
		s.PendingSlot = SlotNone
		return Reply{Text: p.CancelConfirm}
	}
	if !extract.IsAffirmative(text) {
		// Stays in CONFIRM without retry penalty; the readback offer stays
		// live for the next turn.
		s.OfferActive = true
		return Reply{Text: p.YesOrNo}
	}
	return c.commit(ctx, s, text, true)
}

// guardCommit enforces the anti-loop rule: a booking commit must be anchored
// to an explicit scheduling offer, explicit scheduling keywords, or a fully
// parsed date+time in the triggering utterance.
func (c *Controller) guardCommit(s *CallSession, text string, offered bool) error {
	if s.Mode == ModeBooking {
		if !s.Held.HasDate || !s.Held.HasTime || s.Held.Name == "" || s.Held.Address == "" {
			return fmt.Errorf("%w: missing booking fields", ErrGuardBlocked)
		}
		_, hasDate := temporal.ParseDate(text, c.now())
		_, hasTime := temporal.ParseTime(text)
		if !offered && !extract.WantsScheduling(text) && !(hasDate && hasTime) {
			return fmt.Errorf("%w: affirmative without scheduling anchor", ErrGuardBlocked)
		}
	} else {
		if s.Held.Name == "" || s.Held.Address == "" {
			return fmt.Errorf("%w: missing optout fields", ErrGuardBlocked)
		}
	}
	if s.CallerID == "" && s.Held.Phone == "" {
		return fmt.Errorf("%w: no phone and no caller id", ErrGuardBlocked)
	}
	return nil
}

func (c *Controller) startTime(s *CallSession) time.Time {
	return temporal.Combine(s.Held.Date.In(c.opts.Location), s.Held.Time)
}

// commit durably writes the confirmed transaction. offered reports whether
// the immediately preceding system turn was a scheduling offer (the CONFIRM
// readback counts).
func (c *Controller) commit(ctx context.Context, s *CallSession, text string, offered bool) Reply {
	p := c.prompts(s)

	if err := c.guardCommit(s, text, offered); err != nil {
		c.logger.Warn("dialog: commit blocked", "error", err, "phase", s.Phase.String())
		c.metrics.ObserveCommit(modeName(s.Mode), "blocked")
		// Re-prompt for whatever is missing rather than failing the call.
		if s.Mode != ModeNone {
			s.Phase = modePhase(s.Mode)
			return c.advance(ctx, s)
		}
		return Reply{Text: p.Repeat}
	}

	commitCtx := ctx
	if c.opts.CommitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, c.opts.CommitTimeout)
		defer cancel()
	}

	switch s.Mode {
	case ModeBooking:
		start := c.startTime(s)
		rec, err := c.store.CommitBooking(commitCtx, store.BookingRequest{
			Start:       start,
			DurationMin: c.opts.DefaultDurationMin,
			Caller:      s.CallerID,
			Name:        s.Held.Name,
			Address:     s.Held.Address,
			Phone:       s.Held.Phone,
		})
		if err != nil {
			// Held slots survive so the caller can retry without
			// re-stating everything.
			c.logger.Error("dialog: booking commit failed", "error", err)
			c.metrics.ObserveCommit("booking", "error")
			s.OfferActive = true
			return Reply{Text: p.CommitApology}
		}
		c.metrics.ObserveCommit("booking", "ok")
		c.logger.Info("dialog: booking committed", "id", rec.ID, "start", rec.Start)
		s.Held.ClearBookingOnly()
		c.finishMode(s)
		return Reply{Text: fmt.Sprintf(p.Booked, rec.Name, formatWhen(start, s.Language), rec.Address)}

	case ModeOptOut:
		rec, err := c.store.CommitOptOut(commitCtx, store.OptOutRequest{
			Caller:  s.CallerID,
			Name:    s.Held.Name,
			Address: s.Held.Address,
			Phone:   s.Held.Phone,
		})
		if err != nil {
			c.logger.Error("dialog: optout commit failed", "error", err)
			c.metrics.ObserveCommit("optout", "error")
			s.OfferActive = true
			return Reply{Text: p.CommitApology}
		}
		c.metrics.ObserveCommit("optout", "ok")
		c.logger.Info("dialog: optout committed", "id", rec.ID)
		c.markDNC(ctx, s, rec.ID)
		c.finishMode(s)
		return Reply{Text: p.OptedOut}
	}

	return Reply{Text: p.Repeat}
}

// markDNC mirrors an opt-out into the fast lookup index, best effort.
func (c *Controller) markDNC(ctx context.Context, s *CallSession, recordID string) {
	if c.dnc == nil {
		return
	}
	phone := s.Held.Phone
	if phone == "" {
		phone = s.CallerID
	}
	if phone == "" {
		return
	}
	if err := c.dnc.Mark(ctx, phone, recordID); err != nil {
		c.logger.Warn("dialog: dnc mark failed", "error", err)
	}
}

func (c *Controller) finishMode(s *CallSession) {
	s.Mode = ModeNone
	s.Phase = PhaseOutro
	s.PendingSlot = SlotNone
	s.RetryCount = 0
}

func modePhase(m Mode) Phase {
	if m == ModeOptOut {
		return PhaseOptOut
	}
	return PhaseBooking
}

func modeName(m Mode) string {
	if m == ModeOptOut {
		return "optout"
	}
	return "booking"
}

func (c *Controller) now() time.Time {
	return c.opts.Clock().In(c.opts.Location)
}

// redactPatterns strips internal-tooling vocabulary from anything the LLM
// produced before it is spoken.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(files?|uploads?|tools?|vector stores?|RAG)\b`),
}

func redactOutput(text string) string {
	out := text
	for _, re := range redactPatterns {
		out = re.ReplaceAllString(out, "internal info")
	}
	return strings.TrimSpace(out)
}

// llmFallback answers open questions through the chat boundary, applying the
// timeout, redaction, history window and advisory tool-call handling.
func (c *Controller) llmFallback(ctx context.Context, s *CallSession, text string) Reply {
	p := c.prompts(s)
	if c.chat == nil {
		return Reply{Text: p.Repeat}
	}

	s.Remember("user", text, c.opts.HistoryWindow)

	chatCtx := ctx
	if c.opts.LLMTimeout > 0 {
		var cancel context.CancelFunc
		chatCtx, cancel = context.WithTimeout(ctx, c.opts.LLMTimeout)
		defer cancel()
	}

	started := c.opts.Clock()
	reply, err := c.chat.Chat(chatCtx, ChatRequest{
		Language: s.Language,
		History:  append([]Turn(nil), s.History...),
		CallerID: s.CallerID,
	})
	elapsed := c.opts.Clock().Sub(started).Seconds()
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Barge-in cancelled the turn; the interrupt handler speaks.
			c.metrics.ObserveLLM("cancelled", elapsed)
			return Reply{}
		}
		c.metrics.ObserveLLM("error", elapsed)
		c.logger.Error("dialog: llm fallback failed", "error", err)
		return Reply{Text: p.Apology}
	}
	c.metrics.ObserveLLM("ok", elapsed)

	text = redactOutput(reply.Text)
	if text == "" && len(reply.ToolCalls) == 0 {
		text = p.Repeat
	}
	if text != "" {
		s.Remember("assistant", text, c.opts.HistoryWindow)
	}

	if follow := c.applyToolCalls(ctx, s, reply.ToolCalls); follow != "" {
		if text != "" {
			text = text + " " + follow
		} else {
			text = follow
		}
	}
	return Reply{Text: text}
}

// applyToolCalls treats LLM tool proposals as requests: fields merge into
// held slots, and the flow proceeds through the same prompts, CONFIRM phase
// and guard as typed input. The LLM never commits directly.
func (c *Controller) applyToolCalls(ctx context.Context, s *CallSession, calls []ToolCall) string {
	for _, call := range calls {
		switch call.Name {
		case ToolBookAppointment:
			if s.Mode != ModeBooking {
				c.enterMode(s, ModeBooking)
			}
			if iso := argString(call.Args, "iso_start"); iso != "" {
				if t, err := time.Parse(time.RFC3339, iso); err == nil {
					local := t.In(c.opts.Location)
					s.Held.Date = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.opts.Location)
					s.Held.HasDate = true
					s.Held.Time = temporal.Clock{Hour: local.Hour(), Minute: local.Minute()}
					s.Held.HasTime = true
				}
			}
			c.mergeContact(s, call.Args)
			s.Phase = PhaseBooking
			return c.advance(ctx, s).Text

		case ToolMarkOptOut:
			if s.Mode != ModeOptOut {
				c.enterMode(s, ModeOptOut)
			}
			c.mergeContact(s, call.Args)
			s.Phase = PhaseOptOut
			return c.advance(ctx, s).Text

		default:
			c.logger.Warn("dialog: unknown tool proposal", "tool", call.Name)
		}
	}
	return ""
}

// mergeContact fills empty shared slots from tool arguments, applying the
// same validation as typed input.
func (c *Controller) mergeContact(s *CallSession, args map[string]any) {
	if s.Held.Name == "" {
		if tokens := extract.NameTokens(argString(args, "name")); len(tokens) > 0 {
			s.Held.Name = strings.Join(tokens, " ")
		}
	}
	if s.Held.Address == "" {
		if addr := argString(args, "address"); extract.IsFullStreetAddress(addr) {
			s.Held.Address = addr
		}
	}
	if s.Held.Phone == "" {
		if phone, ok := extract.Phone(argString(args, "phone"), c.opts.DefaultCountryCode); ok {
			s.Held.Phone = phone
		}
	}
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
