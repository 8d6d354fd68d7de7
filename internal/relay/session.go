// Package relay adapts the telephony provider's ConversationRelay websocket
// protocol to the dialogue controller: already-transcribed text in, text to
// be spoken out. One goroutine per call processes events strictly in order;
// barge-in cancels the in-flight turn from the reader side.
package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/reliefline/chloe-voice/internal/dialog"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

// inboundMessage is the union of relay frames we consume.
type inboundMessage struct {
	Type                    string `json:"type"`
	From                    string `json:"from"`
	Text                    string `json:"text"`
	VoicePrompt             string `json:"voicePrompt"`
	UtteranceUntilInterrupt string `json:"utteranceUntilInterrupt"`
	TTSLanguage             string `json:"ttsLanguage"`
	TranscriptionLanguage   string `json:"transcriptionLanguage"`
}

// textFrame is a spoken token for the provider's TTS.
type textFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// languageFrame switches the provider's TTS/STT language mid-call.
type languageFrame struct {
	Type                  string `json:"type"`
	TTSLanguage           string `json:"ttsLanguage"`
	TranscriptionLanguage string `json:"transcriptionLanguage"`
}

// callSession is the event loop for one live call.
type callSession struct {
	conn   *websocket.Conn
	ctrl   *dialog.Controller
	state  *dialog.CallSession
	logger *logging.Logger

	// turnCancel aborts the in-flight turn (LLM call included) when the
	// caller barges in. Guarded because the reader goroutine fires it.
	mu         sync.Mutex
	turnCancel context.CancelFunc
}

func newCallSession(conn *websocket.Conn, ctrl *dialog.Controller, logger *logging.Logger) *callSession {
	return &callSession{conn: conn, ctrl: ctrl, logger: logger}
}

// run reads frames on one goroutine and processes them on this one, so
// CallSession mutation needs no locking.
func (cs *callSession) run(ctx context.Context) {
	events := make(chan inboundMessage, 16)

	go func() {
		defer close(events)
		for {
			var msg inboundMessage
			if err := cs.conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					cs.logger.Warn("relay: read failed", "error", err)
				}
				return
			}
			if msg.Type == "interrupt" {
				// Discard whatever this turn is still computing; the
				// interrupt event itself queues behind it.
				cs.cancelTurn()
			}
			select {
			case events <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			cs.handle(ctx, msg)
		}
	}
}

func (cs *callSession) handle(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case "setup":
		cs.state = dialog.NewCallSession(strings.TrimSpace(msg.From))
		cs.logger.Info("relay: call setup", "has_caller_id", cs.state.CallerID != "")
		cs.deliver(cs.ctrl.Setup(ctx, cs.state))

	case "prompt", "input_text":
		text := msg.Text
		if text == "" {
			text = msg.VoicePrompt
		}
		if strings.TrimSpace(text) == "" {
			return
		}
		cs.ensureState()
		turnCtx, cancel := context.WithCancel(ctx)
		cs.setTurnCancel(cancel)
		reply := cs.ctrl.HandleUtterance(turnCtx, cs.state, text)
		cs.setTurnCancel(nil)
		cancel()
		cs.deliver(reply)

	case "interrupt":
		cs.ensureState()
		cs.deliver(cs.ctrl.HandleInterrupt(cs.state, msg.UtteranceUntilInterrupt))

	case "language":
		target := msg.TTSLanguage
		if target == "" {
			target = msg.TranscriptionLanguage
		}
		cs.ensureState()
		cs.deliver(cs.ctrl.HandleLanguageRequest(cs.state, target))

	default:
		cs.logger.Debug("relay: ignoring frame", "type", msg.Type)
	}
}

// ensureState tolerates providers that skip the setup frame.
func (cs *callSession) ensureState() {
	if cs.state == nil {
		cs.state = dialog.NewCallSession("")
	}
}

// deliver writes the controller reply back to the provider. An empty reply
// (a discarded, barged-in turn) produces no frame.
func (cs *callSession) deliver(reply dialog.Reply) {
	if reply.SwitchLanguage {
		frame := languageFrame{
			Type:                  "language",
			TTSLanguage:           reply.TTSLanguage,
			TranscriptionLanguage: reply.STTLanguage,
		}
		if err := cs.conn.WriteJSON(frame); err != nil {
			cs.logger.Warn("relay: language frame write failed", "error", err)
			return
		}
	}
	if reply.Text == "" {
		return
	}
	frame := textFrame{Type: "text", Token: reply.Text, Last: true}
	if err := cs.conn.WriteJSON(frame); err != nil {
		cs.logger.Warn("relay: text frame write failed", "error", err)
	}
}

func (cs *callSession) setTurnCancel(cancel context.CancelFunc) {
	cs.mu.Lock()
	cs.turnCancel = cancel
	cs.mu.Unlock()
}

func (cs *callSession) cancelTurn() {
	cs.mu.Lock()
	cancel := cs.turnCancel
	cs.turnCancel = nil
	cs.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
