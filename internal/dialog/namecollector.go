package dialog

import (
	"strings"

	"github.com/reliefline/chloe-voice/internal/extract"
)

// NameCollector is a small sub-machine for multi-turn full-name capture.
// Full names often arrive split across turns ("John" ... "Smith") or get cut
// off by barge-in; the collector holds the first token until a differing
// surname arrives. Interruption never resets it.
type NameCollector struct {
	first       string
	repeatCount int

	// awaitingConfirm is set once the caller has repeated the same single
	// token enough times; the flow then offers a confirm-as-is path.
	awaitingConfirm bool
}

// maxNameRepeats is how many same-token repeats we tolerate before offering
// to take the single token as the full name.
const maxNameRepeats = 2

// Observe consumes one utterance and reports whether a full name resolved.
func (nc *NameCollector) Observe(utterance string) (done bool, fullName string) {
	tokens := extract.NameTokens(utterance)

	// Fast path: two adjacent name-like tokens resolve immediately.
	if len(tokens) >= 2 {
		name := tokens[0] + " " + tokens[1]
		nc.reset()
		return true, name
	}

	if len(tokens) == 0 {
		return false, ""
	}

	if nc.first == "" {
		nc.first = tokens[0]
		return false, ""
	}

	if !strings.EqualFold(tokens[0], nc.first) {
		name := nc.first + " " + tokens[0]
		nc.reset()
		return true, name
	}

	nc.repeatCount++
	if nc.repeatCount >= maxNameRepeats {
		nc.awaitingConfirm = true
	}
	return false, ""
}

// First returns the held first token, if any.
func (nc *NameCollector) First() string { return nc.first }

// AwaitingConfirm reports whether the flow should offer the confirm-as-is
// path ("if that's your full name, say yes").
func (nc *NameCollector) AwaitingConfirm() bool { return nc.awaitingConfirm }

// ConfirmAsIs accepts the held token as the caller's full name.
func (nc *NameCollector) ConfirmAsIs() (string, bool) {
	if nc.first == "" {
		return "", false
	}
	name := nc.first
	nc.reset()
	return name, true
}

func (nc *NameCollector) reset() {
	nc.first = ""
	nc.repeatCount = 0
	nc.awaitingConfirm = false
}
