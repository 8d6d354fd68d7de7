// Package extract holds the pure heuristic matchers that pull structured
// fields and caller intent out of a raw transcribed utterance. Every function
// is total: malformed input yields an absent result, never an error.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nameIntroRE = regexp.MustCompile(`(?i)\b(?:my name is|the name is|this is|i am|i'm|me llamo|mi nombre es|soy)\s+([\p{L}][\p{L}'\-]*(?:\s+[\p{L}][\p{L}'\-]*){0,3})`)

	addressPrefixRE = regexp.MustCompile(`(?i)\b(?:address is|my address is|it's at|la direcci[oó]n es|mi direcci[oó]n es)\s+(.+)$`)
	streetNumberRE  = regexp.MustCompile(`\b(\d{1,6})\s+([\p{L}][\p{L}\.'\-]*(?:\s+[\p{L}\d][\p{L}\d\.'\-]*)*)`)

	nonDigitRE = regexp.MustCompile(`\D`)
)

// streetSuffixes are tokens that mark the tail of a street address in either
// language.
var streetSuffixes = map[string]bool{
	"st": true, "street": true, "ave": true, "avenue": true, "av": true,
	"rd": true, "road": true, "blvd": true, "boulevard": true,
	"ln": true, "lane": true, "dr": true, "drive": true, "way": true,
	"ct": true, "court": true, "pl": true, "place": true, "cir": true,
	"circle": true, "ter": true, "terrace": true, "hwy": true, "highway": true,
	"calle": true, "avenida": true, "camino": true, "paseo": true,
}

// fillerWords are tokens that never count as a name.
var fillerWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "no": true, "ok": true,
	"okay": true, "um": true, "uh": true, "hmm": true, "hello": true,
	"hi": true, "hey": true, "thanks": true, "thank": true, "please": true,
	"the": true, "and": true, "but": true, "what": true, "sorry": true,
	"si": true, "sí": true, "hola": true, "gracias": true, "bueno": true,
	"este": true, "pues": true, "claro": true,
}

// Name matches an explicit introduction ("my name is John Smith",
// "me llamo Ana García"). Bare utterances without an introduction pattern
// are left to the dialog package's name collector.
func Name(text string) (string, bool) {
	m := nameIntroRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	tokens := NameTokens(m[1])
	if len(tokens) == 0 {
		return "", false
	}
	return strings.Join(tokens, " "), true
}

// NameTokens filters an utterance down to name-like tokens: at least two
// letters, letters/apostrophe/hyphen only, not a filler word.
func NameTokens(text string) []string {
	var out []string
	for _, raw := range strings.Fields(text) {
		tok := strings.Trim(raw, ".,!?;:\"")
		if !IsNameToken(tok) {
			continue
		}
		out = append(out, title(tok))
	}
	return out
}

// IsNameToken reports whether a single token could plausibly be part of a
// person's name.
func IsNameToken(tok string) bool {
	if fillerWords[strings.ToLower(tok)] {
		return false
	}
	letters := 0
	for _, r := range tok {
		switch {
		case r == '\'' || r == '-':
		case isLetter(r):
			letters++
		default:
			return false
		}
	}
	return letters >= 2
}

// Address pulls a street address out of the utterance. An explicit "address
// is ..." prefix wins; otherwise a "number + street tokens" shape is
// required.
func Address(text string) (string, bool) {
	if m := addressPrefixRE.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(strings.Trim(m[1], ".,!?"))
		if candidate != "" {
			return candidate, true
		}
	}
	if m := streetNumberRE.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(strings.Trim(m[0], ".,!?"))
		if IsFullStreetAddress(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// IsFullStreetAddress re-checks that text really looks like a street
// address: a leading street number plus at least one street-like token. A
// slot is never satisfied by arbitrary non-empty text.
func IsFullStreetAddress(text string) bool {
	m := streetNumberRE.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	rest := strings.Fields(m[2])
	if len(rest) == 0 {
		return false
	}
	// Either a recognized suffix somewhere, or at least two street tokens
	// ("123 Main St", "45 Camino Real"). A lone trailing word ("30 minutes")
	// is not an address.
	if len(rest) >= 2 {
		return true
	}
	return streetSuffixes[strings.ToLower(strings.Trim(rest[0], "."))]
}

// Phone normalizes the digits in the utterance to E.164. A 10-digit number
// gets the default country code; 11-digit input must already start with it.
// Anything outside 10-15 digits is rejected.
func Phone(text, defaultCountryCode string) (string, bool) {
	digits := nonDigitRE.ReplaceAllString(text, "")
	if defaultCountryCode == "" {
		defaultCountryCode = "1"
	}
	switch {
	case len(digits) == 10:
		return "+" + defaultCountryCode + digits, true
	case len(digits) == 11 && strings.HasPrefix(digits, defaultCountryCode):
		return "+" + digits, true
	case len(digits) >= 11 && len(digits) <= 15:
		return "+" + digits, true
	default:
		return "", false
	}
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func title(tok string) string {
	runes := []rune(strings.ToLower(tok))
	for i := range runes {
		if i == 0 || runes[i-1] == '-' || runes[i-1] == '\'' {
			runes[i] = unicode.ToUpper(runes[i])
		}
	}
	return string(runes)
}
