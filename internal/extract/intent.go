package extract

import (
	"regexp"
	"strings"
)

// Intent predicates. Each is an independent matcher so new intents can be
// added without touching the others. All are bilingual (English/Spanish).
//
// Utterances are lowercased and de-accented before matching: Go's \b is an
// ASCII word boundary, so "sí" would otherwise never match a \b-anchored
// pattern.

var (
	optOutRE = regexp.MustCompile(`\b(?:do ?n[o']?t (?:call|contact)|stop calling|stop contacting|remove me|take me off|opt ?out|no (?:me )?llamen?|no me contacten|quitenme|borr(?:a|e)me|no quiero que (?:me )?llamen)\b`)

	schedulingRE = regexp.MustCompile(`\b(book|schedule|appointment|appt|consult|consultation|reschedule|cita|agendar|agendemos|programar|reservar)\b`)

	humanRE = regexp.MustCompile(`\b(human|real person|an agent|representative|operator|live person|speak to someone|una persona|un agente|representante|operador[a]?)\b`)

	affirmativeRE = regexp.MustCompile(`^\W*(yes|yeah|yep|yup|sure|correct|right|ok(?:ay)?|absolutely|of course|sounds good|that'?s right|affirmative|si|claro|correcto|por supuesto|asi es|de acuerdo|esta bien)\b`)

	negativeRE = regexp.MustCompile(`^\W*(no+|nope|nah|not (?:really|now)|wrong|incorrect|that'?s wrong|negative|no gracias|incorrecto|para nada)\b`)

	questionRE = regexp.MustCompile(`\b(what|who|why|how|when|where|which|can you|could you|do you|does|is this|are you|tell me about|que|quien|por que|como|cuando|donde|cual|explica)\b`)

	spanishReqRE = regexp.MustCompile(`\b(espanol|spanish)\b`)
	englishReqRE = regexp.MustCompile(`\b(ingles|english)\b`)
)

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

func normalize(text string) string {
	return accentReplacer.Replace(strings.ToLower(text))
}

// WantsOptOut matches an explicit do-not-contact request.
func WantsOptOut(text string) bool {
	return optOutRE.MatchString(normalize(text))
}

// WantsScheduling matches explicit scheduling keywords.
func WantsScheduling(text string) bool {
	return schedulingRE.MatchString(normalize(text))
}

// WantsHuman matches a request to talk to a live agent.
func WantsHuman(text string) bool {
	return humanRE.MatchString(normalize(text))
}

// IsAffirmative matches an explicit yes at the start of the utterance.
// Scheduling keywords alone are never affirmative.
func IsAffirmative(text string) bool {
	return affirmativeRE.MatchString(normalize(text))
}

// IsNegative matches an explicit no at the start of the utterance. An
// opt-out phrase is not a plain negative; check WantsOptOut first.
func IsNegative(text string) bool {
	if WantsOptOut(text) {
		return false
	}
	return negativeRE.MatchString(normalize(text))
}

// IsQuestion reports whether the utterance reads as an informational
// question rather than slot input.
func IsQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	return questionRE.MatchString(normalize(text))
}

// LanguageRequest detects an explicit request to continue in one of the two
// supported languages and returns the BCP-47 tag.
func LanguageRequest(text string) (string, bool) {
	t := normalize(text)
	spanish := spanishReqRE.MatchString(t)
	english := englishReqRE.MatchString(t)
	switch {
	case spanish && !english:
		return "es-US", true
	case english && !spanish:
		return "en-US", true
	case spanish && english:
		// Garbled mixed request ("español, not english"): prefer the
		// non-current default of Spanish since that is the common form.
		return "es-US", true
	default:
		return "", false
	}
}
