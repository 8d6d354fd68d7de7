package dialog

import (
	"fmt"
	"time"
)

const (
	LangEnglish = "en-US"
	LangSpanish = "es-US"
)

// promptSet is the localized utterance catalog for one language. Formatting
// verbs are positional and documented per field.
type promptSet struct {
	AskLanguage    string
	Greeting       string // assistant, org
	DNCGreeting    string // assistant, org
	LanguageAck    string
	AskDate        string
	AskTime        string
	AskName        string
	AskSurname     string // first token
	AskNameConfirm string // first token
	AskAddress     string
	AskPhone       string
	SorryRetry     string // slot re-prompt prefix
	ConfirmBooking string // name, address, datetime
	ConfirmOptOut  string // name, address
	YesOrNo        string
	Booked         string // name, datetime, address
	OptedOut       string
	CancelConfirm  string
	TopicChange    string
	ResumeOffer    string
	Offer          string
	HumanHandoff   string
	SlotAbandon    string
	InterruptAck   string
	Repeat         string
	Apology        string
	CommitApology  string
	Outro          string
}

var promptsEN = promptSet{
	AskLanguage:    "Would you like to continue in English or Spanish?",
	Greeting:       "Hi, this is %s with %s. Would you like to continue in English or Spanish?",
	DNCGreeting:    "Hi, this is %s with %s. I see you've asked us not to contact you — I can help update that, or answer a quick question. Would you like to continue in English or Spanish?",
	LanguageAck:    "Got it. I'll continue in English.",
	AskDate:        "What day works best for your consultation?",
	AskTime:        "And what time of day works for you?",
	AskName:        "May I have your full name, please?",
	AskSurname:     "Thanks, %s. And your last name?",
	AskNameConfirm: "I have %s so far. If that's your full name, say yes.",
	AskAddress:     "What's the property address?",
	AskPhone:       "What's the best phone number to reach you?",
	SorryRetry:     "Sorry, I didn't catch that. ",
	ConfirmBooking: "Let me confirm: a consultation for %s at %s on %s. Shall I book it?",
	ConfirmOptOut:  "Just to confirm: you'd like no further contact for %s at %s. Is that right?",
	YesOrNo:        "Please say yes or no.",
	Booked:         "Booked %s on %s. I saved your appointment at %s.",
	OptedOut:       "Understood. I've marked you as do-not-contact.",
	CancelConfirm:  "Okay, I won't save that. Anything else I can help with?",
	TopicChange:    "Sure — here's a quick overview.",
	ResumeOffer:    "Want to pick up where we left off?",
	Offer:          "Would you like to schedule a free consultation?",
	HumanHandoff:   "I'll have a specialist reach out. In the meantime, would you like to schedule a free consultation?",
	SlotAbandon:    "No problem, we can come back to that. What else can I help with?",
	InterruptAck:   "Understood — go ahead.",
	Repeat:         "Could you say that again?",
	Apology:        "Sorry, I had a problem — could you say that again?",
	CommitApology:  "I had trouble saving that just now. Could you say yes again to retry?",
	Outro:          "Is there anything else I can help with?",
}

var promptsES = promptSet{
	AskLanguage:    "¿Prefiere continuar en inglés o en español?",
	Greeting:       "Hola, soy %s de %s. ¿Prefiere continuar en inglés o en español?",
	DNCGreeting:    "Hola, soy %s de %s. Veo que nos pidió no contactarle — puedo ayudarle con eso o responder una pregunta. ¿Prefiere inglés o español?",
	LanguageAck:    "Entendido. Puedo ayudarte en español.",
	AskDate:        "¿Qué día le conviene para la consulta?",
	AskTime:        "¿Y a qué hora le conviene?",
	AskName:        "¿Me da su nombre completo, por favor?",
	AskSurname:     "Gracias, %s. ¿Y su apellido?",
	AskNameConfirm: "Tengo %s hasta ahora. Si ese es su nombre completo, diga sí.",
	AskAddress:     "¿Cuál es la dirección de la propiedad?",
	AskPhone:       "¿Cuál es el mejor teléfono para contactarle?",
	SorryRetry:     "Perdón, no le entendí. ",
	ConfirmBooking: "Confirmo: una consulta para %s en %s el %s. ¿La agendo?",
	ConfirmOptOut:  "Para confirmar: no quiere más contacto para %s en %s. ¿Es correcto?",
	YesOrNo:        "Por favor diga sí o no.",
	Booked:         "Agendé a %s el %s. Guardé su cita en %s.",
	OptedOut:       "Entendido. Le marqué como no-contactar.",
	CancelConfirm:  "De acuerdo, no lo guardo. ¿Algo más en que pueda ayudar?",
	TopicChange:    "Claro — aquí va un resumen rápido.",
	ResumeOffer:    "¿Seguimos donde quedamos?",
	Offer:          "¿Le gustaría agendar una consulta gratuita?",
	HumanHandoff:   "Un especialista le contactará. Mientras tanto, ¿le gustaría agendar una consulta gratuita?",
	SlotAbandon:    "No hay problema, volvemos a eso después. ¿En qué más puedo ayudar?",
	InterruptAck:   "Entendido — dígame.",
	Repeat:         "¿Puede repetirlo, por favor?",
	Apology:        "Perdón, tuve un problema — ¿puede repetirlo?",
	CommitApology:  "Tuve un problema guardando eso. ¿Puede decir sí otra vez para reintentar?",
	Outro:          "¿Hay algo más en que pueda ayudar?",
}

func promptsFor(lang string) promptSet {
	if lang == LangSpanish {
		return promptsES
	}
	return promptsEN
}

var weekdayES = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miércoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sábado",
}

var monthES = map[time.Month]string{
	time.January: "enero", time.February: "febrero", time.March: "marzo",
	time.April: "abril", time.May: "mayo", time.June: "junio",
	time.July: "julio", time.August: "agosto", time.September: "septiembre",
	time.October: "octubre", time.November: "noviembre", time.December: "diciembre",
}

// formatWhen renders the appointment moment for speech in the session's
// language ("Thursday, March 5 at 1:00 PM").
func formatWhen(t time.Time, lang string) string {
	if lang == LangSpanish {
		return fmt.Sprintf("%s %d de %s a las %s",
			weekdayES[t.Weekday()], t.Day(), monthES[t.Month()], t.Format("3:04 PM"))
	}
	return t.Format("Monday, January 2 at 3:04 PM")
}
