package guard

import (
	"strings"

	"sentinel-hq/aegis/pkg/scan"
)

// languageStopwords maps a language tag to high-frequency function words.
// Detection counts stopword hits per language over the client's text; the
// language with the most hits wins, English when nothing scores. The
// heuristic only has to pick a block-message language, so a handful of
// unambiguous words per language is enough.
var languageStopwords = map[string][]string{
	"es": {"el", "la", "los", "las", "que", "por", "para", "una", "como", "pero"},
	"fr": {"le", "les", "des", "est", "que", "pour", "dans", "avec", "une", "mais"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "aber"},
	"pt": {"o", "os", "uma", "que", "para", "com", "nao", "mas", "como", "isso"},
	"it": {"il", "gli", "che", "per", "una", "con", "non", "sono", "come", "ma"},
}

// blockMessages holds the user-facing explanation per direction and
// language.
var blockMessages = map[string]map[scan.Direction]string{
	"en": {
		scan.DirectionInput:  "Your request was blocked by content policy.",
		scan.DirectionOutput: "The response was blocked by content policy.",
	},
	"es": {
		scan.DirectionInput:  "Su solicitud fue bloqueada por la política de contenido.",
		scan.DirectionOutput: "La respuesta fue bloqueada por la política de contenido.",
	},
	"fr": {
		scan.DirectionInput:  "Votre demande a été bloquée par la politique de contenu.",
		scan.DirectionOutput: "La réponse a été bloquée par la politique de contenu.",
	},
	"de": {
		scan.DirectionInput:  "Ihre Anfrage wurde durch die Inhaltsrichtlinie blockiert.",
		scan.DirectionOutput: "Die Antwort wurde durch die Inhaltsrichtlinie blockiert.",
	},
	"pt": {
		scan.DirectionInput:  "Sua solicitação foi bloqueada pela política de conteúdo.",
		scan.DirectionOutput: "A resposta foi bloqueada pela política de conteúdo.",
	},
	"it": {
		scan.DirectionInput:  "La tua richiesta è stata bloccata dalla politica sui contenuti.",
		scan.DirectionOutput: "La risposta è stata bloccata dalla politica sui contenuti.",
	},
}

// detectLanguage guesses the client's language from their text.
func detectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "en"
	}

	seen := make(map[string]int, len(words))
	for _, w := range words {
		seen[strings.Trim(w, ".,!?;:\"'()")]++
	}

	best, bestScore := "en", 0
	for lang, stopwords := range languageStopwords {
		score := 0
		for _, sw := range stopwords {
			score += seen[sw]
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}

	// A single incidental hit is not evidence.
	if bestScore < 2 {
		return "en"
	}
	return best
}

// blockMessage returns the localized explanation for a block, falling back
// to English for unknown languages.
func blockMessage(direction scan.Direction, lang string) string {
	msgs, ok := blockMessages[lang]
	if !ok {
		msgs = blockMessages["en"]
	}
	return msgs[direction]
}
