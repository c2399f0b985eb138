package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Tone is a stylistic preset applied to the prompt.
type Tone string

const (
	ToneHumorous   Tone = "humorous"
	ToneInspiring  Tone = "inspiring"
	ToneDirect     Tone = "direct"
	ToneMysterious Tone = "mysterious"
	ToneLuxurious  Tone = "luxurious"
	ToneTech       Tone = "tech"
)

// Tones lists the presets in display order.
var Tones = []Tone{ToneHumorous, ToneInspiring, ToneDirect, ToneMysterious, ToneLuxurious, ToneTech}

// Languages maps supported language codes to their English names.
var Languages = map[string]string{
	"en": "English",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
}

// LanguageCodes lists supported language codes in display order.
var LanguageCodes = []string{"en", "fr", "es", "de", "it", "pt"}

const (
	DefaultTone     = ToneDirect
	DefaultLanguage = "en"

	MinConceptLength = 3
	MaxConceptLength = 500

	// PhraseCount is the number of taglines a generation yields at most.
	PhraseCount = 10
)

// Request is what a visitor submits to the generator.
type Request struct {
	Concept  string `json:"concept"`
	Tone     Tone   `json:"tone"`
	Language string `json:"language"`
}

// ParseTone resolves a tone name, defaulting empty input.
func ParseTone(raw string) (Tone, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultTone, nil
	}
	for _, t := range Tones {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", raw)
}

// Normalize trims and defaults the request, returning the field that failed
// validation alongside the error.
func (r Request) Normalize() (Request, string, error) {
	out := Request{Concept: strings.TrimSpace(r.Concept)}

	n := utf8.RuneCountInString(out.Concept)
	if n < MinConceptLength {
		return Request{}, "concept", fmt.Errorf("concept must be at least %d characters", MinConceptLength)
	}
	if n > MaxConceptLength {
		return Request{}, "concept", fmt.Errorf("concept must be at most %d characters", MaxConceptLength)
	}

	tone, err := ParseTone(string(r.Tone))
	if err != nil {
		return Request{}, "tone", err
	}
	out.Tone = tone

	lang := strings.ToLower(strings.TrimSpace(r.Language))
	if lang == "" {
		lang = DefaultLanguage
	}
	if _, ok := Languages[lang]; !ok {
		return Request{}, "language", fmt.Errorf("unsupported language %q", lang)
	}
	out.Language = lang
	return out, "", nil
}
