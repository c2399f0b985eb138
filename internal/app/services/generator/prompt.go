package generator

import (
	"fmt"
	"strings"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
)

// Prompt is the provider-neutral chat input.
type Prompt struct {
	System string
	User   string
}

var toneGuidance = map[generation.Tone]string{
	generation.ToneHumorous:   "playful and witty, with a light pun or wink where it fits",
	generation.ToneInspiring:  "uplifting and aspirational, speaking to what the customer can become",
	generation.ToneDirect:     "clear, concrete and benefit-first, no filler words",
	generation.ToneMysterious: "intriguing and evocative, leaving something unsaid",
	generation.ToneLuxurious:  "elegant, refined and exclusive",
	generation.ToneTech:       "precise and modern, with a nod to innovation and performance",
}

const systemPrompt = "You are a senior copywriter who writes short, memorable marketing taglines. " +
	"You answer with taglines only: no numbering explanations, no introductions, no closing remarks."

// BuildPrompt renders the instructions for req. req must be normalized.
func BuildPrompt(req generation.Request) Prompt {
	guidance, ok := toneGuidance[req.Tone]
	if !ok {
		guidance = toneGuidance[generation.DefaultTone]
	}
	language, ok := generation.Languages[req.Language]
	if !ok {
		language = generation.Languages[generation.DefaultLanguage]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write exactly %d distinct marketing taglines in %s for the following product or idea.\n", generation.PhraseCount, language)
	fmt.Fprintf(&b, "Tone: %s (%s).\n", req.Tone, guidance)
	fmt.Fprintf(&b, "Each tagline must be at most %d characters.\n", maxPhraseLength)
	b.WriteString("Put one tagline per line and nothing else.\n\n")
	fmt.Fprintf(&b, "Product: %s", req.Concept)

	return Prompt{System: systemPrompt, User: b.String()}
}
