package generator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
)

const (
	minPhraseLength = 3
	maxPhraseLength = 120
)

// A numeric marker only counts when whitespace follows it, so "5-star" and
// "3.5x" survive.
var listMarker = regexp.MustCompile(`^\s*(?:\d{1,2}\s*[.):]\s+|\d{1,2}\s+[-–]\s+|[-*•·]\s+)`)

const quoteChars = "\"'`“”‘’«»"

// FilterPhrases turns raw model output into at most PhraseCount clean,
// case-insensitively unique taglines.
func FilterPhrases(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	seen := make(map[string]struct{})
	out := make([]string, 0, generation.PhraseCount)
	for _, line := range strings.Split(raw, "\n") {
		phrase := cleanLine(line)
		n := utf8.RuneCountInString(phrase)
		if n < minPhraseLength || n > maxPhraseLength {
			continue
		}
		key := strings.ToLower(phrase)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, phrase)
		if len(out) == generation.PhraseCount {
			break
		}
	}
	return out
}

func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = listMarker.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "*_")
	line = strings.Trim(line, quoteChars)
	return strings.TrimSpace(line)
}
