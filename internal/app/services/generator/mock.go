package generator

import (
	"context"
	"fmt"
	"strings"
)

var mockTemplates = []string{
	"%s, made simple.",
	"Meet %s. You'll wonder how you lived without it.",
	"%s: small change, big difference.",
	"Your next favorite thing? %s.",
	"Think bigger with %s.",
	"%s works while you sleep.",
	"Less hassle. More %s.",
	"The smart way to %s.",
	"%s, because you deserve better.",
	"Start today with %s.",
}

// Mock returns deterministic numbered taglines built from the concept. It is
// used for local development and tests.
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	concept := "your idea"
	if idx := strings.LastIndex(prompt.User, "Product: "); idx >= 0 {
		concept = strings.TrimSpace(prompt.User[idx+len("Product: "):])
	}
	if r := []rune(concept); len(r) > 60 {
		concept = string(r[:60])
	}

	var b strings.Builder
	for i, tpl := range mockTemplates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, fmt.Sprintf(tpl, concept))
	}
	return b.String(), nil
}
