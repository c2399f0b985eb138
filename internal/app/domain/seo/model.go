package seo

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 70
	MaxDescriptionLength = 160
)

// Metadata holds the meta tags rendered for one path of the site.
type Metadata struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Keywords    string    `json:"keywords,omitempty"`
	OGImage     string    `json:"og_image,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fallback is served when no entry matches.
func Fallback(path string) Metadata {
	return Metadata{
		Path:        path,
		Title:       "Clicklone",
		Description: "Ten AI-written marketing taglines for your product idea.",
	}
}

// Normalize trims fields and validates lengths, returning the failing field.
func (m Metadata) Normalize() (Metadata, string, error) {
	m.Path = strings.TrimSpace(m.Path)
	m.Title = strings.TrimSpace(m.Title)
	m.Description = strings.TrimSpace(m.Description)
	m.Keywords = strings.TrimSpace(m.Keywords)
	m.OGImage = strings.TrimSpace(m.OGImage)

	if !strings.HasPrefix(m.Path, "/") {
		return Metadata{}, "path", fmt.Errorf("path must start with /")
	}
	if len(m.Path) > 1 {
		m.Path = strings.TrimRight(m.Path, "/")
	}
	if m.Title == "" {
		return Metadata{}, "title", fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(m.Title) > MaxTitleLength {
		return Metadata{}, "title", fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	if utf8.RuneCountInString(m.Description) > MaxDescriptionLength {
		return Metadata{}, "description", fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
	}
	return m, "", nil
}
