// Package title derives display titles for chat sessions from their messages.
package title

import (
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/parley/internal/domain"
)

const (
	// MaxLength is the number of runes kept before a title is truncated.
	MaxLength = 30

	// Ellipsis marks a truncated title. It is a single rune, so a truncated
	// title is at most MaxLength+1 runes long.
	Ellipsis = "…"

	// SourceTexts is how many leading message texts are considered.
	SourceTexts = 3
)

// Generate returns a title for the given ordered message texts. The first
// non-blank text among the first SourceTexts entries is used, with runs of
// whitespace collapsed. An empty or blank input yields domain.DefaultTitle.
func Generate(texts []string) string {
	for i, text := range texts {
		if i >= SourceTexts {
			break
		}
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			continue
		}
		return truncate(text)
	}
	return domain.DefaultTitle
}

// FromMessages generates a title from the leading messages of a history.
func FromMessages(msgs []domain.Message) string {
	n := min(len(msgs), SourceTexts)
	texts := make([]string, 0, n)
	for _, m := range msgs[:n] {
		texts = append(texts, m.Text)
	}
	return Generate(texts)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxLength {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:MaxLength]), " ") + Ellipsis
}
