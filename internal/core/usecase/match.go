package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

// MatchIdentifiers returns every identifier found in text, left to right,
// repeats included.
func MatchIdentifiers(text string) []domain.Identifier {
	matches := domain.IdentifierPattern.FindAllString(text, -1)
	out := make([]domain.Identifier, 0, len(matches))
	for _, m := range matches {
		out = append(out, domain.Identifier(m))
	}
	return out
}

// Deduplicate keeps the first occurrence of each identifier.
func Deduplicate(ids []domain.Identifier) []domain.Identifier {
	seen := make(map[domain.Identifier]struct{}, len(ids))
	out := make([]domain.Identifier, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(`[ \x{00A0}]{2,}`)
	reTrailing   = regexp.MustCompile(`(?m)[ \x{00A0}]+$`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText cleans OCR output: unified line endings, collapsed runs of
// spaces, no trailing blanks. Page separators survive.
func NormalizeText(s string) string {
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reTrailing.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
