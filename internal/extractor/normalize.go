package extractor

import (
	"regexp"
	"strings"

	"github.com/watcherhq/watcher/internal/models"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	thousandsRe  = regexp.MustCompile(`,(\d{3})`)
	numberRe     = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
)

// Normalize applies a declared transform to a raw captured value. Equality in
// change detection is defined over these normalized values, so the transforms
// must be deterministic.
func Normalize(kind models.NormalizeKind, raw string) string {
	switch kind {
	case models.NormalizeTrim:
		return strings.TrimSpace(raw)
	case models.NormalizeLower:
		return strings.ToLower(strings.TrimSpace(raw))
	case models.NormalizeText:
		return collapseWhitespace(raw)
	case models.NormalizeNumber:
		// Drop thousands separators first so "1,249.99" is one token; a
		// remaining comma is a decimal separator.
		stripped := thousandsRe.ReplaceAllString(raw, "$1")
		if m := numberRe.FindString(stripped); m != "" {
			return strings.ReplaceAll(m, ",", ".")
		}
		return ""
	default:
		return raw
	}
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
