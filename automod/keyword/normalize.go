package keyword

import (
	"log/slog"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical form used to compare stored terms with each other: Unicode NFC, then lower-case. Message matching does not use it.
//
// Composed and decomposed spellings of the same text ("é" vs "e" plus combining accent) normalize to the same string.
func NormalizeText(text string) string {
	// transformers carry state, so the chain is re-created on every call
	normFunc := transform.Chain(norm.NFC)
	out, _, err := transform.String(normFunc, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		out = text
	}
	return strings.ToLower(out)
}

// Cleans up a filter term as entered by an admin: trims surrounding whitespace and applies NFC.
//
// Case is preserved so the term displays the way it was entered; matching is case-insensitive regardless.
func NormalizeTerm(term string) string {
	return norm.NFC.String(strings.TrimSpace(term))
}
