package keyword

import (
	"strings"

	"github.com/bluesky-social/tgmod/automod/policy"
)

// Returns the first term (in slice order) which occurs anywhere in the text, or nil.
//
// Matching is case-insensitive substring containment on the raw code points, not word-boundary: the term "spam" matches "spamless". No Unicode normalization is applied to the message, so "cafe" followed by a combining accent still contains "cafe". Empty text and empty terms never match.
func MatchTerm(text string, terms []policy.FilterTerm) *policy.FilterTerm {
	if text == "" {
		return nil
	}
	lowerText := strings.ToLower(text)
	for i := range terms {
		if ContainsTerm(lowerText, terms[i].Term) {
			return &terms[i]
		}
	}
	return nil
}

// Helper to check a single term against already lower-cased text
func ContainsTerm(lowerText, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(lowerText, strings.ToLower(term))
}
