// Package parse turns the raw text of the two exam documents into structured
// records: an answer map for the key and per-question stems and choices for
// the booklet.
package parse

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies unicode compatibility normalization and collapses all
// whitespace runs to single spaces. Extracted PDF text mixes ligatures,
// non-breaking spaces and ragged line breaks; everything downstream compares
// normalized text only.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}
