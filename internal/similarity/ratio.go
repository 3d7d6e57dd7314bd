// Package similarity scores candidate record pairs.
package similarity

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// indel counts insertions and deletions only: a substitution costs as much
// as one deletion plus one insertion.
var indel = levenshtein.NewParams().SubCost(2)

// Func scores two strings on a 0-100 scale.
type Func func(a, b string) float64

// Ratio is the normalized indel similarity of a and b on a 0-100 scale.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, indel)
	return float64(100*(total-dist)) / float64(total)
}

// TokenSortRatio compares a and b after sorting their whitespace-separated
// tokens, so "smith john" and "john smith" score 100.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
