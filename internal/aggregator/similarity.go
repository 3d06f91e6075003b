package aggregator

import (
	"strings"
	"unicode"
)

// NormalizeTitle lowercases a title and collapses punctuation and spacing,
// so "SQL Injection!" and "sql  injection" compare equal
func NormalizeTitle(title string) string {
	return strings.Join(titleTokens(title), " ")
}

func titleTokens(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TitleSimilarity is the Jaccard index of the two titles' token sets.
// Two empty titles are identical.
func TitleSimilarity(a, b string) float64 {
	setA := tokenSet(titleTokens(a))
	setB := tokenSet(titleTokens(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
