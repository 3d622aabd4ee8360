package match

import "golang.org/x/text/cases"

var folder = cases.Fold()

// Ratio computes a normalized similarity in [0, 1] between two strings using
// edit distance over case-folded runes. Identical strings score 1.0, fully
// dissimilar strings 0.0. The function is symmetric and deterministic.
func Ratio(a, b string) float64 {
	ra := []rune(folder.String(a))
	rb := []rune(folder.String(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	distance := levenshtein(ra, rb)
	return 1.0 - float64(distance)/float64(longest)
}

// levenshtein computes edit distance with the classic two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
