package spatial

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// MatchStreet returns the catalog entry closest to name by token sort ratio
// and its score in [0, 100]. An empty catalog yields ("", 0).
func MatchStreet(name string, catalog []string) (string, int) {
	key := sortTokens(name)

	best, score := "", -1
	for _, candidate := range catalog {
		s := ratio(key, sortTokens(candidate))
		if s > score {
			best, score = candidate, s
		}
	}
	if score < 0 {
		return "", 0
	}
	return best, score
}

// sortTokens lowercases s, drops punctuation and sorts its words.
func sortTokens(s string) string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func ratio(a, b string) int {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(float64(total-d)/float64(total)*100 + 0.5)
}
