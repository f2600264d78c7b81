package match

import (
	"regexp"
	"strings"
)

// Scoring weights. Title similarity dominates; year agreement and an exact
// normalized title act as bonuses. Scores are capped at 1.0.
const (
	titleWeight       = 0.8
	exactBonus        = 0.1
	yearExactBonus    = 0.15
	yearAdjacentBonus = 0.1
	editWeight        = 0.6
	overlapWeight     = 0.4
)

var scorePunct = regexp.MustCompile(`[^a-z0-9 ]+`)
var scoreSpaces = regexp.MustCompile(`\s+`)

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = scorePunct.ReplaceAllString(s, " ")
	s = scoreSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Score rates how well a provider candidate fits a filename guess.
func Score(guessTitle string, guessYear *int, candidateTitle string, candidateYear int) float64 {
	a := normalizeTitle(guessTitle)
	b := normalizeTitle(candidateTitle)
	if a == "" || b == "" {
		return 0
	}

	similarity := editWeight*editSimilarity(a, b) + overlapWeight*wordOverlap(a, b)
	score := titleWeight * similarity
	if a == b {
		score += exactBonus
	}
	if guessYear != nil && candidateYear != 0 {
		switch diff := abs(*guessYear - candidateYear); {
		case diff == 0:
			score += yearExactBonus
		case diff <= 1:
			score += yearAdjacentBonus
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func editSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func wordOverlap(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		set[w] = struct{}{}
	}
	shared := 0
	for _, w := range wordsB {
		if _, ok := set[w]; ok {
			shared++
		}
	}
	longest := len(wordsA)
	if len(wordsB) > longest {
		longest = len(wordsB)
	}
	return float64(shared) / float64(longest)
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

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
