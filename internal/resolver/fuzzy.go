package resolver

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// FuzzyScore computes a similarity score in [0, 1] between two names using
// the maximum of four Levenshtein-based strategies, with a boost when one
// normalized name contains the other ("Phoenix" inside "Project Phoenix").
func FuzzyScore(a, b string) float64 {
	a = normalizeForFuzzy(a)
	b = normalizeForFuzzy(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	score := ratio(a, b)
	if s := partialRatio(a, b); s > score {
		score = s
	}
	if s := tokenSortRatio(a, b); s > score {
		score = s
	}
	if s := tokenSetRatio(a, b); s > score {
		score = s
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		score *= 1.2
		if score > 1 {
			score = 1
		}
	}
	return score
}

func normalizeForFuzzy(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ratio is the plain normalized Levenshtein similarity.
func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}

// partialRatio slides the shorter string across the longer one and takes
// the best window similarity, so a name embedded in a longer phrase still
// scores high.
func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	short, long := string(ra), rb
	window := len(ra)
	if window == 0 {
		return 0
	}

	best := 0.0
	for start := 0; start+window <= len(long); start++ {
		if s := ratio(short, string(long[start:start+window])); s > best {
			best = s
		}
	}
	if best == 0 {
		return ratio(short, string(long))
	}
	return best
}

// tokenSortRatio compares the strings with their words sorted, making word
// order irrelevant ("chen sarah" vs "sarah chen").
func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

// tokenSetRatio compares shared words plus each side's remainder, so extra
// words on one side ("the Phoenix project" vs "Phoenix") cost little.
func tokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var common, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(base, combinedA)
	if s := ratio(base, combinedB); s > best {
		best = s
	}
	if s := ratio(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}
