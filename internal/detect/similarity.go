package detect

import (
	"strings"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xrash/smetrics"
)

// similarityMemoSize bounds the memo for the hottest string comparisons.
const similarityMemoSize = 10000

// normalizeUsername lower-cases a name and strips separators so that
// "Streamer_X" and "streamerx" compare equal.
func normalizeUsername(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', ' ', '\t':
			return -1
		}
		return r
	}, name)
}

// stripDigits removes all decimal digits from a normalized name.
func stripDigits(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		return r
	}, name)
}

// deleetify undoes the common digit-for-letter substitutions impersonators
// use (0 for o, 3 for e, 1 for i/l).
func deleetify(name string) string {
	name = strings.ReplaceAll(name, "0", "o")
	name = strings.ReplaceAll(name, "3", "e")
	return strings.ReplaceAll(name, "1", "il")
}

// usernameSimilarity computes the raw 0-100 blend for two usernames:
// normalized Levenshtein similarity (50%), Jaro-Winkler (30%) and the
// impersonation pattern detector (20%).
func usernameSimilarity(a, b string) float64 {
	normA := normalizeUsername(a)
	normB := normalizeUsername(b)

	if normA == "" || normB == "" {
		return 0
	}
	if normA == normB {
		return 100
	}

	maxLen := len(normA)
	if len(normB) > maxLen {
		maxLen = len(normB)
	}
	levSimilarity := (1 - float64(levenshtein.ComputeDistance(normA, normB))/float64(maxLen)) * 100

	jaroSimilarity := smetrics.JaroWinkler(normA, normB, 0.7, 4) * 100

	patternScore := impersonationPatternScore(normA, normB)

	return levSimilarity*0.5 + jaroSimilarity*0.3 + patternScore*0.2
}

// impersonationPatternScore recognizes the classic disguises: digit-suffix
// insertion, homoglyph/leet substitution and containment with a short
// addition. Returns 0-100 over the normalized names.
func impersonationPatternScore(normA, normB string) float64 {
	score := 0.0

	// Same letters, different digits ("hiswattson247" vs "hiswattson2470923")
	baseA := stripDigits(normA)
	baseB := stripDigits(normB)
	if baseA != "" && baseA == baseB {
		score += 50
	}

	// Leet substitution (0<->o, 3<->e, 1<->l/i)
	subA := deleetify(normA)
	subB := deleetify(normB)
	if subA == subB || strings.Contains(subA, subB) || strings.Contains(subB, subA) {
		score += 30
	}

	// One name contains the other with only a short addition
	if strings.Contains(normA, normB) || strings.Contains(normB, normA) {
		lenDiff := len(normA) - len(normB)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		switch {
		case lenDiff <= 5:
			score += 40
		case lenDiff <= 10:
			score += 20
		}
	}

	if score > 100 {
		return 100
	}
	return score
}

// bioSimilarity is a 0-100 Levenshtein ratio over lower-cased bios. Returns 0
// when either bio is empty.
func bioSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return (1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)) * 100
}

// memoKey is the order-independent cache key for a username pair.
func memoKey(a, b string) [2]string {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func newSimilarityMemo() *lru.Cache[[2]string, float64] {
	memo, _ := lru.New[[2]string, float64](similarityMemoSize)
	return memo
}
