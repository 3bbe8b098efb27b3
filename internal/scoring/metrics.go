// Package scoring grades drafted policies against a reference policy using
// classic text-overlap metrics. Everything here is pure computation; the
// same inputs always produce the same scores.
package scoring

import (
	"math"
	"strings"
)

// BLEU computes a BLEU-4 score between a candidate and a reference text:
// clipped n-gram precision for n=1..4, combined by geometric mean and
// multiplied by a brevity penalty. Tokens are lowercase whitespace fields.
// Identical texts score 1.0; an empty candidate or reference scores 0.
func BLEU(candidate, reference string) float64 {
	candTokens := strings.Fields(strings.ToLower(candidate))
	refTokens := strings.Fields(strings.ToLower(reference))
	if len(candTokens) == 0 || len(refTokens) == 0 {
		return 0
	}

	c := float64(len(candTokens))
	r := float64(len(refTokens))

	brevity := 1.0
	if c <= r {
		brevity = math.Exp(1 - r/c)
	}

	var logSum float64
	for n := 1; n <= 4; n++ {
		p := clippedPrecision(candTokens, refTokens, n)
		if p == 0 {
			// One empty precision zeroes the whole geometric mean.
			return 0
		}
		logSum += math.Log(p)
	}
	return brevity * math.Exp(logSum/4)
}

// clippedPrecision counts candidate n-grams that also appear in the
// reference, clipping each n-gram's credit at its reference frequency.
func clippedPrecision(candTokens, refTokens []string, n int) float64 {
	candGrams := countNgrams(candTokens, n)
	if len(candGrams) == 0 {
		return 0
	}
	refGrams := countNgrams(refTokens, n)

	var overlap, total int
	for gram, count := range candGrams {
		total += count
		if refCount, ok := refGrams[gram]; ok {
			if count < refCount {
				overlap += count
			} else {
				overlap += refCount
			}
		}
	}
	return float64(overlap) / float64(total)
}

func countNgrams(tokens []string, n int) map[string]int {
	if len(tokens) < n {
		return nil
	}
	grams := make(map[string]int, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		grams[strings.Join(tokens[i:i+n], " ")]++
	}
	return grams
}

// ROUGEL computes the ROUGE-L F1 score: the longest common subsequence of
// the two token streams, expressed as the harmonic mean of LCS precision
// and recall. Identical texts score 1.0.
func ROUGEL(candidate, reference string) float64 {
	candTokens := strings.Fields(strings.ToLower(candidate))
	refTokens := strings.Fields(strings.ToLower(reference))
	if len(candTokens) == 0 || len(refTokens) == 0 {
		return 0
	}

	lcs := float64(lcsLength(candTokens, refTokens))
	precision := lcs / float64(len(candTokens))
	recall := lcs / float64(len(refTokens))
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// lcsLength runs the standard LCS dynamic program over two rows, since
// policies run to a couple thousand tokens and the full matrix is wasteful.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
