package stationfinder

import (
	"github.com/agnivade/levenshtein"
)

// Similarity computes a [0,1] score between two strings using the
// Ratcliff/Obershelp sequence-matching ratio: twice the total size of the
// matching contiguous blocks divided by the combined length. Unlike plain
// edit distance it tolerates reordering and partial-name matches, which are
// common in transliterated station names.
//
// Symmetric: Similarity(a, b) == Similarity(b, a). Identical strings score
// 1.0; an empty string against a non-empty one scores 0.0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	// Canonical argument order keeps the score symmetric even when
	// longest-block tie-breaking would differ between orderings.
	if b < a {
		a, b = b, a
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2 * float64(matchingTotal(ra, rb)) / float64(total)
}

// matchingTotal sums the sizes of all matching blocks: the longest common
// contiguous block, then recursively the pieces to its left and right.
func matchingTotal(a, b []rune) int {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	var rec func(alo, ahi, blo, bhi int) int
	rec = func(alo, ahi, blo, bhi int) int {
		besti, bestj, bestsize := alo, blo, 0
		j2len := map[int]int{}
		for i := alo; i < ahi; i++ {
			newj2len := map[int]int{}
			for _, j := range b2j[a[i]] {
				if j < blo {
					continue
				}
				if j >= bhi {
					break
				}
				k := j2len[j-1] + 1
				newj2len[j] = k
				if k > bestsize {
					besti, bestj, bestsize = i-k+1, j-k+1, k
				}
			}
			j2len = newj2len
		}
		if bestsize == 0 {
			return 0
		}
		return bestsize +
			rec(alo, besti, blo, bestj) +
			rec(besti+bestsize, ahi, bestj+bestsize, bhi)
	}
	return rec(0, len(a), 0, len(b))
}

// withinRatioBound reports whether a and b could still score above threshold.
// A pair with Similarity above t has edit distance below (1-t)*(len(a)+len(b)),
// so candidates beyond that bound are skipped without computing the full
// ratio. The extra unit of slack keeps the bound safe across float rounding.
func withinRatioBound(a, b string, threshold float64) bool {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return true
	}
	limit := (1-threshold)*float64(total) + 1
	return float64(levenshtein.ComputeDistance(a, b)) <= limit
}
