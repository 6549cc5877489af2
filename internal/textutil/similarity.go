package textutil

import "strings"

// DefaultSimilarityThreshold is the ratio below which two texts count as
// materially different. Duplicate-rejection behavior depends on this exact
// value; see the gate tests before changing it.
const DefaultSimilarityThreshold = 0.90

// MateriallyDifferent reports whether candidate text differs enough from a
// previously rejected one to be worth re-sending. An empty side is vacuously
// different. The comparison is a cheap sequence-similarity ratio on
// lower-cased trimmed text, not semantic similarity, so refusals stay
// explainable to support staff.
func MateriallyDifferent(a, b string) bool {
	return MateriallyDifferentAt(a, b, DefaultSimilarityThreshold)
}

// MateriallyDifferentAt is MateriallyDifferent with an explicit threshold.
func MateriallyDifferentAt(a, b string, threshold float64) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return true
	}
	return SimilarityRatio(strings.ToLower(a), strings.ToLower(b)) < threshold
}

// SimilarityRatio computes a Ratcliff/Obershelp similarity ratio in [0, 1]:
// twice the number of matching characters over the total length, where
// matches come from recursively splitting around the longest common
// substring.
func SimilarityRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(commonChars(ra, rb)) / float64(total)
}

func commonChars(a, b []rune) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		commonChars(a[:ai], b[:bi]) +
		commonChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	// prev[j] is the match run length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
