package resolver

import "strings"

// RatcliffObershelp computes the Ratcliff/Obershelp similarity ratio
// between a and b, case-insensitively, as spec §4.3 requires for text and
// aria-label scoring: 2*M / (len(a)+len(b)) where M is the total length
// of matching blocks found recursively.
func RatcliffObershelp(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	matches := matchingBlockLength([]rune(a), []rune(b))
	return 2.0 * float64(matches) / float64(len([]rune(a))+len([]rune(b)))
}

func matchingBlockLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	bestLen, bestAI, bestBI := 0, 0, 0
	for ai := 0; ai < len(a); ai++ {
		for bi := 0; bi < len(b); bi++ {
			l := 0
			for ai+l < len(a) && bi+l < len(b) && a[ai+l] == b[bi+l] {
				l++
			}
			if l > bestLen {
				bestLen, bestAI, bestBI = l, ai, bi
			}
		}
	}
	if bestLen == 0 {
		return 0
	}
	total := bestLen
	total += matchingBlockLength(a[:bestAI], b[:bestBI])
	total += matchingBlockLength(a[bestAI+bestLen:], b[bestBI+bestLen:])
	return total
}
