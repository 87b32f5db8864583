package forge

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Suggest returns the candidate closest to name by edit distance, or "" when
// nothing is close enough to be a plausible typo.
func Suggest(name string, candidates []string) string {
	in := strings.ToLower(strings.TrimSpace(name))
	if in == "" {
		return ""
	}
	best, bestDist := "", -1
	for _, cand := range candidates {
		c := strings.ToLower(cand)
		if c == in {
			return cand
		}
		dist := levenshtein.ComputeDistance(in, c)
		if dist > suggestLimit(len(c)) {
			continue
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && cand < best) {
			best, bestDist = cand, dist
		}
	}
	return best
}

func suggestLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
