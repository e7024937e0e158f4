package domain

import "fmt"

// PairKey derives the canonical key for an unordered pair of user IDs:
// the two IDs sorted ascending and joined with a colon. At most one direct
// conversation may exist per pair key.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
