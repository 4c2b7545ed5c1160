package searchrouter

import "strings"

// NormalizeLink lower-cases a link, trims surrounding whitespace and strips
// trailing slashes.
func NormalizeLink(link string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(link)), "/")
}

// MergeHits concatenates hit lists in the given order and keeps the first hit
// for each dedup key. Hits with an empty key are dropped.
func MergeHits(lists ...[]SearchHit) []SearchHit {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	seen := make(map[string]struct{}, total)
	merged := make([]SearchHit, 0, total)
	for _, l := range lists {
		for _, h := range l {
			key := h.DedupKey()
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, h)
		}
	}
	return merged
}
