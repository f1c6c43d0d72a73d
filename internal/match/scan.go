package match

import "strings"

// Scan extracts every candidate matched inside words using a
// longest-phrase-first sweep.
//
// Starting at word i, phrases words[i:j] are tried for j from len(words)
// down to i+1; the first phrase whose best index hit scores at or below
// confident records that hit and advances i past the consumed words.
// When no phrase starting at i matches, i advances by one.
//
// This lets one transcript burst containing several concatenated verses
// yield all of them in order, and resynchronises after recogniser
// insertions. Results are deduplicated by entry ID.
//
// words must already be normalised. Worst case is O(n²) searches over the
// candidate set, which stays cheap for the rolling-window sizes used here.
func Scan(words []string, idx *Index, confident float64) []Match {
	var matches []Match
	seen := make(map[int]struct{})

	i := 0
	for i < len(words) {
		matched := false
		for j := len(words); j > i; j-- {
			phrase := strings.Join(words[i:j], " ")
			results := idx.Search(phrase)
			if len(results) == 0 || results[0].Score > confident {
				continue
			}
			hit := results[0]
			if _, dup := seen[hit.Entry.ID]; !dup {
				seen[hit.Entry.ID] = struct{}{}
				matches = append(matches, hit)
			}
			i = j
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return matches
}
