// Package match implements the approximate string matching used to align
// noisy recognised speech against the reference corpus.
//
// Three pieces live here:
//
//   - [Similarity]: a normalised edit-distance score in [0, 1] used for
//     end-of-chapter detection and as a confirmation signal.
//   - [Index]: a ranked fuzzy search over a fixed candidate set (chapter
//     openings, the whole corpus, or a rolling verse window), returning only
//     candidates at or below a configured score threshold.
//   - [Scan]: the longest-phrase-first multi-match scan that extracts every
//     verse contained in a single transcript burst.
//
// All types are read-only after construction and safe for concurrent use.
package match

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity returns a normalised edit-distance similarity between a and b:
// 1 - levenshtein(a, b) / max(len(a), len(b)), computed over runes.
//
// The result is symmetric and bounded to [0, 1]. Similarity(x, x) == 1 for
// any x, and Similarity("", x) == 0 for non-empty x. Two empty strings are
// identical, so Similarity("", "") == 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	d := matchr.Levenshtein(a, b)
	sim := 1 - float64(d)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}
