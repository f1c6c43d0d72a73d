package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// epsilonScore is the score assigned to substring containment. Exact equality
// scores 0. Both sit well under every configured threshold so a literal hit
// always survives ranking.
const epsilonScore = 0.01

// Entry is a single searchable record: an identifier, its normalised text,
// and an opaque payload carried back to the caller on a hit.
type Entry struct {
	ID      int
	Text    string
	Payload any
}

// Match pairs an index entry with its query score. Lower is better; 0 means
// an exact match.
type Match struct {
	Entry Entry
	Score float64
}

// Index is a ranked fuzzy-search structure over a fixed candidate set.
// Queries return only candidates scoring at or below the configured
// threshold, best first. Ties are broken by shortest normalised text, which
// stabilises chapter-opening disambiguation when several openings share a
// prefix.
//
// Index is immutable after construction and safe for concurrent use.
type Index struct {
	entries   []Entry
	threshold float64
}

// NewIndex builds an Index over entries with the given score threshold
// (0..1, lower = stricter). Entry texts must already be normalised; the
// index performs no normalisation of its own.
func NewIndex(entries []Entry, threshold float64) *Index {
	idx := &Index{
		entries:   make([]Entry, len(entries)),
		threshold: threshold,
	}
	copy(idx.entries, entries)
	return idx
}

// Threshold returns the configured score cut-off.
func (idx *Index) Threshold() float64 { return idx.threshold }

// Search ranks every entry against query and returns those scoring at or
// below the threshold, ordered by ascending score then ascending text
// length. An empty query yields no matches.
func (idx *Index) Search(query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var out []Match
	for _, e := range idx.entries {
		s := score(query, e.Text)
		if s <= idx.threshold {
			out = append(out, Match{Entry: e, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return utf8.RuneCountInString(out[i].Entry.Text) < utf8.RuneCountInString(out[j].Entry.Text)
	})
	return out
}

// score computes the match score of query against text. 0 is exact,
// epsilonScore when the query appears verbatim inside the text. Otherwise
// the best (lowest) of three distances is used:
//
//   - query vs. the leading words of text sized to the query — this is what
//     makes progressive opening-phrase search work: a reciter three words
//     into a long verse still scores well against that verse's entry;
//   - query vs. the full text;
//   - Jaro-Winkler on the full strings, which tolerates the prefix-heavy
//     homophone confusions Arabic recognisers produce.
//
// Scoring is deliberately directional: a query that extends past the end of
// the candidate text pays full edit-distance cost for the excess. This keeps
// a burst spanning two verses from being swallowed whole by the first verse,
// which the multi-match scan depends on.
func score(query, text string) float64 {
	if query == text {
		return 0
	}
	if strings.Contains(text, query) {
		return epsilonScore
	}

	qlen := utf8.RuneCountInString(query)
	tlen := utf8.RuneCountInString(text)

	best := 1 - Similarity(query, text)

	if prefix := leadingWords(text, qlen); prefix != text {
		if s := 1 - Similarity(query, prefix); s < best {
			best = s
		}
	}

	if qlen <= tlen {
		if s := 1 - matchr.JaroWinkler(query, text, false); s < best {
			best = s
		}
	}
	return best
}

// leadingWords returns the longest whole-word prefix of text whose rune
// count does not exceed limit plus one word. At least one word is always
// returned.
func leadingWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}
	var b strings.Builder
	count := 0
	for i, w := range words {
		if i > 0 {
			if count >= limit {
				break
			}
			b.WriteByte(' ')
			count++
		}
		b.WriteString(w)
		count += utf8.RuneCountInString(w)
	}
	return b.String()
}
