// Package locate identifies which chapter — and where inside it — a reciter
// is, from nothing but an accumulating noisy transcript.
//
// Two locators cooperate:
//
//   - [ChapterLocator] searches a small opening-phrase index (one entry per
//     chapter plus the shared opening-formula sentinel) with a progressively
//     growing word queue, committing at the first word count where exactly
//     one opening remains. This is what lets the engine lock a chapter
//     without waiting for a pause or a verse boundary.
//   - [CorpusLocator] is the fallback: a looser search over every verse in
//     the corpus, for reciters who start mid-chapter or whose opening words
//     were misrecognised.
//
// Both locators are read-only after construction and safe for concurrent
// use. "No match" is an ordinary nil return, never an error.
package locate

import (
	"strings"

	"github.com/goquran/tilawa/internal/arabic"
	"github.com/goquran/tilawa/internal/corpus"
	"github.com/goquran/tilawa/internal/match"
)

// minWords is the minimum number of accumulated Arabic words before a
// chapter search is attempted. Shorter fragments are too ambiguous to be
// worth the search.
const minWords = 3

// Location is a successful identification.
type Location struct {
	// ChapterID is 1..114, or 0 when only the shared opening formula was
	// recognised (Formula true).
	ChapterID int

	// ChapterName is the Arabic chapter name. Empty for the formula.
	ChapterName string

	// VerseNumber is the 1-based verse where tracking should start.
	VerseNumber int

	// Translation of the matched opening or verse, for immediate display.
	Translation string

	// Formula marks the sentinel hit: the opening formula was recognised
	// but no chapter can be locked yet.
	Formula bool
}

// ChapterLocator performs the progressive opening-phrase search.
type ChapterLocator struct {
	index *match.Index
}

// NewChapterLocator builds the locator over the corpus's opening-phrase
// entries with the given threshold (0.2 by default).
func NewChapterLocator(c *corpus.Corpus, threshold float64) *ChapterLocator {
	return &ChapterLocator{index: match.NewIndex(c.OpeningEntries(), threshold)}
}

// Locate runs the progressive search over the accumulated transcript.
//
// Returns a non-nil Location on a unique hit. exhausted reports that the
// opening index yielded zero candidates at some queue length — growing the
// queue further cannot help, and the caller should fall back to a
// whole-corpus search. When Locate returns (nil, false) the transcript is
// still ambiguous; keep accumulating.
func (l *ChapterLocator) Locate(transcript string) (loc *Location, exhausted bool) {
	words := arabic.Words(arabic.Normalize(transcript))
	if len(words) < minWords {
		return nil, false
	}

	var queue []string
	for _, w := range words {
		queue = append(queue, w)
		results := l.index.Search(strings.Join(queue, " "))

		switch len(results) {
		case 0:
			// No opening starts with this queue. More words only lengthen
			// the same non-matching prefix.
			return nil, true
		case 1:
			op := results[0].Entry.Payload.(corpus.Opening)
			if op.ChapterID == 0 {
				return &Location{
					Translation: op.Translation,
					Formula:     true,
				}, false
			}
			return &Location{
				ChapterID:   op.ChapterID,
				ChapterName: op.Name,
				VerseNumber: 1,
				Translation: op.Translation,
			}, false
		default:
			// Ambiguous prefix; extend the queue.
		}
	}
	return nil, false
}

// CorpusLocator searches the entire verse corpus.
type CorpusLocator struct {
	index *match.Index
	c     *corpus.Corpus
}

// NewCorpusLocator builds the fallback locator with the given threshold
// (0.3 by default).
func NewCorpusLocator(c *corpus.Corpus, threshold float64) *CorpusLocator {
	return &CorpusLocator{
		index: match.NewIndex(c.VerseEntries(), threshold),
		c:     c,
	}
}

// Locate searches every verse for the best match to the transcript and
// returns its chapter and 1-based verse position, supporting recitation
// that starts mid-chapter. Returns nil when nothing scores under the
// threshold; the caller keeps accumulating transcript.
func (l *CorpusLocator) Locate(transcript string) *Location {
	query := arabic.Normalize(arabic.RemoveNonArabic(transcript))
	if query == "" {
		return nil
	}
	results := l.index.Search(query)
	if len(results) == 0 {
		return nil
	}

	v := results[0].Entry.Payload.(*corpus.Verse)
	name := ""
	if ch, err := l.c.Chapter(v.ChapterID); err == nil {
		name = ch.Name
	}
	return &Location{
		ChapterID:   v.ChapterID,
		ChapterName: name,
		VerseNumber: v.Number,
		Translation: v.Translation,
	}
}
