// Package corpus holds the read-only reference corpus: 114 chapters of
// verses with translations, fetched once per language selection and used by
// every matching component.
//
// The corpus is immutable after [Loader.Fetch] returns. Changing the
// translation language means fetching a whole new Corpus and swapping the
// pointer; nothing here mutates in place.
package corpus

import (
	"fmt"

	"github.com/goquran/tilawa/internal/arabic"
	"github.com/goquran/tilawa/internal/match"
)

// ChapterCount is the number of chapters in the reference corpus.
const ChapterCount = 114

// openingWordLimit caps how many words of a chapter's first verse are used
// as its opening-phrase index entry. Openings only need to be long enough to
// disambiguate; indexing whole long verses would punish partial matches.
const openingWordLimit = 8

// FormulaTranslation is the translation emitted when the shared opening
// formula is recognised before any chapter is identified.
const FormulaTranslation = "In the name of Allah, the Entirely Merciful, the Especially Merciful"

// formulaNormalized is the canonical form of the opening formula shared by
// nearly all chapters.
const formulaNormalized = "بسم الله الرحمن الرحيم"

// Verse is one numbered unit of text within a chapter. Immutable.
type Verse struct {
	ChapterID   int
	Number      int // 1-based, contiguous within the chapter
	Arabic      string
	Normalized  string
	Translation string
}

// Chapter is an ordered sequence of verses.
type Chapter struct {
	ID             int
	Name           string
	TranslatedName string
	Verses         []Verse
}

// VerseCount returns the number of verses in the chapter.
func (c *Chapter) VerseCount() int { return len(c.Verses) }

// LastVerse returns the chapter's final verse. Panics on an empty chapter,
// which the loader never produces.
func (c *Chapter) LastVerse() Verse { return c.Verses[len(c.Verses)-1] }

// Opening is the payload carried by opening-phrase index entries.
// ChapterID 0 marks the sentinel entry for the shared opening formula.
type Opening struct {
	ChapterID   int
	Name        string
	Translation string
	FirstVerse  *Verse // nil for the sentinel entry
}

// Corpus is the full reference text for one translation language.
type Corpus struct {
	Language string
	chapters []Chapter

	byID     map[int]*Chapter
	openings []match.Entry
	verses   []match.Entry
}

// New assembles a Corpus directly from chapters, normalising any verse whose
// Normalized field is empty and building the search indexes. The HTTP
// [Loader] is the production path; New exists for tests and embedded data.
func New(language string, chapters []Chapter) *Corpus {
	c := &Corpus{Language: language, chapters: chapters}
	for i := range c.chapters {
		for j := range c.chapters[i].Verses {
			v := &c.chapters[i].Verses[j]
			if v.Normalized == "" {
				v.Normalized = arabic.Normalize(v.Arabic)
			}
		}
	}
	c.buildIndexes()
	return c
}

// Chapter returns the chapter with the given 1-based id.
func (c *Corpus) Chapter(id int) (*Chapter, error) {
	ch, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("corpus: chapter %d not present (valid range [1, %d])", id, ChapterCount)
	}
	return ch, nil
}

// Chapters returns the number of chapters in the corpus.
func (c *Corpus) Chapters() int { return len(c.chapters) }

// OpeningEntries returns the opening-phrase index records: one sentinel
// entry (ID 0) for the shared opening formula plus one per chapter. Entry
// payloads are [Opening] values. The slice is shared; callers must not
// modify it.
func (c *Corpus) OpeningEntries() []match.Entry { return c.openings }

// VerseEntries returns one searchable record per verse in the whole corpus.
// Entry payloads are *[Verse] pointers into the corpus. The slice is shared;
// callers must not modify it.
func (c *Corpus) VerseEntries() []match.Entry { return c.verses }

// buildIndexes derives the opening-phrase and whole-corpus search records.
// Called once at load time.
func (c *Corpus) buildIndexes() {
	c.byID = make(map[int]*Chapter, len(c.chapters))
	for i := range c.chapters {
		c.byID[c.chapters[i].ID] = &c.chapters[i]
	}

	c.openings = make([]match.Entry, 0, len(c.chapters)+1)
	c.openings = append(c.openings, match.Entry{
		ID:   0,
		Text: formulaNormalized,
		Payload: Opening{
			ChapterID:   0,
			Translation: FormulaTranslation,
		},
	})

	total := 0
	for i := range c.chapters {
		ch := &c.chapters[i]
		total += len(ch.Verses)
		if len(ch.Verses) == 0 {
			continue
		}
		first := &ch.Verses[0]
		c.openings = append(c.openings, match.Entry{
			ID:   ch.ID,
			Text: truncateWords(first.Normalized, openingWordLimit),
			Payload: Opening{
				ChapterID:   ch.ID,
				Name:        ch.Name,
				Translation: first.Translation,
				FirstVerse:  first,
			},
		})
	}

	c.verses = make([]match.Entry, 0, total)
	id := 0
	for i := range c.chapters {
		ch := &c.chapters[i]
		for j := range ch.Verses {
			id++
			c.verses = append(c.verses, match.Entry{
				ID:      id,
				Text:    ch.Verses[j].Normalized,
				Payload: &ch.Verses[j],
			})
		}
	}
}

func truncateWords(s string, limit int) string {
	words := arabic.Words(s)
	if len(words) <= limit {
		return s
	}
	out := words[0]
	for _, w := range words[1:limit] {
		out += " " + w
	}
	return out
}
