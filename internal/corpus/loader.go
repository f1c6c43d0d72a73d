package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goquran/tilawa/internal/arabic"
)

// languageURLs maps supported translation languages to their corpus JSON
// location on the quran-json CDN.
var languageURLs = map[string]string{
	"english":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_en.json",
	"urdu":       "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_ur.json",
	"bengali":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_bn.json",
	"chinese":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_zh.json",
	"spanish":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_es.json",
	"french":     "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_fr.json",
	"indonesian": "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_id.json",
	"russian":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_ru.json",
	"swedish":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_sv.json",
	"turkish":    "https://cdn.jsdelivr.net/npm/quran-json@3.1.2/dist/quran_tr.json",
}

// SupportedLanguage reports whether a corpus URL is known for lang.
func SupportedLanguage(lang string) bool {
	_, ok := languageURLs[lang]
	return ok
}

// LoaderOption is a functional option for configuring a [Loader].
type LoaderOption func(*Loader)

// WithHTTPClient overrides the HTTP client used for corpus fetches.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.client = c }
}

// WithURL overrides the corpus URL for a language. Tests use this to point
// a language at a local server.
func WithURL(lang, url string) LoaderOption {
	return func(l *Loader) { l.urls[lang] = url }
}

// Loader fetches and decodes the reference corpus for a translation
// language. Safe for concurrent use.
type Loader struct {
	client *http.Client
	urls   map[string]string
}

// NewLoader returns a Loader with a 30-second default HTTP timeout.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		client: &http.Client{Timeout: 30 * time.Second},
		urls:   make(map[string]string, len(languageURLs)),
	}
	for lang, url := range languageURLs {
		l.urls[lang] = url
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// jsonChapter mirrors the quran-json wire format.
type jsonChapter struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	Translation   string      `json:"translation"`
	TotalVerses   int         `json:"total_verses"`
	Verses        []jsonVerse `json:"verses"`
}

type jsonVerse struct {
	ID          int    `json:"id"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
}

// Fetch downloads, decodes, and normalises the corpus for lang.
//
// The source data carries one quirk this loader papers over: chapter 1
// includes the shared opening formula as its first verse, unlike every other
// chapter. That verse is dropped and the remaining verses renumbered from 1,
// so verse numbering is uniform across all chapters.
func (l *Loader) Fetch(ctx context.Context, lang string) (*Corpus, error) {
	url, ok := l.urls[lang]
	if !ok {
		return nil, fmt.Errorf("corpus: unsupported language %q", lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("corpus: build request: %w", err)
	}

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("corpus: fetch %s: %w", lang, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("corpus: fetch %s: unexpected status %d", lang, resp.StatusCode)
	}

	var raw []jsonChapter
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("corpus: decode %s: %w", lang, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("corpus: %s: empty chapter list", lang)
	}

	c := &Corpus{
		Language: lang,
		chapters: make([]Chapter, 0, len(raw)),
	}
	totalVerses := 0
	for _, jc := range raw {
		verses := jc.Verses
		// Source quirk: the first chapter carries the opening formula as
		// verse 1. Drop it and re-base numbering.
		if jc.ID == 1 && len(verses) > 0 {
			verses = verses[1:]
		}
		ch := Chapter{
			ID:             jc.ID,
			Name:           jc.Name,
			TranslatedName: jc.Translation,
			Verses:         make([]Verse, 0, len(verses)),
		}
		for i, jv := range verses {
			ch.Verses = append(ch.Verses, Verse{
				ChapterID:   jc.ID,
				Number:      i + 1,
				Arabic:      jv.Text,
				Normalized:  arabic.Normalize(jv.Text),
				Translation: jv.Translation,
			})
		}
		totalVerses += len(ch.Verses)
		c.chapters = append(c.chapters, ch)
	}
	c.buildIndexes()

	slog.Info("corpus loaded",
		"language", lang,
		"chapters", len(c.chapters),
		"verses", totalVerses,
		"took", time.Since(start),
	)
	return c, nil
}
