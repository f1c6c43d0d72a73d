package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/goquran/tilawa/internal/arabic"
	"github.com/goquran/tilawa/internal/config"
	"github.com/goquran/tilawa/internal/corpus"
	"github.com/goquran/tilawa/internal/locate"
	"github.com/goquran/tilawa/internal/match"
	"github.com/goquran/tilawa/internal/speech"
)

var (
	// ErrCorpusNotReady is returned when a session operation needs the
	// corpus but it has not been loaded yet.
	ErrCorpusNotReady = errors.New("session: corpus not loaded")

	// ErrNotStarted is returned by operations that require an active session.
	ErrNotStarted = errors.New("session: not started")

	// ErrUnknownChapter is returned by JumpToVerse for a chapter id
	// outside the corpus.
	ErrUnknownChapter = errors.New("session: unknown chapter")

	// ErrVerseOutOfRange is returned by JumpToVerse for a verse number
	// outside the target chapter.
	ErrVerseOutOfRange = errors.New("session: verse out of range")
)

const (
	// closingPhrase is the normalized takbir that ends a recitation.
	closingPhrase = "الله اكبر"

	// closingTranslation is announced when the takbir is recognised.
	closingTranslation = "Allah is the Greatest"

	// fatihaEndPhrase is the normalized tail of the first chapter's final
	// verse; hearing it ends the chapter without waiting for a full
	// verse match.
	fatihaEndPhrase = "ولا الضالين"

	// staleRetryMinRunes is the minimum accumulated transcript length
	// worth re-searching the whole corpus with after tracking is lost.
	staleRetryMinRunes = 10

	// tickInterval is how often [Machine.Run] checks the silence and
	// reset deadlines.
	tickInterval = 250 * time.Millisecond
)

// Machine drives a single recitation session. All transcript, timer, and
// control events funnel through one mutex, so they apply in arrival order
// and never interleave mid-transition.
//
// Speech output is part of the critical section: a matched verse's
// translation finishes playing before the next event is processed, which
// keeps announcements serialised with matching.
type Machine struct {
	tuning  config.Tuning
	speaker speech.Speaker
	sink    Sink
	now     func() time.Time

	mu          sync.Mutex
	corpus      *corpus.Corpus
	chapters    *locate.ChapterLocator
	wholeCorpus *locate.CorpusLocator
	langCode    string

	sess        Session
	accumulated string
	unmatched   string
	chapter     *corpus.Chapter
	window      *match.Index
	processed   map[int]bool

	formulaSpoken  bool
	closingSpoken  bool
	pendingResetAt time.Time
}

// Option configures a [Machine].
type Option func(*Machine)

// WithSink sets the notification sink.
func WithSink(s Sink) Option {
	return func(m *Machine) { m.sink = s }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a session machine. The corpus is attached separately via
// [Machine.SetCorpus] once fetched; until then Start and JumpToVerse
// return [ErrCorpusNotReady].
func New(tuning config.Tuning, speaker speech.Speaker, opts ...Option) *Machine {
	m := &Machine{
		tuning:   tuning,
		speaker:  speaker,
		now:      time.Now,
		langCode: speech.CodeFor(""),
	}
	m.sess.State = StateIdle
	m.sess.StateName = StateIdle.String()
	m.sess.PlaybackRate = 1.0
	m.sess.AutoRecite = true
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCorpus attaches (or replaces) the reference corpus and rebuilds the
// locators. Replacing the corpus of an active session resets it.
func (m *Machine) SetCorpus(c *corpus.Corpus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.corpus = c
	m.chapters = locate.NewChapterLocator(c, m.tuning.ChapterThreshold)
	m.wholeCorpus = locate.NewCorpusLocator(c, m.tuning.CorpusThreshold)
	m.langCode = speech.CodeFor(c.Language)

	if m.sess.State != StateIdle {
		m.reset("corpus replaced", true)
	}
}

// CorpusReady reports whether a corpus has been attached.
func (m *Machine) CorpusReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.corpus != nil
}

// Start activates the session and begins chapter identification.
// An already-active session is reset first.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.corpus == nil {
		return ErrCorpusNotReady
	}
	if m.sess.State != StateIdle {
		m.reset("restarted", true)
	}

	now := m.now()
	m.sess.ID = uuid.NewString()
	m.sess.StartedAt = now
	m.sess.LastTranscriptAt = now
	m.sess.PlaybackRate = 1.0
	m.setState(StateSearching)
	slog.Info("session started", "session", m.sess.ID, "language", m.corpus.Language)
	return nil
}

// Stop deactivates the session, cancelling any in-flight speech.
func (m *Machine) Stop() {
	// Cancel before taking the lock: an in-flight Speak call holds the
	// mutex until it returns.
	m.speaker.CancelAll()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State == StateIdle {
		return
	}
	m.reset("stopped", false)
}

// Run drives the machine's deadline checks until ctx is cancelled, then
// stops the session.
func (m *Machine) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return nil
		case <-ticker.C:
			m.Tick()
		}
	}
}

// SetMuted toggles audible announcements. The setting survives resets.
func (m *Machine) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess.Muted = muted
}

// SetAutoRecite toggles spoken follow-along mode. While enabled, the speed
// adapter runs and recitation-gap silence is tolerated; while disabled,
// prolonged silence during tracking resets the session. The setting
// survives resets.
func (m *Machine) SetAutoRecite(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess.AutoRecite = enabled
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sess
	out.History = append([]MatchedVerse(nil), m.sess.History...)
	return out
}

// Transcript feeds newly recognised text into the session. Non-Arabic
// content is stripped; events with no Arabic words are ignored.
func (m *Machine) Transcript(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recovered()

	if m.sess.State == StateIdle || m.sess.State == StateEndOfChapter {
		return
	}
	if !m.pendingResetAt.IsZero() {
		return
	}

	cleaned := arabic.Normalize(arabic.RemoveNonArabic(text))
	if cleaned == "" {
		return
	}

	now := m.now()
	m.sess.LastTranscriptAt = now
	if m.accumulated == "" {
		m.accumulated = cleaned
	} else {
		m.accumulated += " " + cleaned
	}

	m.adaptRate(now)

	if m.sess.State == StateTracking {
		if m.handleClosingPhrases(cleaned, now) {
			return
		}
		m.track(cleaned)
		return
	}

	m.search()
}

// JumpToVerse relocates the session to an explicit chapter and verse.
// Validation errors leave the session untouched.
func (m *Machine) JumpToVerse(chapterID, verseNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recovered()

	if m.corpus == nil {
		return ErrCorpusNotReady
	}
	if m.sess.State == StateIdle {
		return ErrNotStarted
	}
	ch, err := m.corpus.Chapter(chapterID)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrUnknownChapter, chapterID)
	}
	if verseNumber < 1 || verseNumber > ch.VerseCount() {
		return fmt.Errorf("%w: %d:%d (chapter has %d verses)",
			ErrVerseOutOfRange, chapterID, verseNumber, ch.VerseCount())
	}

	// Valid target: clear matching state but keep the session activation.
	m.accumulated = ""
	m.formulaSpoken = false
	m.closingSpoken = false
	m.pendingResetAt = time.Time{}
	m.sess.History = nil
	m.sess.EmptyWindows = 0

	v := &ch.Verses[verseNumber-1]
	slog.Info("session jump", "session", m.sess.ID, "chapter", chapterID, "verse", verseNumber)
	m.lock(&locate.Location{
		ChapterID:   chapterID,
		ChapterName: ch.Name,
		VerseNumber: verseNumber,
		Translation: v.Translation,
	})
	return nil
}

// Tick applies the silence and deferred-reset deadlines. [Machine.Run]
// calls it periodically; tests call it directly with a fake clock.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recovered()

	if m.sess.State == StateIdle {
		return
	}
	now := m.now()

	if !m.pendingResetAt.IsZero() && !now.Before(m.pendingResetAt) {
		m.reset("recitation complete", false)
		return
	}

	idle := now.Sub(m.sess.LastTranscriptAt)
	switch {
	case idle >= m.tuning.NoTranscriptTimeout():
		slog.Warn("session watchdog: no transcript", "session", m.sess.ID, "idle", idle)
		m.reset("no transcript", true)
	case m.sess.State == StateSearching && idle >= m.tuning.SilenceTimeout():
		m.reset("silence", true)
	case m.sess.State == StateTracking && !m.sess.AutoRecite && idle >= m.tuning.SilenceTimeout():
		m.reset("silence", true)
	}
}

// search attempts to identify the chapter from the accumulated transcript,
// falling back to the whole-corpus locator once the opening search is
// exhausted.
func (m *Machine) search() {
	loc, exhausted := m.chapters.Locate(m.accumulated)
	if loc != nil {
		if loc.Formula {
			if !m.formulaSpoken {
				m.formulaSpoken = true
				m.notify(Notification{Kind: NoticeFormula, Translation: loc.Translation})
				m.speak(loc.Translation)
				// Drop the formula words so the following words can
				// disambiguate the chapter on their own.
				m.accumulated = ""
			}
			return
		}
		m.lock(loc)
		return
	}
	if !exhausted {
		return
	}
	if fallback := m.wholeCorpus.Locate(m.accumulated); fallback != nil {
		m.lock(fallback)
	}
}

// lock transitions into tracking at the located chapter and verse. The
// locating verse itself counts as recited.
func (m *Machine) lock(loc *locate.Location) {
	ch, err := m.corpus.Chapter(loc.ChapterID)
	if err != nil {
		return
	}
	m.chapter = ch
	m.sess.LockedChapterID = ch.ID
	m.sess.ChapterName = ch.Name
	m.sess.CurrentVerseIndex = loc.VerseNumber - 1
	m.sess.EmptyWindows = 0
	m.processed = make(map[int]bool)
	m.unmatched = ""

	m.setState(StateTracking)
	slog.Info("chapter locked",
		"session", m.sess.ID,
		"chapter", ch.ID,
		"name", ch.Name,
		"verse", loc.VerseNumber,
	)
	m.notify(Notification{
		Kind:        NoticeChapterLocated,
		ChapterID:   ch.ID,
		ChapterName: ch.Name,
		Translation: loc.Translation,
	})

	m.announce(&ch.Verses[loc.VerseNumber-1], false)
	if m.sess.State != StateTracking {
		// Locked directly onto the final verse.
		return
	}
	m.rebuildWindow()
}

// track matches one cleaned transcript burst against the rolling window.
func (m *Machine) track(burst string) {
	last := m.chapter.LastVerse()

	// A burst that closely resembles the final verse ends the chapter even
	// when the window has rolled elsewhere.
	if !m.processed[last.Number] &&
		match.Similarity(burst, last.Normalized) >= m.tuning.EndOfChapterSimilarity {
		m.announce(&m.chapter.Verses[last.Number-1], true)
		return
	}

	words := strings.Fields(burst)
	hits := match.Scan(words, m.window, m.tuning.ScanThreshold)
	if len(hits) == 0 {
		if m.unmatched == "" {
			m.unmatched = burst
		} else {
			m.unmatched += " " + burst
		}
		m.sess.EmptyWindows++
		if m.sess.EmptyWindows >= m.tuning.EmptyWindowLimit {
			m.interrupt()
		}
		return
	}
	m.sess.EmptyWindows = 0
	m.unmatched = ""

	for _, hit := range hits {
		v := hit.Entry.Payload.(*corpus.Verse)
		if m.processed[v.Number] {
			continue
		}
		m.announce(v, true)
		if m.sess.State != StateTracking {
			return
		}
		m.rebuildWindow()
	}
}

// announce records a matched verse, speaks its translation, and (when
// advance is set) moves the verse cursor past it. The cursor only moves
// forward; re-matches of earlier verses never rewind it. Recognising the
// chapter's final verse completes the chapter.
func (m *Machine) announce(v *corpus.Verse, advance bool) {
	mv := MatchedVerse{
		ChapterID:   v.ChapterID,
		VerseNumber: v.Number,
		Arabic:      v.Arabic,
		Translation: v.Translation,
	}
	m.sess.History = append(m.sess.History, mv)
	m.processed[v.Number] = true
	if advance && v.Number > m.sess.CurrentVerseIndex {
		m.sess.CurrentVerseIndex = v.Number
	}
	slog.Debug("verse matched", "session", m.sess.ID, "chapter", v.ChapterID, "verse", v.Number)
	m.notify(Notification{Kind: NoticeVerseMatched, ChapterID: v.ChapterID, Verse: &mv})
	m.speak(v.Translation)

	if m.chapter != nil && v.Number == m.chapter.VerseCount() {
		m.endOfChapter()
	}
}

// handleClosingPhrases reacts to the spoken end-of-recitation formulas.
// It reports whether the burst was consumed.
func (m *Machine) handleClosingPhrases(cleaned string, now time.Time) bool {
	if strings.Contains(cleaned, closingPhrase) && !m.closingSpoken {
		m.closingSpoken = true
		m.notify(Notification{Kind: NoticeFormula, Translation: closingTranslation, Reason: "closing"})
		m.speak(closingTranslation)
		m.pendingResetAt = now.Add(m.tuning.ClosingFormulaDelay())
		return true
	}
	if m.chapter != nil && m.chapter.ID == 1 && strings.Contains(cleaned, fatihaEndPhrase) {
		last := m.chapter.LastVerse()
		if !m.processed[last.Number] {
			m.announce(&m.chapter.Verses[last.Number-1], true)
		} else {
			m.endOfChapter()
		}
		return true
	}
	return false
}

// endOfChapter announces completion and resets the session.
func (m *Machine) endOfChapter() {
	ch := m.chapter
	m.setState(StateEndOfChapter)
	slog.Info("chapter complete", "session", m.sess.ID, "chapter", ch.ID, "name", ch.Name)
	m.notify(Notification{
		Kind:        NoticeEndOfChapter,
		ChapterID:   ch.ID,
		ChapterName: ch.Name,
	})
	m.reset("end of chapter", false)
}

// interrupt handles a lost alignment: too many consecutive transcript
// bursts failed to match the rolling window. The stale transcript gets one
// whole-corpus re-search, in case the reciter moved to another chapter.
func (m *Machine) interrupt() {
	stale := m.unmatched
	id := m.sess.ID
	startedAt := m.sess.StartedAt

	m.setState(StateInterrupted)
	slog.Warn("tracking lost", "session", id, "chapter", m.sess.LockedChapterID)
	m.reset("window exhausted", true)

	if utf8.RuneCountInString(stale) <= staleRetryMinRunes {
		return
	}
	loc := m.wholeCorpus.Locate(stale)
	if loc == nil {
		return
	}

	// The reciter is somewhere else in the corpus: re-lock there under the
	// same session activation.
	m.sess.ID = id
	m.sess.StartedAt = startedAt
	m.sess.LastTranscriptAt = m.now()
	m.setState(StateSearching)
	m.lock(loc)
}

// adaptRate recomputes the playback rate from the observed recitation pace.
func (m *Machine) adaptRate(now time.Time) {
	if !m.sess.AutoRecite {
		return
	}
	words := arabic.CountWords(m.accumulated)
	rate, ok := ComputeRate(words, now.Sub(m.sess.StartedAt), m.tuning.RateBands)
	if !ok || rate == m.sess.PlaybackRate {
		return
	}
	m.sess.PlaybackRate = rate
	m.notify(Notification{Kind: NoticeRateChanged, Rate: rate})
}

// rebuildWindow reindexes the next verses after the current cursor.
func (m *Machine) rebuildWindow() {
	idx := m.sess.CurrentVerseIndex
	end := idx + m.tuning.RollingWindowSize
	if end > m.chapter.VerseCount() {
		end = m.chapter.VerseCount()
	}
	if idx >= end {
		m.window = match.NewIndex(nil, m.tuning.WindowThreshold)
		return
	}
	entries := make([]match.Entry, 0, end-idx)
	for i := idx; i < end; i++ {
		v := &m.chapter.Verses[i]
		entries = append(entries, match.Entry{ID: v.Number, Text: v.Normalized, Payload: v})
	}
	m.window = match.NewIndex(entries, m.tuning.WindowThreshold)
}

// speak plays a translation, blocking until done. Muting and playback rate
// are sampled at call time.
func (m *Machine) speak(text string) {
	err := m.speaker.Speak(context.Background(), text, speech.Options{
		Muted:        m.sess.Muted,
		Rate:         m.sess.PlaybackRate,
		LanguageCode: m.langCode,
	})
	if err != nil && !errors.Is(err, speech.ErrCancelled) && !errors.Is(err, context.Canceled) {
		slog.Warn("speech output failed", "session", m.sess.ID, "err", err)
	}
}

// reset returns the session to idle, clearing the transcript, history, and
// matching state. User toggles (mute, auto-recite) survive.
func (m *Machine) reset(reason string, cancelSpeech bool) {
	if cancelSpeech {
		m.speaker.CancelAll()
	}
	m.accumulated = ""
	m.unmatched = ""
	m.chapter = nil
	m.window = nil
	m.processed = nil
	m.formulaSpoken = false
	m.closingSpoken = false
	m.pendingResetAt = time.Time{}

	m.sess = Session{
		State:        m.sess.State,
		StateName:    m.sess.StateName,
		Muted:        m.sess.Muted,
		AutoRecite:   m.sess.AutoRecite,
		PlaybackRate: 1.0,
	}
	m.notify(Notification{Kind: NoticeReset, Reason: reason})
	m.setState(StateIdle)
}

// setState transitions the lifecycle state, notifying on change.
func (m *Machine) setState(s State) {
	if m.sess.State == s {
		return
	}
	m.sess.State = s
	m.sess.StateName = s.String()
	m.notify(Notification{Kind: NoticeState, State: s.String()})
}

func (m *Machine) notify(n Notification) {
	if m.sink != nil {
		m.sink(n)
	}
}

// recovered turns a panic inside an event handler into a full session
// reset, so one bad transcript cannot wedge the machine.
func (m *Machine) recovered() {
	if r := recover(); r != nil {
		slog.Error("session handler panicked; resetting", "session", m.sess.ID, "panic", r)
		m.reset("internal error", true)
	}
}
