package session_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goquran/tilawa/internal/config"
	"github.com/goquran/tilawa/internal/corpus/corpustest"
	"github.com/goquran/tilawa/internal/session"
	"github.com/goquran/tilawa/internal/speech/mock"
)

// fakeClock is a manually advanced clock driving the machine's deadlines.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder collects session notifications in arrival order.
type recorder struct {
	notices []session.Notification
}

func (r *recorder) sink(n session.Notification) {
	r.notices = append(r.notices, n)
}

func (r *recorder) kinds() []session.NoticeKind {
	out := make([]session.NoticeKind, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Kind
	}
	return out
}

func (r *recorder) byKind(kind session.NoticeKind) []session.Notification {
	var out []session.Notification
	for _, n := range r.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func newMachine(t *testing.T) (*session.Machine, *mock.Speaker, *recorder, *fakeClock) {
	t.Helper()
	speaker := &mock.Speaker{}
	rec := &recorder{}
	clock := newFakeClock()
	m := session.New(config.DefaultTuning(), speaker,
		session.WithSink(rec.sink),
		session.WithClock(clock.Now),
	)
	m.SetCorpus(corpustest.Small())
	return m, speaker, rec, clock
}

func start(t *testing.T, m *session.Machine) {
	t.Helper()
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestMachine_ShortChapterEndToEnd(t *testing.T) {
	t.Parallel()
	m, speaker, rec, _ := newMachine(t)
	start(t, m)

	// The vocalized first verse of chapter 112 locks the chapter.
	m.Transcript("قُلْ هُوَ اللَّهُ أَحَدٌ")

	snap := m.Snapshot()
	if snap.State != session.StateTracking {
		t.Fatalf("state after opening verse: got %v, want tracking", snap.State)
	}
	if snap.LockedChapterID != 112 {
		t.Fatalf("locked chapter: got %d, want 112", snap.LockedChapterID)
	}
	if snap.CurrentVerseIndex != 0 {
		t.Errorf("verse index after lock: got %d, want 0", snap.CurrentVerseIndex)
	}

	// Verse 2 advances the cursor past it.
	m.Transcript("الله الصمد")
	if snap = m.Snapshot(); snap.CurrentVerseIndex != 2 {
		t.Errorf("verse index after verse 2: got %d, want 2", snap.CurrentVerseIndex)
	}

	// Verses 3 and 4 recited in a single breath; verse 4 ends the chapter.
	m.Transcript("لم يلد ولم يولد ولم يكن له كفوا احد")

	if snap = m.Snapshot(); snap.State != session.StateIdle {
		t.Errorf("state after final verse: got %v, want idle", snap.State)
	}
	if len(snap.History) != 0 {
		t.Errorf("history should be cleared by the reset, got %d entries", len(snap.History))
	}

	matched := rec.byKind(session.NoticeVerseMatched)
	if len(matched) != 4 {
		t.Fatalf("verse notifications: got %d, want 4 (kinds: %v)", len(matched), rec.kinds())
	}
	for i, n := range matched {
		if n.Verse.VerseNumber != i+1 {
			t.Errorf("verse notification %d: got verse %d, want %d", i, n.Verse.VerseNumber, i+1)
		}
	}
	if got := rec.byKind(session.NoticeEndOfChapter); len(got) != 1 || got[0].ChapterID != 112 {
		t.Errorf("expected one end-of-chapter notice for 112, got %+v", got)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "end of chapter" {
		t.Errorf("expected one reset with reason 'end of chapter', got %+v", got)
	}

	want := []string{
		"Say: He is Allah, who is One.",
		"Allah, the Eternal Refuge.",
		"He neither begets nor is born.",
		"Nor is there to Him any equivalent.",
	}
	texts := speaker.Texts()
	if len(texts) != len(want) {
		t.Fatalf("spoken texts: got %d, want %d", len(texts), len(want))
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("spoken[%d]: got %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestMachine_CursorNeverRewinds(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)
	start(t, m)

	m.Transcript("قل هو الله احد")
	m.Transcript("لم يلد ولم يولد")
	if idx := m.Snapshot().CurrentVerseIndex; idx != 3 {
		t.Fatalf("verse index: got %d, want 3", idx)
	}

	// Repeating an earlier verse must not move the cursor backwards.
	m.Transcript("الله الصمد")
	if idx := m.Snapshot().CurrentVerseIndex; idx != 3 {
		t.Errorf("verse index after repeat: got %d, want 3", idx)
	}
}

func TestMachine_OpeningFormulaAnnouncedOnce(t *testing.T) {
	t.Parallel()
	m, speaker, rec, _ := newMachine(t)
	start(t, m)

	m.Transcript("بِسْمِ اللَّهِ الرَّحْمَٰنِ الرَّحِيمِ")
	m.Transcript("بسم الله الرحمن الرحيم")

	if got := rec.byKind(session.NoticeFormula); len(got) != 1 {
		t.Fatalf("formula notices: got %d, want 1", len(got))
	}
	if n := len(speaker.Texts()); n != 1 {
		t.Errorf("formula should be spoken once, got %d utterances", n)
	}
	if state := m.Snapshot().State; state != session.StateSearching {
		t.Errorf("state after formula: got %v, want searching", state)
	}
}

func TestMachine_WholeCorpusFallback(t *testing.T) {
	t.Parallel()
	m, _, rec, _ := newMachine(t)
	start(t, m)

	// Recitation starting mid-chapter: no opening phrase matches, so the
	// fallback search should find 2:255.
	m.Transcript("الله لا اله الا هو الحي القيوم لا تاخذه سنه ولا نوم")

	snap := m.Snapshot()
	if snap.State != session.StateTracking {
		t.Fatalf("state: got %v, want tracking (kinds: %v)", snap.State, rec.kinds())
	}
	if snap.LockedChapterID != 2 {
		t.Errorf("locked chapter: got %d, want 2", snap.LockedChapterID)
	}
	if snap.CurrentVerseIndex != 254 {
		t.Errorf("verse index: got %d, want 254", snap.CurrentVerseIndex)
	}
	located := rec.byKind(session.NoticeChapterLocated)
	if len(located) != 1 || located[0].ChapterID != 2 {
		t.Errorf("expected chapter-located notice for 2, got %+v", located)
	}
}

func TestMachine_JumpToVerse(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)
	start(t, m)

	if err := m.JumpToVerse(2, 255); err != nil {
		t.Fatalf("JumpToVerse: %v", err)
	}

	snap := m.Snapshot()
	if snap.State != session.StateTracking || snap.LockedChapterID != 2 {
		t.Fatalf("after jump: state=%v chapter=%d, want tracking/2", snap.State, snap.LockedChapterID)
	}
	if snap.CurrentVerseIndex != 254 {
		t.Errorf("verse index after jump: got %d, want 254", snap.CurrentVerseIndex)
	}

	// The next verse recited from the jump target advances tracking.
	m.Transcript("لا اكراه في الدين قد تبين الرشد من الغي")

	snap = m.Snapshot()
	if snap.CurrentVerseIndex != 256 {
		t.Errorf("verse index after verse 256: got %d, want 256", snap.CurrentVerseIndex)
	}
	if n := len(snap.History); n != 2 {
		t.Fatalf("history length: got %d, want 2", n)
	}
	if snap.History[1].VerseNumber != 256 {
		t.Errorf("last history entry: got verse %d, want 256", snap.History[1].VerseNumber)
	}
}

func TestMachine_JumpValidation(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)
	start(t, m)
	m.Transcript("قل هو الله احد")
	before := m.Snapshot()

	tests := []struct {
		name    string
		chapter int
		verse   int
		wantErr error
	}{
		{"chapter above range", 115, 1, session.ErrUnknownChapter},
		{"chapter zero", 0, 1, session.ErrUnknownChapter},
		{"verse above count", 112, 9, session.ErrVerseOutOfRange},
		{"verse zero", 112, 0, session.ErrVerseOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := m.JumpToVerse(tc.chapter, tc.verse)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Failed jumps must leave the session untouched.
	after := m.Snapshot()
	if after.LockedChapterID != before.LockedChapterID ||
		after.CurrentVerseIndex != before.CurrentVerseIndex ||
		len(after.History) != len(before.History) {
		t.Errorf("session mutated by invalid jump: before=%+v after=%+v", before, after)
	}
}

func TestMachine_JumpRequiresActiveSession(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)

	if err := m.JumpToVerse(112, 1); !errors.Is(err, session.ErrNotStarted) {
		t.Errorf("jump while idle: got %v, want ErrNotStarted", err)
	}
}

func TestMachine_StartWithoutCorpus(t *testing.T) {
	t.Parallel()
	m := session.New(config.DefaultTuning(), &mock.Speaker{})

	if err := m.Start(); !errors.Is(err, session.ErrCorpusNotReady) {
		t.Errorf("Start: got %v, want ErrCorpusNotReady", err)
	}
	if err := m.JumpToVerse(112, 1); !errors.Is(err, session.ErrCorpusNotReady) {
		t.Errorf("JumpToVerse: got %v, want ErrCorpusNotReady", err)
	}
}

func TestMachine_EmptyWindowsRelockElsewhere(t *testing.T) {
	t.Parallel()
	m, _, rec, _ := newMachine(t)
	start(t, m)

	// Track deep inside chapter 2 where the window holds filler verses.
	if err := m.JumpToVerse(2, 10); err != nil {
		t.Fatalf("JumpToVerse: %v", err)
	}

	// The reciter has actually moved to chapter 114. Four consecutive
	// unmatched bursts exhaust the window; the stale text re-locks there.
	for i := 0; i < 4; i++ {
		m.Transcript("قل اعوذ برب الناس")
	}

	snap := m.Snapshot()
	if snap.State != session.StateTracking {
		t.Fatalf("state: got %v, want tracking (kinds: %v)", snap.State, rec.kinds())
	}
	if snap.LockedChapterID != 114 {
		t.Errorf("re-locked chapter: got %d, want 114", snap.LockedChapterID)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "window exhausted" {
		t.Errorf("expected reset with reason 'window exhausted', got %+v", got)
	}
}

func TestMachine_EmptyWindowsResetToIdle(t *testing.T) {
	t.Parallel()
	m, _, rec, _ := newMachine(t)
	start(t, m)

	if err := m.JumpToVerse(2, 10); err != nil {
		t.Fatalf("JumpToVerse: %v", err)
	}

	// Short garbage bursts: too little stale text for a re-search.
	for i := 0; i < 4; i++ {
		m.Transcript("ذهب صباحا")
	}

	snap := m.Snapshot()
	if snap.State != session.StateIdle {
		t.Fatalf("state: got %v, want idle (kinds: %v)", snap.State, rec.kinds())
	}
	if snap.LockedChapterID != 0 || len(snap.History) != 0 {
		t.Errorf("session not fully reset: %+v", snap)
	}
}

func TestMachine_FewerUnmatchedBurstsKeepTracking(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)
	start(t, m)

	if err := m.JumpToVerse(2, 10); err != nil {
		t.Fatalf("JumpToVerse: %v", err)
	}
	for i := 0; i < 3; i++ {
		m.Transcript("ذهب صباحا")
	}

	if state := m.Snapshot().State; state != session.StateTracking {
		t.Errorf("three unmatched bursts should not interrupt, got state %v", state)
	}
}

func TestMachine_SilenceWhileSearching(t *testing.T) {
	t.Parallel()
	m, _, rec, clock := newMachine(t)
	start(t, m)

	clock.Advance(6400 * time.Millisecond)
	m.Tick()
	if state := m.Snapshot().State; state != session.StateSearching {
		t.Fatalf("state before timeout: got %v, want searching", state)
	}

	clock.Advance(200 * time.Millisecond)
	m.Tick()
	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state after silence timeout: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "silence" {
		t.Errorf("expected reset with reason 'silence', got %+v", got)
	}
}

func TestMachine_SilenceToleratedWithAutoRecite(t *testing.T) {
	t.Parallel()
	m, _, rec, clock := newMachine(t)
	start(t, m)
	m.Transcript("قل هو الله احد")

	// Auto-recite defaults to on: recitation-gap silence is tolerated.
	clock.Advance(7 * time.Second)
	m.Tick()
	if state := m.Snapshot().State; state != session.StateTracking {
		t.Fatalf("state after tolerated silence: got %v, want tracking", state)
	}

	// The global no-transcript watchdog still applies.
	clock.Advance(2500 * time.Millisecond)
	m.Tick()
	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state after watchdog: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "no transcript" {
		t.Errorf("expected reset with reason 'no transcript', got %+v", got)
	}
}

func TestMachine_SilenceResetsWithoutAutoRecite(t *testing.T) {
	t.Parallel()
	m, _, rec, clock := newMachine(t)
	start(t, m)
	m.SetAutoRecite(false)
	m.Transcript("قل هو الله احد")

	clock.Advance(6600 * time.Millisecond)
	m.Tick()

	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state after silence: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "silence" {
		t.Errorf("expected reset with reason 'silence', got %+v", got)
	}
}

func TestMachine_ClosingFormula(t *testing.T) {
	t.Parallel()
	m, speaker, rec, clock := newMachine(t)
	start(t, m)
	m.Transcript("قل هو الله احد")

	m.Transcript("اللَّهُ أَكْبَر")

	texts := speaker.Texts()
	if len(texts) == 0 || texts[len(texts)-1] != "Allah is the Greatest" {
		t.Fatalf("closing formula not spoken, got %v", texts)
	}
	if state := m.Snapshot().State; state != session.StateTracking {
		t.Fatalf("state right after closing formula: got %v, want tracking", state)
	}

	// The reset is deferred so the announcement can be heard.
	clock.Advance(time.Second)
	m.Tick()
	if state := m.Snapshot().State; state != session.StateTracking {
		t.Fatalf("reset fired too early")
	}
	clock.Advance(1100 * time.Millisecond)
	m.Tick()
	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state after deferred reset: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "recitation complete" {
		t.Errorf("expected reset with reason 'recitation complete', got %+v", got)
	}
}

func TestMachine_FatihaClosingPhrase(t *testing.T) {
	t.Parallel()
	m, _, rec, _ := newMachine(t)
	start(t, m)

	m.Transcript("الحمد لله رب العالمين")
	if snap := m.Snapshot(); snap.LockedChapterID != 1 {
		t.Fatalf("locked chapter: got %d, want 1", snap.LockedChapterID)
	}

	// Hearing the final words of the chapter ends it immediately.
	m.Transcript("ولا الضالين")

	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeEndOfChapter); len(got) != 1 || got[0].ChapterID != 1 {
		t.Errorf("expected end-of-chapter notice for 1, got %+v", got)
	}
}

func TestMachine_MutePassedToSpeaker(t *testing.T) {
	t.Parallel()
	m, speaker, _, _ := newMachine(t)
	start(t, m)
	m.SetMuted(true)

	m.Transcript("قل هو الله احد")

	last := speaker.Last()
	if last == nil {
		t.Fatal("no utterance recorded")
	}
	if !last.Opts.Muted {
		t.Error("utterance should carry the muted flag")
	}
	if last.Opts.LanguageCode != "en-US" {
		t.Errorf("language code: got %q, want en-US", last.Opts.LanguageCode)
	}
}

func TestMachine_MuteSurvivesReset(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)
	start(t, m)
	m.SetMuted(true)
	m.Stop()

	if snap := m.Snapshot(); !snap.Muted {
		t.Error("mute toggle should survive reset")
	}
}

func TestMachine_SpeedAdapter(t *testing.T) {
	t.Parallel()
	m, speaker, rec, clock := newMachine(t)
	start(t, m)

	// Four words over a minute is a very slow pace.
	clock.Advance(time.Minute)
	m.Transcript("قل هو الله احد")

	snap := m.Snapshot()
	if snap.PlaybackRate != 0.85 {
		t.Errorf("playback rate: got %v, want 0.85", snap.PlaybackRate)
	}
	if got := rec.byKind(session.NoticeRateChanged); len(got) != 1 || got[0].Rate != 0.85 {
		t.Errorf("expected rate-changed notice 0.85, got %+v", got)
	}
	if last := speaker.Last(); last == nil || last.Opts.Rate != 0.85 {
		t.Errorf("utterance should carry the adapted rate, got %+v", last)
	}
}

func TestMachine_SpeedAdapterDisabledWithAutoRecite(t *testing.T) {
	t.Parallel()
	m, _, rec, clock := newMachine(t)
	start(t, m)
	m.SetAutoRecite(false)

	clock.Advance(time.Minute)
	m.Transcript("قل هو الله احد")

	if snap := m.Snapshot(); snap.PlaybackRate != 1.0 {
		t.Errorf("playback rate: got %v, want 1.0", snap.PlaybackRate)
	}
	if got := rec.byKind(session.NoticeRateChanged); len(got) != 0 {
		t.Errorf("expected no rate notices, got %+v", got)
	}
}

func TestMachine_TranscriptIgnoredWhileIdle(t *testing.T) {
	t.Parallel()
	m, speaker, rec, _ := newMachine(t)

	m.Transcript("قل هو الله احد")

	if n := len(rec.notices); n != 0 {
		t.Errorf("idle transcript produced %d notifications", n)
	}
	if n := len(speaker.Texts()); n != 0 {
		t.Errorf("idle transcript produced %d utterances", n)
	}
}

func TestMachine_NonArabicIgnored(t *testing.T) {
	t.Parallel()
	m, _, _, clock := newMachine(t)
	start(t, m)

	before := m.Snapshot().LastTranscriptAt
	clock.Advance(time.Second)
	m.Transcript("hello world 123")

	if got := m.Snapshot().LastTranscriptAt; !got.Equal(before) {
		t.Error("non-Arabic transcript should not count as activity")
	}
}

func TestMachine_StartAssignsFreshSessionID(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newMachine(t)

	start(t, m)
	first := m.Snapshot().ID
	if first == "" {
		t.Fatal("session id should not be empty")
	}
	start(t, m)
	if second := m.Snapshot().ID; second == first {
		t.Error("restart should assign a new session id")
	}
}

func TestMachine_StopCancelsSpeech(t *testing.T) {
	t.Parallel()
	m, speaker, _, _ := newMachine(t)
	start(t, m)
	m.Stop()

	if speaker.Cancelled == 0 {
		t.Error("Stop should cancel in-flight speech")
	}
	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state after Stop: got %v, want idle", state)
	}
}

func TestMachine_ReplacingCorpusResetsActiveSession(t *testing.T) {
	t.Parallel()
	m, _, rec, _ := newMachine(t)
	start(t, m)
	m.Transcript("قل هو الله احد")

	m.SetCorpus(corpustest.Small())

	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state after corpus swap: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeReset); len(got) != 1 || got[0].Reason != "corpus replaced" {
		t.Errorf("expected reset with reason 'corpus replaced', got %+v", got)
	}
}

func TestMachine_JumpToFinalVerseCompletesChapter(t *testing.T) {
	t.Parallel()
	m, _, rec, _ := newMachine(t)
	start(t, m)

	if err := m.JumpToVerse(112, 4); err != nil {
		t.Fatalf("JumpToVerse: %v", err)
	}

	if state := m.Snapshot().State; state != session.StateIdle {
		t.Errorf("state: got %v, want idle", state)
	}
	if got := rec.byKind(session.NoticeEndOfChapter); len(got) != 1 {
		t.Errorf("expected one end-of-chapter notice, got %+v", got)
	}
}
