// Package session implements the recitation session: the state machine
// that accumulates live transcript, identifies the recited chapter, tracks
// verse-by-verse progress through it, and recovers from silence, drift,
// and interruptions.
package session

import "time"

// State is the lifecycle phase of a recitation session.
type State int

const (
	// StateIdle means no session is active; transcript is ignored.
	StateIdle State = iota

	// StateSearching means transcript is accumulating and the engine is
	// trying to identify the recited chapter.
	StateSearching

	// StateTracking means a chapter is locked and incoming transcript is
	// matched against the rolling verse window.
	StateTracking

	// StateEndOfChapter is the transient phase after the chapter's last
	// verse was recognised, before the session resets.
	StateEndOfChapter

	// StateInterrupted is the transient phase entered when tracking lost
	// alignment, before the session resets or re-locks elsewhere.
	StateInterrupted
)

// String returns the lowercase state name used in logs and wire payloads.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateTracking:
		return "tracking"
	case StateEndOfChapter:
		return "end_of_chapter"
	case StateInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// MatchedVerse is one recognised verse in the session's history.
type MatchedVerse struct {
	ChapterID   int    `json:"chapterId"`
	VerseNumber int    `json:"verseNumber"`
	Arabic      string `json:"arabic"`
	Translation string `json:"translation"`
}

// NoticeKind discriminates the notifications a session emits.
type NoticeKind string

const (
	// NoticeState reports a lifecycle transition.
	NoticeState NoticeKind = "state"

	// NoticeFormula reports recognition of the shared opening formula
	// before any chapter could be locked.
	NoticeFormula NoticeKind = "formula"

	// NoticeChapterLocated reports a successful chapter lock.
	NoticeChapterLocated NoticeKind = "chapter_located"

	// NoticeVerseMatched reports a verse appended to the history.
	NoticeVerseMatched NoticeKind = "verse_matched"

	// NoticeEndOfChapter reports that the chapter's last verse (or the
	// closing formula) was recognised.
	NoticeEndOfChapter NoticeKind = "end_of_chapter"

	// NoticeRateChanged reports a playback rate adjustment by the speed
	// adapter.
	NoticeRateChanged NoticeKind = "rate_changed"

	// NoticeReset reports a session reset and why it happened.
	NoticeReset NoticeKind = "reset"
)

// Notification is the event payload pushed to session observers (the live
// websocket, metrics, logs).
type Notification struct {
	Kind        NoticeKind    `json:"kind"`
	State       string        `json:"state,omitempty"`
	ChapterID   int           `json:"chapterId,omitempty"`
	ChapterName string        `json:"chapterName,omitempty"`
	Translation string        `json:"translation,omitempty"`
	Verse       *MatchedVerse `json:"verse,omitempty"`
	Rate        float64       `json:"rate,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// Sink receives session notifications. It is called synchronously from the
// session's critical section and must not call back into the session.
type Sink func(Notification)

// Session is a point-in-time snapshot of a recitation session's state,
// safe to serialise and hand to transports.
type Session struct {
	ID                string         `json:"id"`
	State             State          `json:"-"`
	StateName         string         `json:"state"`
	LockedChapterID   int            `json:"lockedChapterId,omitempty"`
	ChapterName       string         `json:"chapterName,omitempty"`
	CurrentVerseIndex int            `json:"currentVerseIndex"`
	History           []MatchedVerse `json:"history,omitempty"`
	Muted             bool           `json:"muted"`
	AutoRecite        bool           `json:"autoRecite"`
	PlaybackRate      float64        `json:"playbackRate"`
	EmptyWindows      int            `json:"-"`
	StartedAt         time.Time      `json:"startedAt,omitzero"`
	LastTranscriptAt  time.Time      `json:"-"`
}
