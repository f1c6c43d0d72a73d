package locate_test

import (
	"testing"

	"github.com/goquran/tilawa/internal/corpus/corpustest"
	"github.com/goquran/tilawa/internal/locate"
)

func TestChapterLocator_LocksUniqueOpening(t *testing.T) {
	t.Parallel()

	l := locate.NewChapterLocator(corpustest.Small(), 0.2)

	// The full first verse of chapter 112, as a recogniser would deliver it.
	loc, exhausted := l.Locate("قُلْ هُوَ اللَّهُ أَحَدٌ")
	if exhausted {
		t.Fatal("Locate: exhausted=true, want false")
	}
	if loc == nil {
		t.Fatal("Locate: nil location, want chapter 112")
	}
	if loc.ChapterID != 112 {
		t.Errorf("ChapterID = %d, want 112", loc.ChapterID)
	}
	if loc.VerseNumber != 1 {
		t.Errorf("VerseNumber = %d, want 1", loc.VerseNumber)
	}
	if loc.Formula {
		t.Error("Formula = true, want false")
	}
}

func TestChapterLocator_Deterministic(t *testing.T) {
	t.Parallel()

	l := locate.NewChapterLocator(corpustest.Small(), 0.2)

	// Same transcript must lock the same chapter every time.
	for i := 0; i < 5; i++ {
		loc, _ := l.Locate("قل هو الله احد")
		if loc == nil || loc.ChapterID != 112 {
			t.Fatalf("iteration %d: got %+v, want chapter 112", i, loc)
		}
	}
}

func TestChapterLocator_RequiresThreeWords(t *testing.T) {
	t.Parallel()

	l := locate.NewChapterLocator(corpustest.Small(), 0.2)

	loc, exhausted := l.Locate("قل هو")
	if loc != nil || exhausted {
		t.Errorf("Locate(two words) = (%+v, %v), want (nil, false)", loc, exhausted)
	}
}

func TestChapterLocator_FormulaSentinel(t *testing.T) {
	t.Parallel()

	l := locate.NewChapterLocator(corpustest.Small(), 0.2)

	loc, exhausted := l.Locate("بسم الله الرحمن الرحيم")
	if exhausted {
		t.Fatal("exhausted=true, want false")
	}
	if loc == nil {
		t.Fatal("nil location, want formula sentinel")
	}
	if !loc.Formula {
		t.Error("Formula = false, want true")
	}
	if loc.ChapterID != 0 {
		t.Errorf("ChapterID = %d, want 0", loc.ChapterID)
	}
	if loc.Translation == "" {
		t.Error("formula translation is empty")
	}
}

func TestChapterLocator_ExhaustedOnForeignText(t *testing.T) {
	t.Parallel()

	l := locate.NewChapterLocator(corpustest.Small(), 0.2)

	// Mid-chapter text matches no opening; the locator must signal
	// exhaustion so the caller can fall back to the whole-corpus search.
	loc, exhausted := l.Locate("الله لا اله الا هو الحي القيوم")
	if loc != nil {
		t.Fatalf("Locate = %+v, want nil", loc)
	}
	if !exhausted {
		t.Error("exhausted = false, want true")
	}
}

func TestChapterLocator_IgnoresNonArabic(t *testing.T) {
	t.Parallel()

	l := locate.NewChapterLocator(corpustest.Small(), 0.2)

	loc, _ := l.Locate("okay so قل هو الله احد right")
	if loc == nil || loc.ChapterID != 112 {
		t.Fatalf("Locate with noise = %+v, want chapter 112", loc)
	}
}

func TestCorpusLocator_FindsMidChapterVerse(t *testing.T) {
	t.Parallel()

	l := locate.NewCorpusLocator(corpustest.Small(), 0.3)

	loc := l.Locate("الله لا اله الا هو الحي القيوم")
	if loc == nil {
		t.Fatal("Locate: nil, want 2:255")
	}
	if loc.ChapterID != 2 || loc.VerseNumber != 255 {
		t.Errorf("located %d:%d, want 2:255", loc.ChapterID, loc.VerseNumber)
	}
}

func TestCorpusLocator_NoMatchIsSilent(t *testing.T) {
	t.Parallel()

	l := locate.NewCorpusLocator(corpustest.Small(), 0.3)

	if loc := l.Locate("كلمات عشواييه غير موجوده اطلاقا هنا"); loc != nil {
		t.Errorf("Locate(garbage) = %+v, want nil", loc)
	}
	if loc := l.Locate("no arabic at all"); loc != nil {
		t.Errorf("Locate(non-arabic) = %+v, want nil", loc)
	}
}
