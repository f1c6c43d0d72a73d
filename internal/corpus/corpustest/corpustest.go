// Package corpustest provides a small in-memory corpus fixture shared by
// tests across the matching and session packages. The Arabic text is the
// real normalised corpus text for the chapters included, so matcher
// behaviour in tests mirrors production.
package corpustest

import (
	"fmt"

	"github.com/goquran/tilawa/internal/corpus"
)

// verse builds a corpus.Verse with pre-normalised text.
func verse(chapterID, number int, text, translation string) corpus.Verse {
	return corpus.Verse{
		ChapterID:   chapterID,
		Number:      number,
		Arabic:      text,
		Normalized:  text,
		Translation: translation,
	}
}

// Small returns a corpus fixture containing chapters 1, 2, 109, 112, 113,
// and 114. Chapter 2 carries real text for verses 255 and 256 and synthetic
// filler elsewhere so jump-to-verse scenarios can target 2:255.
func Small() *corpus.Corpus {
	fatiha := corpus.Chapter{
		ID:   1,
		Name: "الفاتحة", TranslatedName: "The Opener",
		Verses: []corpus.Verse{
			verse(1, 1, "الحمد لله رب العالمين", "All praise is due to Allah, Lord of the worlds."),
			verse(1, 2, "الرحمن الرحيم", "The Entirely Merciful, the Especially Merciful."),
			verse(1, 3, "مالك يوم الدين", "Sovereign of the Day of Recompense."),
			verse(1, 4, "اياك نعبد واياك نستعين", "It is You we worship and You we ask for help."),
			verse(1, 5, "اهدنا الصراط المستقيم", "Guide us to the straight path."),
			verse(1, 6, "صراط الذين انعمت عليهم غير المغضوب عليهم ولا الضالين", "The path of those upon whom You have bestowed favor, not of those who have earned anger or of those who are astray."),
		},
	}

	baqara := corpus.Chapter{
		ID:   2,
		Name: "البقرة", TranslatedName: "The Cow",
	}
	for i := 1; i <= 286; i++ {
		switch i {
		case 255:
			baqara.Verses = append(baqara.Verses, verse(2, 255,
				"الله لا اله الا هو الحي القيوم لا تاخذه سنه ولا نوم",
				"Allah - there is no deity except Him, the Ever-Living, the Sustainer of existence."))
		case 256:
			baqara.Verses = append(baqara.Verses, verse(2, 256,
				"لا اكراه في الدين قد تبين الرشد من الغي",
				"There shall be no compulsion in the religion."))
		default:
			baqara.Verses = append(baqara.Verses, verse(2, i,
				fmt.Sprintf("نص تجريبي للايه رقم %d من سوره البقره", i),
				fmt.Sprintf("Placeholder translation for verse %d.", i)))
		}
	}

	kafirun := corpus.Chapter{
		ID:   109,
		Name: "الكافرون", TranslatedName: "The Disbelievers",
		Verses: []corpus.Verse{
			verse(109, 1, "قل يا ايها الكافرون", "Say: O disbelievers."),
			verse(109, 2, "لا اعبد ما تعبدون", "I do not worship what you worship."),
			verse(109, 3, "ولا انتم عابدون ما اعبد", "Nor are you worshippers of what I worship."),
		},
	}

	ikhlas := corpus.Chapter{
		ID:   112,
		Name: "الإخلاص", TranslatedName: "Sincerity",
		Verses: []corpus.Verse{
			verse(112, 1, "قل هو الله احد", "Say: He is Allah, who is One."),
			verse(112, 2, "الله الصمد", "Allah, the Eternal Refuge."),
			verse(112, 3, "لم يلد ولم يولد", "He neither begets nor is born."),
			verse(112, 4, "ولم يكن له كفوا احد", "Nor is there to Him any equivalent."),
		},
	}

	falaq := corpus.Chapter{
		ID:   113,
		Name: "الفلق", TranslatedName: "The Daybreak",
		Verses: []corpus.Verse{
			verse(113, 1, "قل اعوذ برب الفلق", "Say: I seek refuge in the Lord of daybreak."),
			verse(113, 2, "من شر ما خلق", "From the evil of that which He created."),
			verse(113, 3, "ومن شر غاسق اذا وقب", "And from the evil of darkness when it settles."),
		},
	}

	nas := corpus.Chapter{
		ID:   114,
		Name: "الناس", TranslatedName: "Mankind",
		Verses: []corpus.Verse{
			verse(114, 1, "قل اعوذ برب الناس", "Say: I seek refuge in the Lord of mankind."),
			verse(114, 2, "ملك الناس", "The Sovereign of mankind."),
			verse(114, 3, "اله الناس", "The God of mankind."),
		},
	}

	return corpus.New("english", []corpus.Chapter{fatiha, baqara, kafirun, ikhlas, falaq, nas})
}
