// Package arabic canonicalises Arabic text for diacritic-insensitive
// comparison.
//
// Recognised speech and the reference corpus disagree constantly on
// vocalisation: recognisers emit bare letters while the corpus text carries
// full tashkeel and Qur'anic annotation marks. [Normalize] projects both onto
// the same canonical form so downstream fuzzy matching only ever sees letter
// skeletons.
//
// The normalisation pipeline:
//
//  1. NFD decomposition, so precomposed hamza carriers (أ إ آ ؤ ئ) split into
//     a base letter plus a combining mark.
//  2. Removal of all combining marks (tashkeel, hamza marks, Qur'anic
//     annotation signs) and of tatweel plus the Arabic-specific format
//     characters used as verse-end ornaments.
//  3. Letter unification: alef wasla → alef, alef maksura → yaa,
//     taa marbuta → haa.
//  4. NFC recomposition and whitespace collapsing.
//
// All functions are pure and safe for concurrent use. Normalize is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
package arabic

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// droppedRunes holds the non-combining characters removed during
// normalisation: tatweel elongation plus the Qur'anic annotation range that
// survives NFD (verse signs, sajdah marks, small high letters).
var droppedRunes = runes.Predicate(func(r rune) bool {
	switch {
	case r == 'ـ': // tatweel
		return true
	case r >= 'ۖ' && r <= 'ۭ': // Qur'anic annotation signs
		return true
	case r >= '࣓' && r <= 'ࣿ': // extended Arabic small marks
		return true
	}
	return false
})

// unifyLetters maps letter variants that recognisers and corpus editions use
// interchangeably onto one canonical form. Runs after mark removal, so the
// hamza-carrier forms have already collapsed to their base letters.
var unifyLetters = runes.Map(func(r rune) rune {
	switch r {
	case 'ٱ': // alef wasla → alef
		return 'ا'
	case 'ى': // alef maksura → yaa
		return 'ي'
	case 'ة': // taa marbuta → haa
		return 'ه'
	}
	return r
})

// normalizer is the shared transform chain. Transformers obtained from the
// x/text packages are stateless here, but transform.Chain values are not safe
// for concurrent use, so Normalize takes a fresh chain per call.
func normalizer() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(droppedRunes),
		unifyLetters,
		norm.NFC,
	)
}

// Normalize returns the canonical diacritic-free form of s.
// The result has single spaces between words and no leading or trailing
// whitespace. Normalize is deterministic, pure, and idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(normalizer(), s)
	if err != nil {
		// transform errors only arise from malformed UTF-8; fall back to the
		// input so a bad recogniser burst cannot take the session down.
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// arabicRun reports whether r belongs to one of the Arabic script blocks
// (including supplement, extended-A, and Arabic-Indic digits).
func arabicRun(r rune) bool {
	switch {
	case r >= '؀' && r <= 'ۿ':
		return true
	case r >= 'ݐ' && r <= 'ݿ':
		return true
	case r >= 'ࢠ' && r <= 'ࣿ':
		return true
	}
	return false
}

// RemoveNonArabic strips every non-Arabic token from s and returns the
// remaining Arabic words joined by single spaces. Recognisers bleed English
// filler and punctuation into the stream; only the Arabic content is
// meaningful to the matcher.
func RemoveNonArabic(s string) string {
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		if arabicRun(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return strings.Join(words, " ")
}

// CountWords returns the number of Arabic words in s.
func CountWords(s string) int {
	cleaned := RemoveNonArabic(s)
	if cleaned == "" {
		return 0
	}
	return len(strings.Fields(cleaned))
}

// Words splits s into its Arabic words after cleaning. Returns nil when s
// contains no Arabic content.
func Words(s string) []string {
	cleaned := RemoveNonArabic(s)
	if cleaned == "" {
		return nil
	}
	return strings.Fields(cleaned)
}
