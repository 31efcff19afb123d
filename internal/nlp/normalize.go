package nlp

import "strings"

// arabicFolding maps orthographic variants onto canonical forms: alef
// variants to bare alef, alef maqsura to yeh, teh marbuta to heh. Matching
// dictionary terms against ASR output needs both sides folded the same way.
var arabicFolding = strings.NewReplacer(
	"أ", "ا", // أ -> ا
	"إ", "ا", // إ -> ا
	"آ", "ا", // آ -> ا
	"ٱ", "ا", // ٱ -> ا
	"ى", "ي", // ى -> ي
	"ة", "ه", // ة -> ه
)

// diacritics are the harakat and tatweel stripped before matching.
var diacritics = strings.NewReplacer(
	"ً", "", // fathatan
	"ٌ", "", // dammatan
	"ٍ", "", // kasratan
	"َ", "", // fatha
	"ُ", "", // damma
	"ِ", "", // kasra
	"ّ", "", // shadda
	"ْ", "", // sukun
	"ـ", "", // tatweel
)

// NormalizeArabic folds orthographic variants and strips diacritics.
// Non-Arabic text passes through unchanged.
func NormalizeArabic(text string) string {
	return arabicFolding.Replace(diacritics.Replace(text))
}
