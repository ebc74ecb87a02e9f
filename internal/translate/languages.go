package translate

import (
	"strings"
	"unicode"
)

const English = "en"

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"pa": "Punjabi",
	"ta": "Tamil",
	"te": "Telugu",
	"mr": "Marathi",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"or": "Odia",
	"as": "Assamese",
}

// floresCodes are the NLLB language tags.
var floresCodes = map[string]string{
	"en": "eng_Latn",
	"hi": "hin_Deva",
	"bn": "ben_Beng",
	"pa": "pan_Guru",
	"ta": "tam_Taml",
	"te": "tel_Telu",
	"mr": "mar_Deva",
	"gu": "guj_Gujr",
	"kn": "kan_Knda",
	"ml": "mal_Mlym",
	"or": "ory_Orya",
	"as": "asm_Beng",
}

var scripts = []struct {
	table *unicode.RangeTable
	lang  string
}{
	{unicode.Tamil, "ta"},
	{unicode.Devanagari, "hi"},
	{unicode.Bengali, "bn"},
	{unicode.Gurmukhi, "pa"},
	{unicode.Gujarati, "gu"},
	{unicode.Telugu, "te"},
	{unicode.Kannada, "kn"},
	{unicode.Malayalam, "ml"},
	{unicode.Oriya, "or"},
}

// marathiMarkers are everyday Marathi words that Hindi spells differently.
var marathiMarkers = map[string]bool{
	"आहे":    true,
	"आहेत":   true,
	"नाही":   true,
	"काय":    true,
	"किती":   true,
	"कसा":    true,
	"कशी":    true,
	"कसे":    true,
	"उद्या":  true,
	"पाऊस":   true,
	"मध्ये":  true,
	"आणि":    true,
	"माझ्या": true,
	"माझे":   true,
	"होईल":   true,
	"पडेल":   true,
}

// looksMarathi splits Devanagari text between Hindi and Marathi. The letter ळ
// is common in Marathi and absent from standard Hindi.
func looksMarathi(text string) bool {
	if strings.ContainsRune(text, 'ळ') {
		return true
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	})
	for _, w := range words {
		if marathiMarkers[w] {
			return true
		}
	}
	return false
}

// LanguageName returns the English name of a language code, or the code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[NormalizeCode(code)]; ok {
		return name
	}
	return code
}

// NormalizeCode lower-cases a code and strips any region suffix ("ta-IN" -> "ta").
func NormalizeCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

// Supported reports whether code is one of the known languages.
func Supported(code string) bool {
	_, ok := languageNames[NormalizeCode(code)]
	return ok
}

// DetectLanguage picks the language by dominant script, telling Marathi from
// Hindi by marker words. Text written mostly in Latin letters is English; text
// with no letters yields "".
func DetectLanguage(text string) string {
	counts := map[string]int{}
	latin := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			latin++
			continue
		}
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[s.lang]++
				break
			}
		}
	}

	best, bestCount := "", 0
	for _, s := range scripts {
		if c := counts[s.lang]; c > bestCount {
			best, bestCount = s.lang, c
		}
	}
	switch {
	case bestCount > 0 && bestCount >= latin/2:
		if best == "hi" && looksMarathi(text) {
			return "mr"
		}
		return best
	case latin > 0:
		return English
	}
	return ""
}
