package matching

import (
	"strings"
	"unicode"
)

// latinDigraphs are matched before single letters, longest first.
var latinDigraphs = []struct {
	latin    string
	cyrillic string
}{
	{"shch", "щ"},
	{"sh", "ш"},
	{"ch", "ч"},
	{"zh", "ж"},
	{"ya", "я"},
	{"yu", "ю"},
	{"yo", "ё"},
	{"ts", "ц"},
	{"ks", "кс"},
	{"kh", "х"},
}

var latinLetters = map[rune]string{
	'a': "а", 'b': "б", 'c': "ц", 'd': "д", 'e': "е", 'f': "ф", 'g': "г",
	'h': "х", 'i': "и", 'j': "й", 'k': "к", 'l': "л", 'm': "м", 'n': "н",
	'o': "о", 'p': "п", 'q': "к", 'r': "р", 's': "с", 't': "т", 'u': "у",
	'v': "в", 'w': "в", 'x': "кс", 'z': "з",
}

func isLatinVowel(r rune) bool {
	return strings.ContainsRune("aeiouy", r)
}

// Transliterate converts a Latin card holder name (as embossed on cards) to
// lowercase Cyrillic. Non-Latin runes are kept as they are.
func Transliterate(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		words[i] = transliterateWord(w)
	}
	return strings.Join(words, " ")
}

func transliterateWord(word string) string {
	src := []rune(word)
	var b strings.Builder
	for i := 0; i < len(src); {
		if n, out := matchDigraph(src[i:]); n > 0 {
			b.WriteString(out)
			i += n
			continue
		}
		r := src[i]
		if r == 'i' && i+2 == len(src) && src[i+1] == 'a' {
			b.WriteString("ия")
			i += 2
			continue
		}
		if r == 'y' {
			if i > 0 && isLatinVowel(src[i-1]) {
				b.WriteString("й")
			} else {
				b.WriteString("ы")
			}
			i++
			continue
		}
		if out, ok := latinLetters[r]; ok {
			b.WriteString(out)
		} else if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
		i++
	}
	return b.String()
}

func matchDigraph(src []rune) (int, string) {
	for _, d := range latinDigraphs {
		n := len(d.latin)
		if len(src) >= n && string(src[:n]) == d.latin {
			return n, d.cyrillic
		}
	}
	return 0, ""
}
