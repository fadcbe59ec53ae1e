package matching

import (
	"sort"
	"strings"
	"unicode"
)

// EmailKey is the case-insensitive email lookup key.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CardKey fingerprints a card by its last four digits and holder name.
func CardKey(last4, holder string) string {
	last4 = strings.TrimSpace(last4)
	holder = strings.Join(strings.Fields(strings.ToUpper(holder)), " ")
	if last4 == "" || holder == "" {
		return ""
	}
	return last4 + "|" + holder
}

// NameKey folds a full name into an order-independent key: lowercase, ё as е,
// punctuation dropped, tokens sorted. "Петров Иван" and "иван петров" share a key.
func NameKey(name string) string {
	name = strings.ReplaceAll(strings.ToLower(name), "ё", "е")
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// nameCandidates lists every word order of a transliterated holder name, the
// exact spellings a profile full name can be stored with.
func nameCandidates(holder string) []string {
	cyrillic := strings.ReplaceAll(Transliterate(holder), "ё", "е")
	tokens := strings.Fields(cyrillic)
	if len(tokens) == 0 || len(tokens) > maxNameTokens {
		return nil
	}
	sort.Strings(tokens)

	var out []string
	permute(tokens, 0, func(p []string) {
		out = append(out, strings.Join(p, " "))
	})
	sort.Strings(out)
	return dedupeSorted(out)
}

// maxNameTokens bounds name permutations.
const maxNameTokens = 4

func permute(tokens []string, k int, emit func([]string)) {
	if k == len(tokens) {
		emit(tokens)
		return
	}
	for i := k; i < len(tokens); i++ {
		tokens[k], tokens[i] = tokens[i], tokens[k]
		permute(tokens, k+1, emit)
		tokens[k], tokens[i] = tokens[i], tokens[k]
	}
}

func dedupeSorted(values []string) []string {
	out := values[:0]
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
