package record

import (
	"strings"
	"unicode"
)

// FormatCitationKey builds a citation key from the record's first author
// family name and year, e.g. "Webster2002". Non-ASCII letters are folded to
// their closest ASCII equivalent and everything else is dropped. Falls back to
// "Anonymous" when no author is usable.
func (r *Record) FormatCitationKey() string {
	family := firstAuthorFamily(r.Fields["author"])
	if family == "" {
		family = "Anonymous"
	}
	return family + r.Fields["year"]
}

// firstAuthorFamily extracts the family name of the first author from a
// "Family, Given and Family, Given" string.
func firstAuthorFamily(authors string) string {
	first := authors
	if idx := strings.Index(authors, " and "); idx >= 0 {
		first = authors[:idx]
	}
	if idx := strings.Index(first, ","); idx >= 0 {
		first = first[:idx]
	}
	// Drop name particles so "van der Aalst" keys as "Aalst".
	words := strings.Fields(first)
	for len(words) > 1 && isParticle(words[0]) {
		words = words[1:]
	}
	return asciiKey(strings.Join(words, ""))
}

// particles are lowercase name prefixes that do not start a citation key.
var particles = map[string]bool{
	"van": true, "von": true, "der": true, "den": true, "de": true,
	"la": true, "le": true, "del": true, "da": true, "di": true,
}

func isParticle(word string) bool {
	return particles[strings.ToLower(word)]
}

// asciiKey keeps letters and digits, folding common accented letters.
func asciiKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r >= 128:
			if folded, ok := accentFold[r]; ok {
				b.WriteString(folded)
			}
		}
	}
	return b.String()
}

var accentFold = map[rune]string{
	'á': "a", 'à': "a", 'â': "a", 'ä': "ae", 'ã': "a", 'å': "a",
	'é': "e", 'è': "e", 'ê': "e", 'ë': "e",
	'í': "i", 'ì': "i", 'î': "i", 'ï': "i",
	'ó': "o", 'ò': "o", 'ô': "o", 'ö': "oe", 'õ': "o", 'ø': "o",
	'ú': "u", 'ù': "u", 'û': "u", 'ü': "ue",
	'ñ': "n", 'ç': "c", 'ß': "ss",
	'Á': "A", 'À': "A", 'Â': "A", 'Ä': "Ae", 'Ã': "A", 'Å': "A",
	'É': "E", 'È': "E", 'Ê': "E", 'Ë': "E",
	'Í': "I", 'Ì': "I", 'Î': "I", 'Ï': "I",
	'Ó': "O", 'Ò': "O", 'Ô': "O", 'Ö': "Oe", 'Õ': "O", 'Ø': "O",
	'Ú': "U", 'Ù': "U", 'Û': "U", 'Ü': "Ue",
	'Ñ': "N", 'Ç': "C",
}
