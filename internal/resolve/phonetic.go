package resolve

import "strings"

// maxCodeLen is the length cap of a phonetic code.
const maxCodeLen = 4

// collapsible lists consonants whose doubled form encodes as a single letter.
var collapsible = map[byte]bool{'B': true, 'F': true, 'L': true, 'M': true, 'N': true, 'R': true}

// Metaphone reduces a word to a phonetic code of at most four characters
// using a simplified Double Metaphone primary encoding. TH encodes as '0'.
// Non-letters are ignored; a word with no letters encodes as "".
func Metaphone(word string) string {
	w := alphaUpper(word)
	if w == "" {
		return ""
	}

	i := 0
	switch {
	case hasPrefixAny(w, "GN", "KN", "PN", "WR", "PS"):
		i = 1
	case w[0] == 'X':
		w = "S" + w[1:]
	}

	var code strings.Builder
	emit := func(s string) {
		for j := 0; j < len(s) && code.Len() < maxCodeLen; j++ {
			code.WriteByte(s[j])
		}
	}

	for ; i < len(w) && code.Len() < maxCodeLen; i++ {
		c := w[i]
		if i > 0 && c == w[i-1] && collapsible[c] {
			continue
		}

		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				emit(string(c))
			}
		case 'B', 'F', 'J', 'L', 'M', 'N', 'R':
			emit(string(c))
		case 'C':
			switch {
			case at(w, i+1, "IA"), at(w, i+1, "H"):
				emit("X")
				if at(w, i+1, "H") {
					i++
				}
			case at(w, i+1, "E"), at(w, i+1, "I"), at(w, i+1, "Y"):
				emit("S")
			default:
				emit("K")
			}
		case 'D':
			emit("T")
		case 'G':
			switch {
			case at(w, i+1, "H"):
				if i > 0 && isVowel(w[i-1]) {
					emit("K")
				}
				i++
			case w[i:] == "GN" || w[i:] == "GNS" || w[i:] == "GNED":
				// Silent terminal GN.
			case at(w, i+1, "E"), at(w, i+1, "I"), at(w, i+1, "Y"):
				emit("J")
			default:
				emit("K")
			}
		case 'H':
			if i > 0 && isVowel(w[i-1]) && i+1 < len(w) && isVowel(w[i+1]) {
				emit("H")
			}
		case 'K':
			if i == 0 || w[i-1] != 'C' {
				emit("K")
			}
		case 'P':
			if at(w, i+1, "H") {
				emit("F")
				i++
			} else {
				emit("P")
			}
		case 'Q':
			emit("K")
		case 'S':
			if at(w, i+1, "IO") || at(w, i+1, "IA") || at(w, i+1, "H") {
				emit("X")
				if at(w, i+1, "H") {
					i++
				}
			} else {
				emit("S")
			}
		case 'T':
			switch {
			case at(w, i+1, "IO"), at(w, i+1, "IA"):
				emit("X")
			case at(w, i+1, "H"):
				emit("0")
				i++
			case at(w, i+1, "CH"):
				// Silent T in TCH; the CH encodes on the next step.
			default:
				emit("T")
			}
		case 'V':
			emit("F")
		case 'W', 'Y':
			if i+1 < len(w) && isVowel(w[i+1]) {
				emit(string(c))
			}
		case 'X':
			emit("KS")
		case 'Z':
			emit("S")
		}
	}
	return code.String()
}

// MetaphoneMatch reports whether two words share the same non-empty code.
func MetaphoneMatch(a, b string) bool {
	ca := Metaphone(a)
	return ca != "" && ca == Metaphone(b)
}

func alphaUpper(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c)
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		}
	}
	return b.String()
}

func isVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// at reports whether w contains s starting at index i.
func at(w string, i int, s string) bool {
	return i >= 0 && i <= len(w) && strings.HasPrefix(w[i:], s)
}

func hasPrefixAny(w string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	return false
}
