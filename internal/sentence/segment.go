// Package sentence extracts complete sentences from an incrementally
// growing text buffer. It lets the response pipeline hand sentence-sized
// units to speech synthesis while tokens are still streaming in.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Known abbreviations whose trailing period is not a sentence boundary.
var abbreviations = map[string]struct{}{
	"Dr.":   {},
	"Mr.":   {},
	"Mrs.":  {},
	"Ms.":   {},
	"Jr.":   {},
	"Sr.":   {},
	"Prof.": {},
	"Rev.":  {},
	"St.":   {},
	"Gen.":  {},
	"Col.":  {},
	"Lt.":   {},
	"Sgt.":  {},
	"Inc.":  {},
	"Ltd.":  {},
	"Corp.": {},
	"Co.":   {},
	"vs.":   {},
	"etc.":  {},
	"i.e.":  {},
	"e.g.":  {},
	"a.m.":  {},
	"p.m.":  {},
	"U.S.":  {},
	"U.K.":  {},
}

// Split scans text for sentence boundaries and returns the complete
// sentences in order plus the unconsumed remainder.
//
// A boundary is one of '.', '!' or '?' followed by whitespace whose next
// non-space rune is an uppercase letter or a digit, and whose preceding
// token is not a known abbreviation or initial. End of input is never a
// boundary: a trailing fragment stays in the remainder so that appending
// more text and calling Split again is equivalent to one call on the full
// concatenation. Callers flush the final remainder themselves once the
// stream is known to be complete.
//
// Sentences are trimmed of surrounding whitespace. No character is ever
// dropped from or duplicated into the remainder.
func Split(text string) ([]string, string) {
	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if !boundaryAfter(text, i) {
			continue
		}
		if c == '.' && isAbbreviation(text, i) {
			continue
		}

		s := strings.TrimSpace(text[start : i+1])
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	return sentences, text[start:]
}

// boundaryAfter reports whether the punctuation at i is followed by
// whitespace and then an uppercase letter or digit.
func boundaryAfter(s string, i int) bool {
	j := i + 1
	if j >= len(s) || !isSpace(s[j]) {
		return false
	}
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	if j >= len(s) {
		// Trailing whitespace only; the follower may arrive in the next
		// delta, so do not split yet.
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[j:])
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isAbbreviation reports whether the period at i ends a known
// abbreviation or a single-letter initial.
func isAbbreviation(s string, i int) bool {
	start := i
	for start > 0 && !isSpace(s[start-1]) {
		start--
	}
	word := s[start : i+1]

	if _, ok := abbreviations[word]; ok {
		return true
	}

	// Single uppercase letter followed by a period reads as an initial,
	// as in "J. Smith".
	if len(word) == 2 && word[0] >= 'A' && word[0] <= 'Z' {
		return true
	}

	return false
}
