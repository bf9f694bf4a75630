package query

import (
	"unicode"
	"unicode/utf8"
)

// token is one whole word of a located text. Offsets are rune offsets into
// the original text; word is the lowercased, punctuation-trimmed form.
type token struct {
	key        string
	start, end int
	word       string
}

// isWordRune reports whether r belongs to a word. Hyphen counts as a word
// character so "an-example" stays a single word.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '_' || r == '-'
}

// isSeparator reports whether r splits words apart.
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '"' || r == '<' || r == '>'
}

// lowerRunes lowercases rune by rune so offsets stay aligned with the input.
func lowerRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func lower(s string) string {
	return string(lowerRunes(s))
}

// trimWord strips leading and trailing non-word runes from runes[start:end].
func trimWord(runes []rune, start, end int) (int, int) {
	for start < end && !isWordRune(runes[start]) {
		start++
	}
	for end > start && !isWordRune(runes[end-1]) {
		end--
	}
	return start, end
}

// splitWords splits text on separators and trims punctuation from the edge of
// each piece. Pieces that are pure punctuation are dropped.
func splitWords(key, text string) []token {
	runes := lowerRunes(text)
	var tokens []token

	i := 0
	for i < len(runes) {
		for i < len(runes) && isSeparator(runes[i]) {
			i++
		}
		j := i
		for j < len(runes) && !isSeparator(runes[j]) {
			j++
		}
		if start, end := trimWord(runes, i, j); start < end {
			tokens = append(tokens, token{key: key, start: start, end: end, word: string(runes[start:end])})
		}
		i = j
	}
	return tokens
}

// wholeWord treats all of text as one word, as keywords and artist names are.
func wholeWord(key, text string) []token {
	runes := lowerRunes(text)
	start, end := trimWord(runes, 0, len(runes))
	if start == end {
		return nil
	}
	return []token{{key: key, start: start, end: end, word: string(runes[start:end])}}
}

// runeLen is the length of s in characters.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// indexRunes returns the first index >= from where needle occurs in hay, or -1.
func indexRunes(hay, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(hay); i++ {
		match := true
		for k, r := range needle {
			if hay[i+k] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
