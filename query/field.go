package query

import (
	"fmt"
	"strconv"
	"strings"

	"subscription_watcher/submission"
)

// Field scopes a predicate to part of a submission.
type Field int

const (
	// FieldAny covers title, description and keywords. It never includes the
	// artist, which must be asked for explicitly.
	FieldAny Field = iota
	FieldTitle
	FieldDescription
	FieldKeywords
	FieldArtist
)

// Location keys used for title, description and artist texts. Keywords use
// "keyword_<index>".
const (
	KeyTitle        = "title"
	KeyDescription  = "description"
	KeyArtist       = "artist"
	KeyArtistHandle = "artist_handle"
)

var fieldNames = map[string]Field{
	"title":       FieldTitle,
	"description": FieldDescription,
	"desc":        FieldDescription,
	"message":     FieldDescription,
	"keywords":    FieldKeywords,
	"keyword":     FieldKeywords,
	"tag":         FieldKeywords,
	"tags":        FieldKeywords,
	"artist":      FieldArtist,
	"author":      FieldArtist,
	"poster":      FieldArtist,
	"lower":       FieldArtist,
	"uploader":    FieldArtist,
}

// lookupField resolves a field name or alias, case-insensitively.
func lookupField(name string) (Field, bool) {
	f, ok := fieldNames[strings.ToLower(name)]
	return f, ok
}

func (f Field) String() string {
	switch f {
	case FieldAny:
		return "any"
	case FieldTitle:
		return "title"
	case FieldDescription:
		return "description"
	case FieldKeywords:
		return "keywords"
	case FieldArtist:
		return "artist"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts aliases.
func (f *Field) UnmarshalText(text []byte) error {
	if string(text) == "any" {
		*f = FieldAny
		return nil
	}
	field, ok := lookupField(string(text))
	if !ok {
		return fmt.Errorf("unknown field %q", text)
	}
	*f = field
	return nil
}

// LocatedText is a raw text of a submission together with its location key.
type LocatedText struct {
	Key  string
	Text string
}

// KeywordKey returns the location key of the keyword at index i.
func KeywordKey(i int) string {
	return "keyword_" + strconv.Itoa(i)
}

// LocatedTexts returns the texts this field covers, keyed for location
// tracking, in a stable order.
func (f Field) LocatedTexts(s *submission.Submission) []LocatedText {
	switch f {
	case FieldTitle:
		return []LocatedText{{Key: KeyTitle, Text: s.Title}}
	case FieldDescription:
		return []LocatedText{{Key: KeyDescription, Text: s.Description}}
	case FieldKeywords:
		texts := make([]LocatedText, len(s.Keywords))
		for i, kw := range s.Keywords {
			texts[i] = LocatedText{Key: KeywordKey(i), Text: kw}
		}
		return texts
	case FieldArtist:
		return []LocatedText{
			{Key: KeyArtist, Text: s.Author.DisplayName},
			{Key: KeyArtistHandle, Text: s.Author.Handle},
		}
	case FieldAny:
		texts := FieldTitle.LocatedTexts(s)
		texts = append(texts, FieldDescription.LocatedTexts(s)...)
		return append(texts, FieldKeywords.LocatedTexts(s)...)
	}
	return nil
}

// Texts returns the raw strings used for phrase matching.
func (f Field) Texts(s *submission.Submission) []string {
	located := f.LocatedTexts(s)
	texts := make([]string, len(located))
	for i, lt := range located {
		texts[i] = lt.Text
	}
	return texts
}

// Words returns the whole words used for word, prefix, suffix and wildcard
// matching, lowercased and with edge punctuation removed. Title and
// description are split on whitespace, quotes and angle brackets; keywords
// and artist names are single words.
func (f Field) Words(s *submission.Submission) []string {
	tokens := f.tokens(s)
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.word
	}
	return words
}

func (f Field) tokens(s *submission.Submission) []token {
	var tokens []token
	for _, lt := range f.LocatedTexts(s) {
		if lt.Key == KeyTitle || lt.Key == KeyDescription {
			tokens = append(tokens, splitWords(lt.Key, lt.Text)...)
		} else {
			tokens = append(tokens, wholeWord(lt.Key, lt.Text)...)
		}
	}
	return tokens
}
