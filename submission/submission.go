// Package submission defines the records that arrive from the listing feed and
// are evaluated against subscription queries.
package submission

import (
	"fmt"
	"strings"
	"time"
)

// Rating is the content rating attached to a submission.
type Rating int

const (
	General Rating = iota
	Mature
	Adult
)

// ratingSynonyms maps every accepted spelling to its rating.
var ratingSynonyms = map[string]Rating{
	"general":      General,
	"safe":         General,
	"mature":       Mature,
	"questionable": Mature,
	"adult":        Adult,
	"explicit":     Adult,
}

// ParseRating maps a rating name or one of its synonyms, case-insensitively.
func ParseRating(s string) (Rating, bool) {
	r, ok := ratingSynonyms[strings.ToLower(strings.TrimSpace(s))]
	return r, ok
}

func (r Rating) String() string {
	switch r {
	case General:
		return "general"
	case Mature:
		return "mature"
	case Adult:
		return "adult"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	switch r {
	case General, Mature, Adult:
		return []byte(r.String()), nil
	}
	return nil, fmt.Errorf("invalid rating %d", int(r))
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts synonyms.
func (r *Rating) UnmarshalText(text []byte) error {
	parsed, ok := ParseRating(string(text))
	if !ok {
		return fmt.Errorf("unknown rating %q", string(text))
	}
	*r = parsed
	return nil
}

// Author identifies the uploader of a submission.
type Author struct {
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
}

// Submission is a single user-generated post from the feed. It is treated as
// read-only while queries are evaluated against it.
type Submission struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Keywords     []string  `json:"keywords"`
	Author       Author    `json:"author"`
	Rating       Rating    `json:"rating"`
	Link         string    `json:"link,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PostedAt     time.Time `json:"posted_at,omitzero"`
}
