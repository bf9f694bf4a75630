package query

import "fmt"

// Location is a half-open character range [Start, End) within the text at Key.
type Location struct {
	Key   string `json:"key"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Overlaps reports whether both locations are in the same text and their
// ranges intersect. Ranges that only touch do not overlap.
func (l Location) Overlaps(other Location) bool {
	return l.Key == other.Key && l.Start < other.End && other.Start < l.End
}

func (l Location) String() string {
	return fmt.Sprintf("%s[%d:%d]", l.Key, l.Start, l.End)
}

// overlapsAny reports whether l overlaps any of the given locations.
func overlapsAny(l Location, others []Location) bool {
	for _, o := range others {
		if l.Overlaps(o) {
			return true
		}
	}
	return false
}

// appendUnique appends the locations not already present in dst.
func appendUnique(dst []Location, seen map[Location]struct{}, locs ...Location) []Location {
	for _, l := range locs {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		dst = append(dst, l)
	}
	return dst
}
