package query

import (
	"cmp"
	"slices"

	"subscription_watcher/submission"
)

// Highlights returns the spans that made the query match, for display. It
// is empty when the query does not match. Negated parts contribute nothing.
func (q *Query) Highlights(s *submission.Submission) []Location {
	if !q.Matches(s) {
		return nil
	}

	seen := make(map[Location]struct{})
	locs := q.root.highlights(s, nil, seen)
	slices.SortFunc(locs, func(a, b Location) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
	return locs
}

func (n *Node) highlights(s *submission.Submission, dst []Location, seen map[Location]struct{}) []Location {
	switch n.Type {
	case NodeAnd, NodeOr:
		for _, c := range n.Children {
			dst = c.highlights(s, dst, seen)
		}
		return dst
	case NodeNot, NodeRating:
		return dst
	}
	return appendUnique(dst, seen, n.MatchLocations(s)...)
}
