package query

import (
	"strings"

	"subscription_watcher/submission"
)

// Matches reports whether the submission satisfies the node.
func (n *Node) Matches(s *submission.Submission) bool {
	switch n.Type {
	case NodeWord, NodePrefix, NodeSuffix, NodeRegex:
		for _, t := range n.Field.tokens(s) {
			if n.matchWord(t.word) {
				return true
			}
		}
		return false

	case NodePhrase:
		for _, text := range n.Field.Texts(s) {
			if indexRunes(lowerRunes(text), n.runes, 0) >= 0 {
				return true
			}
		}
		return false

	case NodeRating:
		return n.Rating != nil && s.Rating == *n.Rating

	case NodeAnd:
		for _, c := range n.Children {
			if !c.Matches(s) {
				return false
			}
		}
		return true

	case NodeOr:
		for _, c := range n.Children {
			if c.Matches(s) {
				return true
			}
		}
		return false

	case NodeNot:
		return !n.Child.Matches(s)

	case NodeException:
		return len(n.exceptionLocations(s, 1)) > 0
	}
	return false
}

// MatchLocations returns where in the submission the node matched. Nodes
// without positions (rating, and, not) return nil. Occurrences within one
// text never overlap each other.
func (n *Node) MatchLocations(s *submission.Submission) []Location {
	switch n.Type {
	case NodeWord, NodePrefix, NodeSuffix, NodeRegex:
		var locs []Location
		for _, t := range n.Field.tokens(s) {
			if n.matchWord(t.word) {
				locs = append(locs, Location{Key: t.key, Start: t.start, End: t.end})
			}
		}
		return locs

	case NodePhrase:
		var locs []Location
		for _, lt := range n.Field.LocatedTexts(s) {
			hay := lowerRunes(lt.Text)
			for i := indexRunes(hay, n.runes, 0); i >= 0; i = indexRunes(hay, n.runes, i+len(n.runes)) {
				locs = append(locs, Location{Key: lt.Key, Start: i, End: i + len(n.runes)})
			}
		}
		return locs

	case NodeOr:
		var locs []Location
		seen := make(map[Location]struct{})
		for _, c := range n.Children {
			locs = appendUnique(locs, seen, c.MatchLocations(s)...)
		}
		return locs

	case NodeException:
		return n.exceptionLocations(s, -1)
	}
	return nil
}

// exceptionLocations returns the base locations that overlap no excluded
// location, stopping after limit results when limit is positive.
func (n *Node) exceptionLocations(s *submission.Submission, limit int) []Location {
	base := n.Child.MatchLocations(s)
	if len(base) == 0 {
		return nil
	}
	excluded := n.Except.MatchLocations(s)

	var kept []Location
	for _, l := range base {
		if overlapsAny(l, excluded) {
			continue
		}
		kept = append(kept, l)
		if limit > 0 && len(kept) >= limit {
			break
		}
	}
	return kept
}

// matchWord applies a word-level leaf to one lowercased word.
func (n *Node) matchWord(word string) bool {
	switch n.Type {
	case NodeWord:
		return word == n.literal
	case NodePrefix:
		return strings.HasPrefix(word, n.literal) && runeLen(word) > len(n.runes)
	case NodeSuffix:
		return strings.HasSuffix(word, n.literal) && runeLen(word) > len(n.runes)
	case NodeRegex:
		return n.re != nil && n.re.MatchString(word)
	}
	return false
}
