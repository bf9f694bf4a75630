package query

import (
	"strings"

	"github.com/coregx/coregex"
)

// collapseStars replaces every run of '*' with a single '*'. A run stands for
// one or more characters no matter how long it is.
func collapseStars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevStar := false
	for _, r := range s {
		if r == '*' {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classifyTerm decides which leaf a bare term becomes based on where its
// asterisks are. The returned literal is the term without wildcards for
// words, prefixes and suffixes, or the collapsed pattern for regexes. It
// reports false for a term made only of asterisks.
func classifyTerm(term string) (NodeType, string, bool) {
	term = collapseStars(term)
	if strings.Trim(term, "*") == "" {
		return "", "", false
	}

	stars := strings.Count(term, "*")
	switch {
	case stars == 0:
		return NodeWord, term, true
	case stars == 1 && strings.HasPrefix(term, "*"):
		return NodeSuffix, term[1:], true
	case stars == 1 && strings.HasSuffix(term, "*"):
		return NodePrefix, term[:len(term)-1], true
	default:
		return NodeRegex, term, true
	}
}

// wildcardRegex translates a wildcard term into an anchored pattern that must
// match a whole word. Literal segments are quoted so user input cannot inject
// pattern syntax, and each '*' requires at least one character.
func wildcardRegex(term string) string {
	segments := strings.Split(lower(collapseStars(term)), "*")
	for i, seg := range segments {
		segments[i] = coregex.QuoteMeta(seg)
	}
	return "^" + strings.Join(segments, "(?:.+)") + "$"
}

// compileWildcard builds the matcher for a regex node.
func compileWildcard(term string) (*coregex.Regex, string, error) {
	pattern := wildcardRegex(term)
	re, err := coregex.Compile(pattern)
	if err != nil {
		return nil, "", err
	}
	return re, pattern, nil
}
