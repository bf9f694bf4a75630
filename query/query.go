// Package query compiles subscription and blocklist queries into predicates
// over submissions. The syntax supports:
//   - words: deer matches the whole word "deer" in title, description or keywords
//   - wildcards: deer* (prefix), *taur (suffix), fi*st (each * is one or more characters)
//   - phrases: "hand drawn" matches anywhere in the text, punctuation included
//   - fields: title:deer, @keywords deer, artist:someone
//   - ratings: rating:general (safe), rating:mature (questionable), rating:adult (explicit)
//   - negation: -ych, !ych, not ych
//   - exceptions: multi* except multitude, title:(deer except (reindeer or "deer mouse"))
//   - connectors: adjacent terms are ANDed, "and" and "or" may be written out
//   - grouping: (deer or fox) rating:safe
//
// Precedence (lowest to highest): OR, AND, NOT, EXCEPT, field scoping, brackets.
// Example: a and b or c means (a AND b) OR c
package query

import (
	"errors"
	"strings"

	"github.com/coregx/coregex"

	"subscription_watcher/submission"
)

// NodeType represents the type of AST node.
type NodeType string

const (
	NodeWord      NodeType = "word"
	NodePrefix    NodeType = "prefix"
	NodeSuffix    NodeType = "suffix"
	NodeRegex     NodeType = "regex"
	NodePhrase    NodeType = "phrase"
	NodeRating    NodeType = "rating"
	NodeAnd       NodeType = "and"
	NodeOr        NodeType = "or"
	NodeNot       NodeType = "not"
	NodeException NodeType = "exception"
)

// Node represents a node in the AST. Nodes are immutable once built and may be
// evaluated from many goroutines at once.
type Node struct {
	Type     NodeType           `json:"type"`
	Field    Field              `json:"field,omitempty"`
	Value    string             `json:"value,omitempty"`    // Literal text (for leaf nodes)
	Regex    string             `json:"regex,omitempty"`    // Compiled pattern (for regex nodes)
	Rating   *submission.Rating `json:"rating,omitempty"`   // For rating nodes
	Children []*Node            `json:"children,omitempty"` // For or/and nodes
	Child    *Node              `json:"child,omitempty"`    // For not nodes, and the base of an exception
	Except   *Node              `json:"except,omitempty"`   // Excluded side of an exception

	literal string
	runes   []rune
	re      *coregex.Regex
}

var (
	// ErrInvalidQuery is matched by every compile error via errors.Is.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnsupportedException is returned when an exception is built from a
	// node that has no match locations.
	ErrUnsupportedException = errors.New("exception operands must be words, wildcards, phrases or lists of them")
)

// ParseError represents a syntax error with position information. Position
// and Length count characters, not bytes.
type ParseError struct {
	Message  string `json:"message"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
}

func (e *ParseError) Error() string {
	return e.Message
}

// Is makes every ParseError match ErrInvalidQuery.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidQuery
}

func newLeaf(t NodeType, value string, field Field) *Node {
	lit := lower(value)
	return &Node{Type: t, Field: field, Value: value, literal: lit, runes: []rune(lit)}
}

// NewWord matches value as a whole word. Punctuation at either end of value
// is ignored, the same as it is for words in the text.
func NewWord(value string, field Field) *Node {
	n := newLeaf(NodeWord, value, field)
	start, end := trimWord(n.runes, 0, len(n.runes))
	n.runes = n.runes[start:end]
	n.literal = string(n.runes)
	return n
}

// NewPrefix matches words that start with value and are longer than it.
func NewPrefix(value string, field Field) *Node {
	return newLeaf(NodePrefix, value, field)
}

// NewSuffix matches words that end with value and are longer than it.
func NewSuffix(value string, field Field) *Node {
	return newLeaf(NodeSuffix, value, field)
}

// NewPhrase matches value as a raw substring.
func NewPhrase(value string, field Field) *Node {
	return newLeaf(NodePhrase, value, field)
}

// NewRegex matches whole words against a wildcard term such as "fi*st".
func NewRegex(term string, field Field) (*Node, error) {
	re, pattern, err := compileWildcard(term)
	if err != nil {
		return nil, err
	}
	n := newLeaf(NodeRegex, collapseStars(term), field)
	n.Regex = pattern
	n.re = re
	return n, nil
}

// NewRating matches submissions with exactly the given rating.
func NewRating(r submission.Rating) *Node {
	return &Node{Type: NodeRating, Rating: &r}
}

// NewAnd matches when every child matches. With no children it always matches.
func NewAnd(children ...*Node) *Node {
	return &Node{Type: NodeAnd, Children: children}
}

// NewOr matches when any child matches. With no children it never matches.
func NewOr(children ...*Node) *Node {
	return &Node{Type: NodeOr, Children: children}
}

// NewNot negates child.
func NewNot(child *Node) *Node {
	return &Node{Type: NodeNot, Child: child}
}

// NewException matches when base matches somewhere that does not overlap any
// match of excluded. Both sides must produce match locations.
func NewException(base, excluded *Node) (*Node, error) {
	if !base.positional() || !excluded.positional() {
		return nil, ErrUnsupportedException
	}
	return &Node{Type: NodeException, Child: base, Except: excluded}, nil
}

// positional reports whether the node can say where it matched.
func (n *Node) positional() bool {
	switch n.Type {
	case NodeWord, NodePrefix, NodeSuffix, NodeRegex, NodePhrase, NodeException:
		return true
	case NodeOr:
		for _, c := range n.Children {
			if !c.positional() {
				return false
			}
		}
		return true
	}
	return false
}

// Query is a compiled query together with the text it was compiled from.
type Query struct {
	text string
	root *Node
}

// Compile parses a query into a reusable predicate. Every failure is a
// *ParseError, which matches ErrInvalidQuery.
func Compile(text string) (*Query, error) {
	lexer := newLexer(text)
	tokens, perr := lexer.tokenize()
	if perr != nil {
		return nil, perr
	}

	parser := newParser(tokens)
	root, perr := parser.parse()
	if perr != nil {
		return nil, perr
	}

	return &Query{text: text, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Query {
	q, err := Compile(text)
	if err != nil {
		panic("query: Compile(" + text + "): " + err.Error())
	}
	return q
}

// Blocklist combines blocked queries into And(Not(q1), Not(q2), ...). A
// submission passes when it matches none of them; an empty blocklist passes
// everything.
func Blocklist(blocked ...*Query) *Query {
	children := make([]*Node, len(blocked))
	texts := make([]string, len(blocked))
	for i, q := range blocked {
		children[i] = NewNot(q.root)
		texts[i] = "-(" + q.root.String() + ")"
	}
	return &Query{text: strings.Join(texts, " "), root: NewAnd(children...)}
}

// FromNode wraps a hand-built AST in a Query.
func FromNode(root *Node) *Query {
	return &Query{text: root.String(), root: root}
}

// Matches reports whether the submission satisfies the query.
func (q *Query) Matches(s *submission.Submission) bool {
	return q.root.Matches(s)
}

// Text returns the text the query was compiled from.
func (q *Query) Text() string {
	return q.text
}

// Root returns the AST of the query.
func (q *Query) Root() *Node {
	return q.root
}

// String returns the canonical form of the query, which compiles back to an
// equivalent predicate.
func (q *Query) String() string {
	return q.root.String()
}
