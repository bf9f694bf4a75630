package query

import (
	"strings"
	"unicode"
)

// TokenType represents the type of lexical token.
type TokenType int

const (
	TokenLParen TokenType = iota
	TokenRParen
	TokenOr
	TokenAnd
	TokenNot
	TokenExcept
	TokenField
	TokenQuoted
	TokenTerm
	TokenEOF
)

// Token represents a lexical token. Position and Length are measured in
// characters of the query text.
type Token struct {
	Type     TokenType
	Value    string
	Position int
	Length   int
}

// keywords are recognised case-insensitively, and only when written without
// escapes.
var keywords = map[string]TokenType{
	"and":    TokenAnd,
	"or":     TokenOr,
	"not":    TokenNot,
	"except": TokenExcept,
	"ignore": TokenExcept,
}

// lexer tokenizes input strings.
type lexer struct {
	input []rune
	pos   int
}

// newLexer creates a new lexer for the given input.
func newLexer(input string) *lexer {
	return &lexer{
		input: []rune(input),
		pos:   0,
	}
}

// tokenize converts the input string into a slice of tokens. '-' and '!' only
// negate at the start of a token; inside a term they are ordinary characters.
func (l *lexer) tokenize() ([]Token, *ParseError) {
	var tokens []Token

	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		switch {
		case unicode.IsSpace(ch):
			l.pos++
		case ch == '(':
			tokens = append(tokens, Token{Type: TokenLParen, Value: "(", Position: l.pos, Length: 1})
			l.pos++
		case ch == ')':
			tokens = append(tokens, Token{Type: TokenRParen, Value: ")", Position: l.pos, Length: 1})
			l.pos++
		case ch == '!' || ch == '-':
			tokens = append(tokens, Token{Type: TokenNot, Value: string(ch), Position: l.pos, Length: 1})
			l.pos++
		case ch == '"':
			token, err := l.readQuoted()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		case ch == ':':
			return nil, &ParseError{
				Message:  "Unexpected ':' without a field name",
				Position: l.pos,
				Length:   1,
			}
		case ch == '@':
			token, err := l.readAtField()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		default:
			tokens = append(tokens, l.readTerm())
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Value: "", Position: l.pos, Length: 0})
	return tokens, nil
}

// readQuoted reads a quoted string (content between "").
func (l *lexer) readQuoted() (Token, *ParseError) {
	startPos := l.pos
	l.pos++ // skip opening quote

	var value strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '"' {
			l.pos++ // skip closing quote
			return Token{
				Type:     TokenQuoted,
				Value:    value.String(),
				Position: startPos,
				Length:   l.pos - startPos,
			}, nil
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			nextCh := l.input[l.pos+1]
			if nextCh == '"' || nextCh == '\\' {
				value.WriteRune(nextCh)
				l.pos += 2
				continue
			}
		}
		value.WriteRune(ch)
		l.pos++
	}

	return Token{}, &ParseError{
		Message:  "Unterminated quoted string",
		Position: startPos,
		Length:   l.pos - startPos,
	}
}

// isTermBreak reports whether r ends a bare term.
func isTermBreak(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' || r == ':'
}

// scanTerm reads term characters, resolving backslash escapes. It reports
// whether any escape was used.
func (l *lexer) scanTerm() (string, bool) {
	var value strings.Builder
	escaped := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			value.WriteRune(l.input[l.pos+1])
			l.pos += 2
			escaped = true
			continue
		}
		if isTermBreak(ch) {
			break
		}
		value.WriteRune(ch)
		l.pos++
	}
	return value.String(), escaped
}

// readTerm reads a bare term, a "name:" field prefix or a keyword.
func (l *lexer) readTerm() Token {
	startPos := l.pos
	value, escaped := l.scanTerm()

	if l.pos < len(l.input) && l.input[l.pos] == ':' {
		l.pos++ // consume ':'
		return Token{Type: TokenField, Value: value, Position: startPos, Length: l.pos - startPos}
	}

	if !escaped {
		if kw, ok := keywords[strings.ToLower(value)]; ok {
			return Token{Type: kw, Value: value, Position: startPos, Length: l.pos - startPos}
		}
	}

	return Token{
		Type:     TokenTerm,
		Value:    value,
		Position: startPos,
		Length:   l.pos - startPos,
	}
}

// readAtField reads the "@name" form of a field prefix.
func (l *lexer) readAtField() (Token, *ParseError) {
	startPos := l.pos
	l.pos++ // skip '@'

	name, _ := l.scanTerm()
	if name == "" {
		return Token{}, &ParseError{
			Message:  "Expected a field name after '@'",
			Position: startPos,
			Length:   1,
		}
	}
	return Token{Type: TokenField, Value: name, Position: startPos, Length: l.pos - startPos}, nil
}
