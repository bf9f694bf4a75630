package query

import (
	"strings"

	"subscription_watcher/submission"
)

// parser implements a recursive descent parser for subscription queries.
//
// Grammar:
//
//	query     → or_expr EOF
//	or_expr   → and_expr ('or' and_expr)*
//	and_expr  → unary (['and'] unary)*
//	unary     → ('not' | '-' | '!') unary | clause
//	clause    → atom ['except' exception]
//	atom      → '(' or_expr ')' | quoted | term | field value
//	value     → quoted | term | '(' element 'except' exception ')'
//	exception → element | '(' element (['or'] element)* ')'
//	element   → quoted | term
type parser struct {
	tokens []Token
	pos    int
}

// newParser creates a new parser for the given tokens.
func newParser(tokens []Token) *parser {
	return &parser{
		tokens: tokens,
		pos:    0,
	}
}

// current returns the current token.
func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

// advance moves to the next token and returns the previous one.
func (p *parser) advance() Token {
	token := p.current()
	p.pos++
	return token
}

// errorAt builds a ParseError covering token.
func errorAt(token Token, message string) *ParseError {
	return &ParseError{
		Message:  message,
		Position: token.Position,
		Length:   max(token.Length, 1),
	}
}

// tokenTypeName returns a human-readable name for a token type.
func tokenTypeName(t TokenType) string {
	switch t {
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenOr:
		return "or"
	case TokenAnd:
		return "and"
	case TokenNot:
		return "not"
	case TokenExcept:
		return "except"
	case TokenField:
		return "field"
	case TokenQuoted:
		return "quoted string"
	case TokenTerm:
		return "term"
	case TokenEOF:
		return "end of query"
	default:
		return "unknown"
	}
}

// startsUnary reports whether a token can begin an operand.
func startsUnary(t TokenType) bool {
	switch t {
	case TokenNot, TokenLParen, TokenQuoted, TokenTerm, TokenField:
		return true
	}
	return false
}

// parse parses the tokens into an AST.
func (p *parser) parse() (*Node, *ParseError) {
	if p.current().Type == TokenEOF {
		return nil, &ParseError{Message: "Query is empty", Position: 0, Length: 1}
	}

	node, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}

	if token := p.current(); token.Type != TokenEOF {
		if token.Type == TokenRParen {
			return nil, errorAt(token, "Unmatched closing bracket")
		}
		return nil, errorAt(token, "Unexpected token: "+tokenTypeName(token.Type))
	}

	return node, nil
}

// parseOrExpr parses: and_expr ('or' and_expr)*
func (p *parser) parseOrExpr() (*Node, *ParseError) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}

	if p.current().Type == TokenOr {
		children := []*Node{left}
		for p.current().Type == TokenOr {
			p.advance() // consume or
			right, err := p.parseAndExpr()
			if err != nil {
				return nil, err
			}
			children = append(children, right)
		}
		return NewOr(children...), nil
	}

	return left, nil
}

// parseAndExpr parses: unary (['and'] unary)*
func (p *parser) parseAndExpr() (*Node, *ParseError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	children := []*Node{left}
	for {
		if p.current().Type == TokenAnd {
			p.advance() // consume and
		} else if !startsUnary(p.current().Type) {
			break
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}

	if len(children) == 1 {
		return left, nil
	}
	return NewAnd(children...), nil
}

// parseUnary parses: ('not' | '-' | '!') unary | clause
func (p *parser) parseUnary() (*Node, *ParseError) {
	if p.current().Type == TokenNot {
		p.advance() // consume negation
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NewNot(child), nil
	}

	return p.parseClause()
}

// parseClause parses: atom ['except' exception]
// The exception list inherits the field of the atom it follows.
func (p *parser) parseClause() (*Node, *ParseError) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenExcept {
		return atom, nil
	}

	exceptToken := p.advance()
	if !isElement(atom) {
		return nil, errorAt(exceptToken, "'"+exceptToken.Value+"' must follow a single term or phrase")
	}
	excluded, err := p.parseException(atom.Field)
	if err != nil {
		return nil, err
	}
	return &Node{Type: NodeException, Child: atom, Except: excluded}, nil
}

// isElement reports whether n is a single term or phrase.
func isElement(n *Node) bool {
	switch n.Type {
	case NodeWord, NodePrefix, NodeSuffix, NodeRegex, NodePhrase:
		return true
	}
	return false
}

// parseAtom parses: '(' or_expr ')' | quoted | term | field value
func (p *parser) parseAtom() (*Node, *ParseError) {
	token := p.current()

	switch token.Type {
	case TokenLParen:
		p.advance() // consume (
		if p.current().Type == TokenRParen {
			return nil, errorAt(token, "Empty brackets")
		}
		node, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TokenRParen {
			return nil, errorAt(token, "Missing closing bracket")
		}
		p.advance() // consume )
		return node, nil

	case TokenQuoted, TokenTerm:
		p.advance()
		return p.element(token, FieldAny)

	case TokenField:
		p.advance()
		return p.parseFieldValue(token)

	case TokenEOF:
		return nil, errorAt(token, "Unexpected end of query")

	case TokenRParen:
		return nil, errorAt(token, "Unmatched closing bracket")

	case TokenExcept:
		return nil, errorAt(token, "'"+token.Value+"' must follow a single term or phrase")

	default:
		return nil, errorAt(token, "Unexpected token: "+tokenTypeName(token.Type))
	}
}

// element turns a quoted string or bare term into a leaf scoped to field.
func (p *parser) element(token Token, field Field) (*Node, *ParseError) {
	if token.Type == TokenQuoted {
		if token.Value == "" {
			return nil, errorAt(token, "Empty quoted phrase")
		}
		return NewPhrase(token.Value, field), nil
	}

	kind, literal, ok := classifyTerm(token.Value)
	if !ok {
		return nil, errorAt(token, "Wildcard term needs at least one non-wildcard character")
	}

	switch kind {
	case NodePrefix:
		return NewPrefix(literal, field), nil
	case NodeSuffix:
		return NewSuffix(literal, field), nil
	case NodeRegex:
		node, err := NewRegex(literal, field)
		if err != nil {
			return nil, errorAt(token, "Invalid wildcard term: "+err.Error())
		}
		return node, nil
	default:
		node := NewWord(literal, field)
		if node.literal == "" {
			return nil, errorAt(token, "Term needs at least one letter or digit")
		}
		return node, nil
	}
}

// parseFieldValue parses the value after "name:" or "@name".
func (p *parser) parseFieldValue(fieldToken Token) (*Node, *ParseError) {
	name := fieldToken.Value
	if strings.EqualFold(name, "rating") {
		return p.parseRating(fieldToken)
	}

	field, ok := lookupField(name)
	if !ok {
		return nil, errorAt(fieldToken, "Unknown field: "+name)
	}

	token := p.current()
	switch token.Type {
	case TokenQuoted, TokenTerm:
		p.advance()
		return p.element(token, field)
	case TokenLParen:
		return p.parseBracketedException(field)
	case TokenEOF:
		return nil, errorAt(fieldToken, "Missing value for field "+name)
	default:
		return nil, errorAt(token, "Expected a term or phrase after field "+name)
	}
}

// parseBracketedException parses: '(' element 'except' exception ')'
// No other bracketed shape is accepted as a field value.
func (p *parser) parseBracketedException(field Field) (*Node, *ParseError) {
	lparen := p.advance() // consume (
	const shapeMsg = "Brackets after a field must contain a term followed by 'except'"

	baseToken := p.current()
	if baseToken.Type != TokenQuoted && baseToken.Type != TokenTerm {
		return nil, errorAt(lparen, shapeMsg)
	}
	p.advance()
	base, err := p.element(baseToken, field)
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenExcept {
		return nil, errorAt(p.current(), shapeMsg)
	}
	p.advance() // consume except

	excluded, err := p.parseException(field)
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenRParen {
		return nil, errorAt(lparen, "Missing closing bracket")
	}
	p.advance() // consume )

	return &Node{Type: NodeException, Child: base, Except: excluded}, nil
}

// parseException parses: element | '(' element (['or'] element)* ')'
// The result is always an Or so that its locations are the union of its
// elements' locations.
func (p *parser) parseException(field Field) (*Node, *ParseError) {
	token := p.current()

	switch token.Type {
	case TokenQuoted, TokenTerm:
		p.advance()
		element, err := p.element(token, field)
		if err != nil {
			return nil, err
		}
		return NewOr(element), nil

	case TokenLParen:
		p.advance() // consume (
		var elements []*Node
		for {
			current := p.current()
			switch current.Type {
			case TokenQuoted, TokenTerm:
				p.advance()
				element, err := p.element(current, field)
				if err != nil {
					return nil, err
				}
				elements = append(elements, element)
				continue
			case TokenOr:
				if len(elements) == 0 {
					return nil, errorAt(current, "Exception list cannot start with 'or'")
				}
				p.advance()
				next := p.current().Type
				if next != TokenQuoted && next != TokenTerm {
					return nil, errorAt(p.current(), "Expected a term or phrase after 'or'")
				}
				continue
			case TokenRParen:
				if len(elements) == 0 {
					return nil, errorAt(token, "Empty exception list")
				}
				p.advance() // consume )
				return NewOr(elements...), nil
			case TokenEOF:
				return nil, errorAt(token, "Missing closing bracket")
			default:
				return nil, errorAt(current, "Unexpected token in exception list: "+tokenTypeName(current.Type))
			}
		}

	case TokenEOF:
		return nil, errorAt(token, "Expected a term or phrase after 'except'")

	default:
		return nil, errorAt(token, "Expected a term or phrase after 'except', got "+tokenTypeName(token.Type))
	}
}

// parseRating parses the value of a rating field. Only a single bare word is
// accepted.
func (p *parser) parseRating(fieldToken Token) (*Node, *ParseError) {
	token := p.current()
	switch token.Type {
	case TokenTerm:
	case TokenEOF:
		return nil, errorAt(fieldToken, "Missing value for field rating")
	default:
		return nil, errorAt(token, "Rating must be a single word: general, mature or adult")
	}

	rating, ok := submission.ParseRating(token.Value)
	if !ok {
		return nil, errorAt(token, "Unknown rating: "+token.Value)
	}
	p.advance()
	return NewRating(rating), nil
}
