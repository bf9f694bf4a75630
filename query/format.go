package query

import "strings"

// String renders the node as query text. Compiling the result gives a node
// that matches exactly the same submissions.
func (n *Node) String() string {
	switch n.Type {
	case NodeWord, NodePrefix, NodeSuffix, NodeRegex, NodePhrase:
		return fieldPrefix(n.Field) + n.element()

	case NodeRating:
		if n.Rating == nil {
			return ""
		}
		return "rating:" + n.Rating.String()

	case NodeAnd:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			if c.Type == NodeOr && len(c.Children) > 1 {
				parts[i] = "(" + c.String() + ")"
			} else {
				parts[i] = c.String()
			}
		}
		return strings.Join(parts, " ")

	case NodeOr:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return strings.Join(parts, " or ")

	case NodeNot:
		switch n.Child.Type {
		case NodeAnd, NodeOr:
			return "-(" + n.Child.String() + ")"
		}
		return "-" + n.Child.String()

	case NodeException:
		clause := n.Child.element() + " except " + exceptionList(n.Except)
		if n.Child.Field == FieldAny {
			return clause
		}
		return fieldPrefix(n.Child.Field) + "(" + clause + ")"
	}
	return ""
}

// element renders a leaf without its field.
func (n *Node) element() string {
	switch n.Type {
	case NodeWord, NodeRegex:
		return escapeTerm(n.Value)
	case NodePrefix:
		return escapeTerm(n.Value) + "*"
	case NodeSuffix:
		return "*" + escapeTerm(n.Value)
	case NodePhrase:
		return quote(n.Value)
	}
	return "(" + n.String() + ")"
}

func exceptionList(n *Node) string {
	if n.Type != NodeOr {
		return n.element()
	}
	if len(n.Children) == 1 {
		return n.Children[0].element()
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.element()
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func fieldPrefix(f Field) string {
	if f == FieldAny {
		return ""
	}
	return f.String() + ":"
}

// escapeTerm backslash-escapes anything the lexer would otherwise treat as
// syntax. Asterisks are left alone since they are always wildcards.
func escapeTerm(s string) string {
	var b strings.Builder
	if _, isKeyword := keywords[strings.ToLower(s)]; isKeyword {
		b.WriteByte('\\')
	}
	for i, r := range s {
		switch {
		case isTermBreak(r) || r == '\\':
			b.WriteByte('\\')
		case i == 0 && (r == '-' || r == '!' || r == '@'):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// quote renders s as a quoted string.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
