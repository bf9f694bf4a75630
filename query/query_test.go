package query

import (
	"errors"
	"testing"

	"subscription_watcher/submission"
)

func mustParse(t *testing.T, text string) *Node {
	t.Helper()
	q, err := Compile(text)
	if err != nil {
		t.Fatalf("Expected %q to compile, got error: %v", text, err)
	}
	return q.Root()
}

func TestCompile_EmptyExpression(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := Compile(text)
		if err == nil {
			t.Errorf("Expected error for empty query %q", text)
		}
	}
}

func TestCompile_SimpleTerm(t *testing.T) {
	node := mustParse(t, "deer")
	if node.Type != NodeWord {
		t.Fatalf("Expected word node, got %s", node.Type)
	}
	if node.Value != "deer" {
		t.Errorf("Expected value 'deer', got '%s'", node.Value)
	}
	if node.Field != FieldAny {
		t.Errorf("Expected field any, got %s", node.Field)
	}
}

func TestCompile_QuotedString(t *testing.T) {
	node := mustParse(t, `"hand drawn (sketch)"`)
	if node.Type != NodePhrase {
		t.Fatalf("Expected phrase node, got %s", node.Type)
	}
	if node.Value != "hand drawn (sketch)" {
		t.Errorf("Expected value 'hand drawn (sketch)', got '%s'", node.Value)
	}
}

func TestCompile_QuotedEscapes(t *testing.T) {
	node := mustParse(t, `"say \"hi\" \\o/"`)
	if node.Value != `say "hi" \o/` {
		t.Errorf("Expected escaped quotes and backslash to be resolved, got '%s'", node.Value)
	}
}

func TestCompile_Wildcards(t *testing.T) {
	tests := []struct {
		text  string
		typ   NodeType
		value string
	}{
		{"deer*", NodePrefix, "deer"},
		{"*taur", NodeSuffix, "taur"},
		{"**taur", NodeSuffix, "taur"},
		{"deer**", NodePrefix, "deer"},
		{"fi*st", NodeRegex, "fi*st"},
		{"fi***st", NodeRegex, "fi*st"},
		{"*multi*", NodeRegex, "*multi*"},
		{"a*b*c", NodeRegex, "a*b*c"},
	}

	for _, tt := range tests {
		node := mustParse(t, tt.text)
		if node.Type != tt.typ {
			t.Errorf("%q: expected %s node, got %s", tt.text, tt.typ, node.Type)
		}
		if node.Value != tt.value {
			t.Errorf("%q: expected value '%s', got '%s'", tt.text, tt.value, node.Value)
		}
	}
}

func TestCompile_RegexPatternIsQuoted(t *testing.T) {
	node := mustParse(t, "a.b*c+d")
	if node.Type != NodeRegex {
		t.Fatalf("Expected regex node, got %s", node.Type)
	}
	if node.Regex != `^a\.b(?:.+)c\+d$` {
		t.Errorf("Expected quoted pattern, got '%s'", node.Regex)
	}
}

func TestCompile_ImplicitAnd(t *testing.T) {
	node := mustParse(t, "first document")
	if node.Type != NodeAnd {
		t.Fatalf("Expected and node, got %s", node.Type)
	}
	if len(node.Children) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(node.Children))
	}
}

func TestCompile_OrBindsLoosest(t *testing.T) {
	for _, text := range []string{"a and b or c", "a b or c", "a AND b OR c"} {
		node := mustParse(t, text)
		if node.Type != NodeOr {
			t.Fatalf("%q: expected or node at root, got %s", text, node.Type)
		}
		if len(node.Children) != 2 {
			t.Fatalf("%q: expected 2 children, got %d", text, len(node.Children))
		}
		if node.Children[0].Type != NodeAnd {
			t.Errorf("%q: expected first child to be and, got %s", text, node.Children[0].Type)
		}
		if node.Children[1].Type != NodeWord || node.Children[1].Value != "c" {
			t.Errorf("%q: expected second child to be word c", text)
		}
	}
}

func TestCompile_Grouping(t *testing.T) {
	node := mustParse(t, "(deer or fox) rating:safe")
	if node.Type != NodeAnd {
		t.Fatalf("Expected and node, got %s", node.Type)
	}
	if node.Children[0].Type != NodeOr {
		t.Errorf("Expected grouped or, got %s", node.Children[0].Type)
	}
	if node.Children[1].Type != NodeRating || *node.Children[1].Rating != submission.General {
		t.Errorf("Expected rating general, got %+v", node.Children[1])
	}
}

func TestCompile_Negation(t *testing.T) {
	for _, text := range []string{"-ych", "!ych", "not ych", "NOT ych", "- ych", "! ych"} {
		node := mustParse(t, text)
		if node.Type != NodeNot {
			t.Fatalf("%q: expected not node, got %s", text, node.Type)
		}
		if node.Child.Type != NodeWord || node.Child.Value != "ych" {
			t.Errorf("%q: expected negated word ych", text)
		}
	}
}

func TestCompile_HyphenInsideTermIsLiteral(t *testing.T) {
	node := mustParse(t, "an-example")
	if node.Type != NodeWord || node.Value != "an-example" {
		t.Fatalf("Expected word 'an-example', got %s '%s'", node.Type, node.Value)
	}
}

func TestCompile_Fields(t *testing.T) {
	tests := []struct {
		text  string
		field Field
	}{
		{"title:deer", FieldTitle},
		{"TITLE:deer", FieldTitle},
		{"description:deer", FieldDescription},
		{"desc:deer", FieldDescription},
		{"message:deer", FieldDescription},
		{"keywords:deer", FieldKeywords},
		{"keyword:deer", FieldKeywords},
		{"tag:deer", FieldKeywords},
		{"Tags:deer", FieldKeywords},
		{"artist:deer", FieldArtist},
		{"author:deer", FieldArtist},
		{"poster:deer", FieldArtist},
		{"lower:deer", FieldArtist},
		{"uploader:deer", FieldArtist},
		{"@keywords deer", FieldKeywords},
		{"@title \"deer\"", FieldTitle},
	}

	for _, tt := range tests {
		node := mustParse(t, tt.text)
		if node.Field != tt.field {
			t.Errorf("%q: expected field %s, got %s", tt.text, tt.field, node.Field)
		}
	}
}

func TestCompile_FieldDoesNotExtendToSiblings(t *testing.T) {
	node := mustParse(t, "keyword:first document")
	if node.Type != NodeAnd {
		t.Fatalf("Expected and node, got %s", node.Type)
	}
	if node.Children[0].Field != FieldKeywords {
		t.Errorf("Expected first child scoped to keywords, got %s", node.Children[0].Field)
	}
	if node.Children[1].Field != FieldAny {
		t.Errorf("Expected second child unscoped, got %s", node.Children[1].Field)
	}
}

func TestCompile_RatingSynonyms(t *testing.T) {
	tests := map[string]submission.Rating{
		"rating:general":      submission.General,
		"rating:safe":         submission.General,
		"rating:Mature":       submission.Mature,
		"rating:questionable": submission.Mature,
		"rating:adult":        submission.Adult,
		"RATING:EXPLICIT":     submission.Adult,
		"@rating explicit":    submission.Adult,
	}

	for text, want := range tests {
		node := mustParse(t, text)
		if node.Type != NodeRating {
			t.Fatalf("%q: expected rating node, got %s", text, node.Type)
		}
		if *node.Rating != want {
			t.Errorf("%q: expected %s, got %s", text, want, *node.Rating)
		}
	}
}

func TestCompile_Exception(t *testing.T) {
	node := mustParse(t, `multi* except (multitude or "multi tool" multiplayer)`)
	if node.Type != NodeException {
		t.Fatalf("Expected exception node, got %s", node.Type)
	}
	if node.Child.Type != NodePrefix || node.Child.Value != "multi" {
		t.Errorf("Expected prefix base 'multi', got %s '%s'", node.Child.Type, node.Child.Value)
	}
	if node.Except.Type != NodeOr {
		t.Fatalf("Expected exception list to be an or node, got %s", node.Except.Type)
	}
	if len(node.Except.Children) != 3 {
		t.Fatalf("Expected 3 exceptions, got %d", len(node.Except.Children))
	}
	if node.Except.Children[1].Type != NodePhrase {
		t.Errorf("Expected second exception to be a phrase, got %s", node.Except.Children[1].Type)
	}
}

func TestCompile_ExceptionSingleElementIsStillOr(t *testing.T) {
	node := mustParse(t, "deer ignore reindeer")
	if node.Type != NodeException {
		t.Fatalf("Expected exception node, got %s", node.Type)
	}
	if node.Except.Type != NodeOr || len(node.Except.Children) != 1 {
		t.Errorf("Expected single-element or, got %s with %d children", node.Except.Type, len(node.Except.Children))
	}
}

func TestCompile_ExceptionInheritsField(t *testing.T) {
	for _, text := range []string{
		"title:(deer except (reindeer or deerling))",
		"title:deer except (reindeer or deerling)",
		"@title (deer except (reindeer or deerling))",
	} {
		node := mustParse(t, text)
		if node.Type != NodeException {
			t.Fatalf("%q: expected exception node, got %s", text, node.Type)
		}
		if node.Child.Field != FieldTitle {
			t.Errorf("%q: expected base scoped to title, got %s", text, node.Child.Field)
		}
		for _, c := range node.Except.Children {
			if c.Field != FieldTitle {
				t.Errorf("%q: expected exception %q scoped to title, got %s", text, c.Value, c.Field)
			}
		}
	}
}

func TestCompile_NegatedException(t *testing.T) {
	node := mustParse(t, "-deer except reindeer")
	if node.Type != NodeNot {
		t.Fatalf("Expected not node, got %s", node.Type)
	}
	if node.Child.Type != NodeException {
		t.Errorf("Expected exception under not, got %s", node.Child.Type)
	}
}

func TestCompile_EscapedKeywordIsTerm(t *testing.T) {
	node := mustParse(t, `\and`)
	if node.Type != NodeWord || node.Value != "and" {
		t.Errorf("Expected word 'and', got %s '%s'", node.Type, node.Value)
	}
}

func TestCompile_EscapedSyntax(t *testing.T) {
	node := mustParse(t, `re\:zero`)
	if node.Type != NodeWord || node.Value != "re:zero" {
		t.Errorf("Expected word 're:zero', got %s '%s'", node.Type, node.Value)
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []string{
		`"unterminated`,
		`deer "unterminated`,
		`(deer fox`,
		`deer)`,
		`()`,
		`species:deer`,
		`rating:spicy`,
		`rating:"general"`,
		`rating:(general)`,
		`rating:`,
		`title:(deer fox)`,
		`title:(deer or fox)`,
		`title:(deer except)`,
		`title:(deer except fox`,
		`title:`,
		`title:-deer`,
		`a and`,
		`a or`,
		`or a`,
		`a or or b`,
		`*`,
		`***`,
		`-`,
		`:deer`,
		`@`,
		`deer except`,
		`deer except ()`,
		`deer except (or fox)`,
		`deer except (fox or)`,
		`deer except (fox -bar)`,
		`(deer fox) except bar`,
		`rating:safe except bar`,
		`except deer`,
		`""`,
		`...`,
		`-...`,
		`title:,,`,
		`deer except ...`,
	}

	for _, text := range tests {
		_, err := Compile(text)
		if err == nil {
			t.Errorf("Expected error for %q", text)
			continue
		}
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Expected %q error to match ErrInvalidQuery, got %v", text, err)
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Expected %q error to be a *ParseError, got %T", text, err)
		}
	}
}

func TestCompile_ErrorPosition(t *testing.T) {
	_, err := Compile(`deer "unterminated`)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ParseError, got %v", err)
	}
	if perr.Position != 5 {
		t.Errorf("Expected error at position 5, got %d", perr.Position)
	}
	if perr.Length != 13 {
		t.Errorf("Expected error length 13, got %d", perr.Length)
	}
}

func TestCompile_ErrorPositionCountsCharacters(t *testing.T) {
	_, err := Compile("café species:deer")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ParseError, got %v", err)
	}
	if perr.Message != "Unknown field: species" {
		t.Errorf("Expected unknown field message, got '%s'", perr.Message)
	}
	if perr.Position != 5 {
		t.Errorf("Expected error at character 5, got %d", perr.Position)
	}
	if perr.Length != 8 {
		t.Errorf("Expected error length 8, got %d", perr.Length)
	}
}

func TestCompile_PunctuationOnlyTerm(t *testing.T) {
	_, err := Compile("deer ...")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ParseError, got %v", err)
	}
	if perr.Message != "Term needs at least one letter or digit" {
		t.Errorf("Unexpected message '%s'", perr.Message)
	}
	if perr.Position != 5 || perr.Length != 3 {
		t.Errorf("Expected error at 5 length 3, got %d length %d", perr.Position, perr.Length)
	}

	// Edge punctuation is still trimmed from terms that have a word inside.
	node := mustParse(t, "...deer!")
	if node.Type != NodeWord || node.literal != "deer" {
		t.Errorf("Expected word 'deer', got %s '%s'", node.Type, node.literal)
	}
}

func TestCompile_UnmatchedBracketMessage(t *testing.T) {
	_, err := Compile("deer)")
	if err == nil || err.Error() != "Unmatched closing bracket" {
		t.Errorf("Expected unmatched bracket error, got %v", err)
	}

	_, err = Compile("(deer")
	if err == nil || err.Error() != "Missing closing bracket" {
		t.Errorf("Expected missing bracket error, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	result := Explain("title:deer -ych")
	if !result.Valid {
		t.Fatalf("Expected valid result, got error: %v", result.Error)
	}
	if result.Canonical != "title:deer -ych" {
		t.Errorf("Expected canonical 'title:deer -ych', got '%s'", result.Canonical)
	}

	result = Explain("deer (fox")
	if result.Valid {
		t.Fatal("Expected invalid result")
	}
	if result.Error == nil || result.Error.Position != 5 {
		t.Errorf("Expected error at position 5, got %+v", result.Error)
	}
}

func TestExplainJSON(t *testing.T) {
	data, err := ExplainJSON("deer*")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := `{"valid":true,"ast":{"type":"prefix","value":"deer"},"canonical":"deer*"}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, string(data))
	}

	data, err = ExplainJSON("title:deer")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want = `{"valid":true,"ast":{"type":"word","field":"title","value":"deer"},"canonical":"title:deer"}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, string(data))
	}
}
