package query

import (
	"encoding/json"
	"errors"
)

// CompileResult is the JSON-friendly result of compiling a query.
type CompileResult struct {
	Valid     bool        `json:"valid"`
	AST       *Node       `json:"ast,omitempty"`
	Canonical string      `json:"canonical,omitempty"`
	Error     *ParseError `json:"error,omitempty"`
}

// Explain compiles text and reports the AST or the position of the error.
func Explain(text string) *CompileResult {
	q, err := Compile(text)
	if err != nil {
		var perr *ParseError
		if !errors.As(err, &perr) {
			perr = &ParseError{Message: err.Error()}
		}
		return &CompileResult{
			Valid: false,
			Error: perr,
		}
	}

	return &CompileResult{
		Valid:     true,
		AST:       q.Root(),
		Canonical: q.String(),
	}
}

// ExplainJSON compiles a query and returns the result as JSON.
func ExplainJSON(text string) ([]byte, error) {
	return json.Marshal(Explain(text))
}
