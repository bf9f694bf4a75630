package handlers

import (
	"io/fs"
	"net/http"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"subscription_watcher/query"
	"subscription_watcher/submission"
)

// docsFile is the query language reference inside the docs filesystem.
const docsFile = "query-language.md"

// CompileHandler handles GET /api/query/compile requests.
// It compiles an expression and returns its AST or the error position.
func (a *API) CompileHandler(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	writeJSON(w, http.StatusOK, query.Explain(expr))
}

type testRequest struct {
	Query      string                `json:"query"`
	Submission submission.Submission `json:"submission"`
}

type testResponse struct {
	Matches   bool             `json:"matches"`
	Locations []query.Location `json:"locations"`
}

// TestHandler handles POST /api/query/test requests.
// It evaluates a query against a submission supplied in the body.
func (a *API) TestHandler(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !decodeBody(w, r, &req) {
		return
	}

	q, err := query.Compile(req.Query)
	if err != nil {
		writeError(w, err)
		return
	}

	locs := q.Highlights(&req.Submission)
	if locs == nil {
		locs = []query.Location{}
	}
	writeJSON(w, http.StatusOK, testResponse{
		Matches:   q.Matches(&req.Submission),
		Locations: locs,
	})
}

// DocsHandler handles GET /api/docs/query requests.
// It renders the query language documentation as HTML.
func (a *API) DocsHandler(w http.ResponseWriter, r *http.Request) {
	if a.docs == nil {
		http.Error(w, "Documentation not found", http.StatusNotFound)
		return
	}
	mdContent, err := fs.ReadFile(a.docs, docsFile)
	if err != nil {
		http.Error(w, "Documentation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(renderMarkdown(mdContent))
}

func renderMarkdown(md []byte) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})

	return markdown.Render(doc, renderer)
}
