// Package handlers provides HTTP handlers for the watcher API.
package handlers

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/sirupsen/logrus"

	"subscription_watcher/auth"
	"subscription_watcher/query"
	"subscription_watcher/subscriptions"
)

var log = logrus.WithField("component", "handlers")

// maxBodySize bounds request bodies accepted by the API.
const maxBodySize = 1 << 20

// FeedStatus reports the health of the submission feed.
type FeedStatus interface {
	LastSeen() string
}

// API serves the query, subscription and blocklist endpoints.
type API struct {
	registry *subscriptions.Registry
	docs     fs.FS
	feed     FeedStatus
}

// New creates the API around a registry. docs holds the markdown reference
// served at /api/docs/query and may be nil.
func New(registry *subscriptions.Registry, docs fs.FS, feed FeedStatus) *API {
	return &API{
		registry: registry,
		docs:     docs,
		feed:     feed,
	}
}

// requestLog returns a log entry naming the API client behind r, if any.
func requestLog(r *http.Request) *logrus.Entry {
	if client := auth.GetClientFromContext(r.Context()); client != nil {
		return log.WithField("client", client.Name).WithField("auth", client.Method)
	}
	return log
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
	Length   *int   `json:"length,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var perr *query.ParseError
	switch {
	case errors.As(err, &perr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    perr.Message,
			Position: &perr.Position,
			Length:   &perr.Length,
		})
	case errors.Is(err, subscriptions.ErrEmptyQuery):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, subscriptions.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, subscriptions.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// HealthHandler handles GET /healthz requests.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"subscriptions": len(a.registry.List("")),
	}
	if a.feed != nil {
		resp["last_seen"] = a.feed.LastSeen()
	}
	writeJSON(w, http.StatusOK, resp)
}
