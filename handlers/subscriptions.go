package handlers

import (
	"net/http"

	"subscription_watcher/subscriptions"
)

type createSubscriptionRequest struct {
	Destination string `json:"destination"`
	Query       string `json:"query"`
	Paused      bool   `json:"paused,omitempty"`
}

// ListSubscriptionsHandler handles GET /api/subscriptions requests.
// An optional destination parameter limits the list to one destination.
func (a *API) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	subs := a.registry.List(r.URL.Query().Get("destination"))
	if subs == nil {
		subs = []subscriptions.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// CreateSubscriptionHandler handles POST /api/subscriptions requests.
func (a *API) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Destination == "" {
		badRequest(w, "destination is required")
		return
	}

	add := a.registry.Add
	if req.Paused {
		add = a.registry.AddPaused
	}
	sub, err := add(r.Context(), req.Destination, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}

	requestLog(r).WithField("subscription", sub.ID).WithField("destination", sub.Destination).Info("Subscription created")
	writeJSON(w, http.StatusCreated, sub)
}

// GetSubscriptionHandler handles GET /api/subscriptions/{id} requests.
func (a *API) GetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := a.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubscriptionHandler handles DELETE /api/subscriptions/{id} requests.
func (a *API) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.registry.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	requestLog(r).WithField("subscription", id).Info("Subscription removed")
	w.WriteHeader(http.StatusNoContent)
}

// PauseHandler handles POST /api/subscriptions/{id}/pause and /resume requests.
func (a *API) PauseHandler(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := a.registry.SetPaused(r.Context(), r.PathValue("id"), paused)
		if err != nil {
			writeError(w, err)
			return
		}
		requestLog(r).WithField("subscription", sub.ID).WithField("paused", paused).Info("Subscription updated")
		writeJSON(w, http.StatusOK, sub)
	}
}

type blockRequest struct {
	Query string `json:"query"`
}

type blocklistResponse struct {
	Destination string   `json:"destination"`
	Queries     []string `json:"queries"`
	Canonical   string   `json:"canonical"`
}

func (a *API) blocklist(destination string) blocklistResponse {
	queries := a.registry.Blocks(destination)
	if queries == nil {
		queries = []string{}
	}
	return blocklistResponse{
		Destination: destination,
		Queries:     queries,
		Canonical:   a.registry.Blocklist(destination).String(),
	}
}

// GetBlocklistHandler handles GET /api/blocklists/{destination} requests.
func (a *API) GetBlocklistHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.blocklist(r.PathValue("destination")))
}

// AddBlockHandler handles POST /api/blocklists/{destination} requests.
func (a *API) AddBlockHandler(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	destination := r.PathValue("destination")
	if err := a.registry.AddBlock(r.Context(), destination, req.Query); err != nil {
		writeError(w, err)
		return
	}
	requestLog(r).WithField("destination", destination).WithField("query", req.Query).Info("Block added")
	writeJSON(w, http.StatusCreated, a.blocklist(destination))
}

// RemoveBlockHandler handles DELETE /api/blocklists/{destination}?query= requests.
func (a *API) RemoveBlockHandler(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("query")
	if text == "" {
		badRequest(w, "query parameter required")
		return
	}

	destination := r.PathValue("destination")
	if err := a.registry.RemoveBlock(r.Context(), destination, text); err != nil {
		writeError(w, err)
		return
	}
	requestLog(r).WithField("destination", destination).WithField("query", text).Info("Block removed")
	writeJSON(w, http.StatusOK, a.blocklist(destination))
}
