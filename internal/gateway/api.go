// ABOUTME: Read-only REST API for front ends, authenticated with bearer tokens
// ABOUTME: Exposes the caller's identity, lists, tasks, stashed links and stats

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/builtins"
	"github.com/2389/ward-gateway/internal/store"
)

// MeResponse is the JSON response for GET /api/me.
type MeResponse struct {
	auth.Identity
	Account *store.Account `json:"account,omitempty"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	Tasks *builtins.TaskStats  `json:"tasks"`
	Links *builtins.StashStats `json:"links"`
}

// registerAPIRoutes registers the API routes behind the identity middleware.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	route := func(path string, h http.HandlerFunc) {
		mux.Handle(path, requireIdentity(getOnly(h)))
	}
	route("/api/me", g.handleMe)
	route("/api/lists", g.handleLists)
	route("/api/tasks", g.handleTasks)
	route("/api/links", g.handleLinks)
	route("/api/stats", g.handleStats)
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

// handleMe handles GET /api/me.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	resp := MeResponse{Identity: caller}

	account, err := g.store.GetAccount(r.Context(), caller.UserID)
	switch {
	case err == nil:
		resp.Account = account
	case errors.Is(err, store.ErrNotFound):
		// signed tokens may carry subjects with no local account
	default:
		g.logger.Error("failed to load account", "user_id", caller.UserID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLists handles GET /api/lists.
func (g *Gateway) handleLists(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	overview, err := builtins.Overview(r.Context(), g.store, caller.UserID)
	if err != nil {
		g.internalError(w, "lists", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleTasks handles GET /api/tasks?listId=&status=.
func (g *Gateway) handleTasks(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	q := r.URL.Query()

	status := q.Get("status")
	switch status {
	case "", store.TaskStatusTodo, store.TaskStatusDone:
	default:
		sendJSONError(w, http.StatusBadRequest, "status must be todo or done")
		return
	}

	tasks, err := builtins.FindTasks(r.Context(), g.store, caller.UserID, q.Get("listId"), status)
	if err != nil {
		g.internalError(w, "tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleLinks handles GET /api/links?tag=.
func (g *Gateway) handleLinks(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	links, err := g.store.ListLinks(r.Context(), caller.UserID, r.URL.Query().Get("tag"))
	if err != nil {
		g.internalError(w, "links", err)
		return
	}
	if links == nil {
		links = []*store.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

// handleStats handles GET /api/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	taskStats, err := builtins.Stats(r.Context(), g.store, caller.UserID)
	if err != nil {
		g.internalError(w, "task stats", err)
		return
	}
	linkStats, err := builtins.LinkStats(r.Context(), g.store, caller.UserID)
	if err != nil {
		g.internalError(w, "link stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Tasks: taskStats, Links: linkStats})
}

func (g *Gateway) internalError(w http.ResponseWriter, what string, err error) {
	g.logger.Error("API request failed", "resource", what, "error", err)
	sendJSONError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes {"error": message}.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
