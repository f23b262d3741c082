// ABOUTME: Response framing for the MCP endpoint: plain JSON or Server-Sent Events
// ABOUTME: Also serves the GET keep-alive stream that holds a session open

package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// prefersEventStream reports whether the Accept header ranks
// text/event-stream above application/json. Ties go to the range listed first.
func prefersEventStream(accept string) bool {
	sseQ, sseAt := -1.0, -1
	jsonQ, jsonAt := -1.0, -1
	for i, part := range strings.Split(accept, ",") {
		mediaType, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		q := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && strings.EqualFold(k, "q") {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					q = f
				}
			}
		}
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "text/event-stream":
			if sseAt < 0 {
				sseQ, sseAt = q, i
			}
		case "application/json":
			if jsonAt < 0 {
				jsonQ, jsonAt = q, i
			}
		}
	}
	switch {
	case sseAt < 0 || sseQ <= 0:
		return false
	case jsonAt < 0 || jsonQ <= 0:
		return true
	case sseQ != jsonQ:
		return sseQ > jsonQ
	default:
		return sseAt < jsonAt
	}
}

// writeMessage writes v as JSON, or as one SSE "message" event when the
// client prefers event streams.
func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode JSON-RPC response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if prefersEventStream(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(status)
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
			s.logger.Warn("failed to write SSE frame", "error", err)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Warn("failed to write JSON-RPC response", "error", err)
	}
}

// handleStream keeps an SSE stream open for a live session, writing comment
// keep-alives until the client goes away or the session is removed. The
// session is removed when the stream ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !prefersEventStream(r.Header.Get("Accept")) {
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	id := sessionID(r)
	sess, status, err := s.lookupOwned(r, id)
	if err != nil {
		http.Error(w, http.StatusText(status)+": "+err.Error(), status)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(SessionHeader, id)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("MCP stream opened", "session_id", id)
	defer func() {
		if s.registry.Remove(id) {
			s.logger.Info("MCP stream closed, session removed", "session_id", id)
		}
	}()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			return
		case <-ticker.C:
			sess.Touch()
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
