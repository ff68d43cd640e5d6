package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/internal/orchestrator"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// utteranceRequest is the webhook envelope. Context is opaque correlation
// data echoed back on the response event; an envelope without it is invalid.
type utteranceRequest struct {
	Text     string `json:"text"`
	Metadata struct {
		Context map[string]interface{} `json:"context"`
	} `json:"metadata"`
}

// handleUtterance validates the envelope and enqueues the event. The reply
// itself arrives asynchronously on the platform event bus, so success here
// is 202.
func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	err := s.orch.HandleEvent(orchestrator.Event{
		Text:    req.Text,
		Context: req.Metadata.Context,
	})
	switch {
	case errors.Is(err, orchestrator.ErrMissingContext):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing metadata.context"})
	case errors.Is(err, orchestrator.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	case err != nil:
		log.Error().Err(err).Msg("utterance_enqueue_failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.records.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("audit_list_failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	valid, err := s.records.Verify(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    id,
		"valid": valid,
	})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  s.policy.VersionTag,
		"entities": s.policy.Entities,
		"services": s.policy.Services,
		"actions":  s.policy.ActionNames(),
	})
}
