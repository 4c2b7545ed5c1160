package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	sr "github.com/ineyio/searchrouter"
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Backends:      s.dispatcher.Backends(),
	})
}

// handleSearch handles GET /search?q=&max_results=&strategy=&deadline=.
// Omitted parameters take the dispatcher's configured defaults.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := sr.SearchRequest{
		Query:    strings.TrimSpace(q.Get("q")),
		Strategy: q.Get("strategy"),
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "max_results must be a positive integer")
			return
		}
		req.MaxResults = n
	}

	if v := q.Get("deadline"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, "deadline must be a positive duration such as 5s")
			return
		}
		req.Deadline = d
	}
	if s.config.MaxDeadline > 0 && (req.Deadline == 0 || req.Deadline > s.config.MaxDeadline) {
		req.Deadline = s.config.MaxDeadline
	}

	respondJSON(w, http.StatusOK, s.dispatcher.Search(r.Context(), req))
}

// handleQuotaStatus handles GET /quota.
func (s *Server) handleQuotaStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.dispatcher.QuotaStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to read quota status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read quota status")
		return
	}
	respondJSON(w, http.StatusOK, QuotaResponse{Backends: status})
}

// handleQuotaReset handles POST /quota/reset?backend=. An empty backend resets all.
func (s *Server) handleQuotaReset(w http.ResponseWriter, r *http.Request) {
	backend := strings.TrimSpace(r.URL.Query().Get("backend"))
	if err := s.dispatcher.ResetQuota(r.Context(), backend); err != nil {
		s.logger.Error("failed to reset quota", "backend", backend, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to reset quota")
		return
	}

	reset := backend
	if reset == "" {
		reset = "all"
	}
	respondJSON(w, http.StatusOK, ResetResponse{Reset: reset})
}

// handleStrategies handles GET /strategies.
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StrategiesResponse{Strategies: s.dispatcher.Catalog().Strategies()})
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
