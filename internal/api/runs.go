package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/electric/internal/model"
	"github.com/seantiz/electric/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// exchangesResponse is the JSON response for GET /v1/runs/{id}/exchanges.
type exchangesResponse struct {
	RunID     string           `json:"run_id"`
	Exchanges []model.Exchange `json:"exchanges"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetExchanges(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	xs, err := s.store.GetExchanges(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("get exchanges", "run_id", run.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get exchanges")
		return
	}
	if xs == nil {
		xs = []model.Exchange{}
	}

	s.writeJSON(w, http.StatusOK, exchangesResponse{
		RunID:     run.ID,
		Exchanges: xs,
	})
}

// lookupRun loads the run named in the URL, writing the error response
// itself when it cannot.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	return run, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
