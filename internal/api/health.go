package api

import (
	"context"
	"net/http"
	"time"

	"github.com/seantiz/electric/internal/model"
)

const healthTimeout = 2 * time.Second

// healthResponse reports whether the journal is reachable and where the
// most recent run stands.
type healthResponse struct {
	Status  string      `json:"status"`
	Journal string      `json:"journal"`
	Run     *runSummary `json:"run,omitempty"`
}

type runSummary struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Status   string `json:"status"`
	Live     bool   `json:"live"`

	// LastCommand and LastSeq describe the latest exchange the driver
	// published for this run, when the broker has seen one.
	LastCommand string `json:"last_command,omitempty"`
	LastSeq     *int   `json:"last_seq,omitempty"`
}

// handleHealthz answers 200 while the journal is reachable and 503 when it
// is not, since run listings would fail.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("healthz: journal unreachable", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Journal: "unreachable",
		})
		return
	}

	resp := healthResponse{Status: "ok", Journal: "ok"}

	runs, _, err := s.store.ListRuns(ctx, 1, 0)
	if err != nil {
		s.logger.Warn("healthz: latest run", "error", err)
	} else if len(runs) > 0 {
		resp.Run = s.summarize(runs[0])
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) summarize(run *model.Run) *runSummary {
	sum := &runSummary{
		ID:       run.ID,
		Scenario: run.Scenario,
		Status:   run.Status,
	}
	if s.broker == nil {
		return sum
	}
	sum.Live = s.broker.Live(run.ID)
	if x, ok := s.broker.Last(run.ID); ok {
		sum.LastCommand = x.Command
		seq := x.Seq
		sum.LastSeq = &seq
	}
	return sum
}
