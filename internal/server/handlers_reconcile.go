package server

import (
	"net/http"

	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/types"
)

// ReconcileResponse is the merged table of a stateless reconcile call.
type ReconcileResponse struct {
	Priority []types.SourceID      `json:"priority"`
	Rows     []types.ReconciledRow `json:"rows"`
}

// handleReconcile merges caller-supplied tables without touching a session.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req types.ReconcileRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	if len(req.NullMarkers) == 0 {
		req.NullMarkers = s.nulls
	}

	merger := s.merger
	priority, err := req.PriorityIDs()
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "priority", Message: err.Error()})
		return
	}
	if len(priority) > 0 {
		merger = reconcile.New(reconcile.WithPriority(priority))
	}

	s.jsonResponse(w, http.StatusOK, ReconcileResponse{
		Priority: merger.Priority(),
		Rows:     merger.Merge(req.SourceTables()),
	})
}
