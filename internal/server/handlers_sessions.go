package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/session"
	"github.com/jonathan/specsheet/internal/types"
)

// sseKeepAlive is the interval between stream pings.
const sseKeepAlive = 15 * time.Second

// CreateSessionRequest is the optional body of POST /sessions.
type CreateSessionRequest struct {
	Language string `json:"language,omitempty"`
}

// ProcessResponse is returned by a processing run.
type ProcessResponse struct {
	SessionID        string                `json:"session_id"`
	Rows             []types.ReconciledRow `json:"rows"`
	Warnings         []types.SourceWarning `json:"warnings"`
	DroppedOverrides []string              `json:"dropped_overrides,omitempty"`
}

// RowsResponse is the filtered table view.
type RowsResponse struct {
	Search string                `json:"search"`
	Total  int                   `json:"total"`
	Rows   []types.ReconciledRow `json:"rows"`
}

// OverrideResponse reports the outcome of an override.
type OverrideResponse struct {
	Row     types.ReconciledRow `json:"row"`
	Changed bool                `json:"changed"`
}

// handleCreateSession starts an empty session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}

	language := req.Language
	if language == "" {
		language = s.exporter.Catalog().Default()
	} else if _, err := s.exporter.Catalog().Path(language); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.store.Create(r.Context(), language)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info().Str("session_id", sess.ID().String()).Msg("session created")
	s.jsonResponse(w, http.StatusCreated, sess.Snapshot())
}

// handleGetSession returns the full session state.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.Snapshot())
}

// handleDeleteSession discards a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), sess.ID()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseProcess validates the process request body.
func (s *Server) parseProcess(r *http.Request) (pipeline.RunOptions, bool, error) {
	var req types.ProcessRequest
	if err := decodeJSON(r, &req, false); err != nil {
		return pipeline.RunOptions{}, false, err
	}
	if err := req.Validate(); err != nil {
		return pipeline.RunOptions{}, false, err
	}
	opts, err := pipeline.OptionsFromRequest(&req)
	if err != nil {
		return pipeline.RunOptions{}, false, &ErrValidation{Field: "transmission", Message: err.Error()}
	}
	carry := s.carry
	if req.CarryOverrides != nil {
		carry = *req.CarryOverrides
	}
	return opts, carry, nil
}

// run processes the sources and stores the outcome in sess.
func (s *Server) run(ctx context.Context, sess *session.Session, opts pipeline.RunOptions, carry bool) (*ProcessResponse, error) {
	run, err := s.processor.Process(ctx, opts)
	if err != nil {
		return nil, err
	}
	dropped := sess.ApplyRun(run, carry)

	// the run outlives a disconnected client; persist it regardless
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.Save(saveCtx, sess); err != nil {
		return nil, err
	}

	return &ProcessResponse{
		SessionID:        sess.ID().String(),
		Rows:             sess.Rows(),
		Warnings:         sess.Warnings(),
		DroppedOverrides: dropped,
	}, nil
}

// handleProcess runs the scrapers and reconciles their tables.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, carry, err := s.parseProcess(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp, err := s.run(r.Context(), sess, opts, carry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleProcessStream is handleProcess with Server-Sent Events progress.
func (s *Server) handleProcessStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, carry, err := s.parseProcess(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts.OnProgress = func(e pipeline.ProgressEvent) {
		if err := sse.WriteEvent(eventProgress, e); err != nil {
			logging.FromContext(r.Context()).Debug().Err(err).Msg("progress event dropped")
		}
	}

	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		keepAlive(sse, done)
	}()
	resp, err := s.run(r.Context(), sess, opts, carry)
	close(done)
	<-stopped
	if err != nil {
		sse.WriteError(publicMessage(err))
		sse.WriteComplete(sess.ID().String(), "failed")
		return
	}
	_ = sse.WriteEvent(eventResult, resp)
	sse.WriteComplete(sess.ID().String(), "completed")
}

// keepAlive pings the stream until done is closed. Slow sources can leave
// the connection silent for longer than proxy idle timeouts.
func keepAlive(sse *SSEWriter, done <-chan struct{}) {
	t := time.NewTicker(sseKeepAlive)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if sse.Ping() != nil {
				return
			}
		}
	}
}

// handleListRows returns the rows matching ?q=, or the stored search term
// when q is not given. A given q is stored for later views.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if q := r.URL.Query(); q.Has("q") {
		if search := q.Get("q"); search != sess.Search() {
			sess.SetSearch(search)
			if err := s.store.Save(r.Context(), sess); err != nil {
				s.fail(w, r, err)
				return
			}
		}
	}

	rows := sess.Filtered()
	s.jsonResponse(w, http.StatusOK, RowsResponse{
		Search: sess.Search(),
		Total:  len(sess.Rows()),
		Rows:   rows,
	})
}

// handleOverrideRow replaces the final value of one row.
func (s *Server) handleOverrideRow(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.OverrideRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	row, changed, err := sess.Override(r.PathValue("key"), types.FromPtr(req.Value))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if changed {
		if err := s.store.Save(r.Context(), sess); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, OverrideResponse{Row: row, Changed: changed})
}

// handleSetLanguage selects the export template language.
func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.LanguageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.exporter.Catalog().Path(req.Language); err != nil {
		s.fail(w, r, err)
		return
	}

	sess.SetLanguage(req.Language)
	if err := s.store.Save(r.Context(), sess); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"language": req.Language})
}
