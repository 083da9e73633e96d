package server

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/pipeline"
)

// LanguagesResponse lists the template catalog.
type LanguagesResponse struct {
	Default   string              `json:"default"`
	Languages []pipeline.Language `json:"languages"`
}

// MarkersResponse lists a template's placeholders.
type MarkersResponse struct {
	Language string   `json:"language"`
	Markers  []string `json:"markers"`
}

// ExportsResponse is a session's export history, newest first.
type ExportsResponse struct {
	SessionID string      `json:"session_id"`
	Exports   []db.Export `json:"exports"`
}

// handleListLanguages returns the template catalog.
func (s *Server) handleListLanguages(w http.ResponseWriter, _ *http.Request) {
	c := s.exporter.Catalog()
	s.jsonResponse(w, http.StatusOK, LanguagesResponse{Default: c.Default(), Languages: c.Languages()})
}

// handleListMarkers lists the {{B<n>}} markers in a language's template.
func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	language := r.PathValue("language")
	markers, err := s.exporter.Catalog().Placeholders(language)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, MarkersResponse{Language: language, Markers: markers})
}

// handleExport renders the session's rows into the chosen template and
// returns the document. ?language= overrides the session's language.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	language := r.URL.Query().Get("language")
	if language == "" {
		language = sess.Language()
	}
	if language == "" {
		language = s.exporter.Catalog().Default()
	}

	out, err := s.exporter.Export(r.Context(), sess.ID(), sess.Rows(), language)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Document)))
	w.Header().Set("X-Replacements", strconv.Itoa(out.Report.Total))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Document); err != nil {
		s.logger.Debug().Err(err).Msg("export download interrupted")
	}
}

// handleListExports returns the audit records of a session's exports.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	exports := []db.Export{}
	if s.history != nil {
		list, err := s.history.ListExports(r.Context(), sess.ID())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if list != nil {
			exports = list
		}
	}
	s.jsonResponse(w, http.StatusOK, ExportsResponse{SessionID: sess.ID().String(), Exports: exports})
}
