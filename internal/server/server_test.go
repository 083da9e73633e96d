package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/rendering"
	"github.com/jonathan/specsheet/internal/rendering/odttest"
	"github.com/jonathan/specsheet/internal/scraping"
	"github.com/jonathan/specsheet/internal/server/ratelimit"
	"github.com/jonathan/specsheet/internal/session"
	"github.com/jonathan/specsheet/internal/transform"
	"github.com/jonathan/specsheet/internal/types"
)

type stubScraper struct {
	id     types.SourceID
	fields []types.RawField
	err    error
}

func (s *stubScraper) Source() types.SourceID { return s.id }

func (s *stubScraper) Scrape(_ context.Context, url string, _ scraping.Options) (*types.RawTable, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.RawTable{Source: s.id, URL: url, Fields: s.fields}, nil
}

func fields(pairs ...string) []types.RawField {
	var out []types.RawField
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.RawField{Label: pairs[i], Value: pairs[i+1]})
	}
	return out
}

// memHistory records exports in memory.
type memHistory struct {
	mu      sync.Mutex
	exports []db.Export
}

func (m *memHistory) RecordExport(_ context.Context, e *db.Export) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append([]db.Export{*e}, m.exports...)
	return nil
}

func (m *memHistory) ListExports(_ context.Context, id uuid.UUID) ([]db.Export, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Export
	for _, e := range m.exports {
		if e.SessionID != nil && *e.SessionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type testEnv struct {
	server  *Server
	store   *session.MemoryStore
	history *memHistory
}

func newTestEnv(t *testing.T, rl ratelimit.Config) *testEnv {
	t.Helper()

	cfgDir := t.TempDir()
	for _, id := range types.AllSources {
		cfg := "source: " + id.String() + "\nkeep_unmapped: true\n"
		require.NoError(t, os.WriteFile(filepath.Join(cfgDir, id.String()+".yaml"), []byte(cfg), 0o644))
	}
	transformers, err := transform.Load(cfgDir)
	require.NoError(t, err)

	registry, err := scraping.NewRegistry(
		&stubScraper{id: types.SourceSite1, fields: fields("Brand", "Volvo", "Power", "140 kW", "Doors", "5")},
		&stubScraper{id: types.SourceSite2, fields: fields("Power", "143 kW", "Fuel", "None")},
		&stubScraper{id: types.SourceSite3, err: scraping.ErrNoRows},
	)
	require.NoError(t, err)

	tplDir := t.TempDir()
	odttest.Write(t, tplDir, "en.odt", odttest.Paragraphs("Brand {{B1}}", "Power {{B2}}", "Doors {{B3}}"))
	odttest.Write(t, tplDir, "de.odt", odttest.Paragraphs("Marke {{B1}}"))
	catalog := pipeline.NewCatalog(tplDir, []pipeline.Language{
		{Name: "Inglés", Template: "en.odt"},
		{Name: "Alemán", Template: "de.odt"},
		{Name: "Italiano", Template: "missing.odt"},
	})

	store := session.NewMemoryStore()
	history := &memHistory{}
	s := New(Config{RateLimit: rl}, Deps{
		Store:     store,
		Processor: pipeline.NewProcessor(registry, transformers, nil),
		Exporter:  pipeline.NewExporter(catalog, rendering.DefaultStyle(), history),
		History:   history,
	})
	t.Cleanup(s.rateLimiter.Stop)
	return &testEnv{server: s, store: store, history: history}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session.Snapshot](t, w).ID.String()
}

func (e *testEnv) process(t *testing.T, id string) ProcessResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions/"+id+"/process", types.ProcessRequest{
		Site1URL: "https://a.test/car",
		Site2URL: "https://b.test/car",
		Site3URL: "https://c.test/car",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[ProcessResponse](t, w)
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	w := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateAndGetSession(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})

	w := e.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Language: "Alemán"})
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decode[session.Snapshot](t, w)
	assert.Equal(t, "Alemán", snap.Language)

	w = e.do(t, http.MethodGet, "/sessions/"+snap.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snap.ID, decode[session.Snapshot](t, w).ID)

	// default language is the first catalog entry
	id := e.createSession(t)
	w = e.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, "Inglés", decode[session.Snapshot](t, w).Language)

	w = e.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Language: "Klingon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession_Errors(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})

	w := e.do(t, http.MethodGet, "/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "not found")
}

func TestDeleteSession(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	w := e.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, e.store.Len())

	w = e.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcess(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	resp := e.process(t, id)
	require.Len(t, resp.Rows, 4)

	final := map[string]string{}
	for _, r := range resp.Rows {
		final[r.Key] = r.Final.String()
	}
	assert.Equal(t, "143 kW", final["Power"])
	assert.Equal(t, "", final["Fuel"])
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, types.SourceSite3, resp.Warnings[0].Source)
}

func TestProcess_Validation(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	tests := map[string]any{
		"no urls":      types.ProcessRequest{},
		"bad url":      types.ProcessRequest{Site1URL: "not a url"},
		"transmission": types.ProcessRequest{Site1URL: "https://a.test", Transmission: "cvt"},
		"unknown":      map[string]string{"site9_url": "https://x.test"},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/sessions/"+id+"/process", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestProcessStream(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	w := e.do(t, http.MethodPost, "/sessions/"+id+"/process/stream", types.ProcessRequest{Site1URL: "https://a.test"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var events []string
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Contains(t, events, "progress")
	assert.Contains(t, events, "result")
	assert.Equal(t, "complete", events[len(events)-1])

	rows := e.do(t, http.MethodGet, "/sessions/"+id+"/rows", nil)
	assert.Len(t, decode[RowsResponse](t, rows).Rows, 3)
}

func TestRows_SearchIsStored(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)
	e.process(t, id)

	w := e.do(t, http.MethodGet, "/sessions/"+id+"/rows?q=POW", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RowsResponse](t, w)
	assert.Equal(t, "POW", resp.Search)
	assert.Equal(t, 4, resp.Total)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Power", resp.Rows[0].Key)

	// stored term applies when q is absent; an explicit empty q clears it
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/rows", nil)
	assert.Len(t, decode[RowsResponse](t, w).Rows, 1)
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/rows?q=", nil)
	assert.Len(t, decode[RowsResponse](t, w).Rows, 4)
}

func TestOverrideRow(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)
	e.process(t, id)

	value := "150 kW"
	w := e.do(t, http.MethodPut, "/sessions/"+id+"/rows/Power", types.OverrideRequest{Value: &value})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[OverrideResponse](t, w)
	assert.True(t, resp.Changed)
	assert.True(t, resp.Row.Overridden)
	assert.Equal(t, "150 kW", resp.Row.Final.String())

	// same value again is a no-op
	w = e.do(t, http.MethodPut, "/sessions/"+id+"/rows/Power", types.OverrideRequest{Value: &value})
	assert.False(t, decode[OverrideResponse](t, w).Changed)

	// keys with spaces arrive escaped
	w = e.do(t, http.MethodPut, "/sessions/"+id+"/rows/"+url.PathEscape("Top speed"), types.OverrideRequest{Value: &value})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverride_CarriedOnRequest(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)
	e.process(t, id)

	value := "Volvo Cars"
	e.do(t, http.MethodPut, "/sessions/"+id+"/rows/Brand", types.OverrideRequest{Value: &value})

	carry := true
	w := e.do(t, http.MethodPost, "/sessions/"+id+"/process", types.ProcessRequest{
		Site1URL: "https://a.test", CarryOverrides: &carry,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Volvo Cars", decode[ProcessResponse](t, w).Rows[0].Final.String())

	// without carry the override is discarded
	e.process(t, id)
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/rows", nil)
	assert.Equal(t, "Volvo", decode[RowsResponse](t, w).Rows[0].Final.String())
}

func TestSetLanguage(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	w := e.do(t, http.MethodPut, "/sessions/"+id+"/language", types.LanguageRequest{Language: "Alemán"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPut, "/sessions/"+id+"/language", types.LanguageRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPut, "/sessions/"+id+"/language", types.LanguageRequest{Language: "Klingon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, "Alemán", decode[session.Snapshot](t, w).Language)
}

func TestExport(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)
	e.process(t, id)

	w := e.do(t, http.MethodGet, "/sessions/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, rendering.MimeType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "datos_exportados_")
	assert.Equal(t, "3", w.Header().Get("X-Replacements"))

	text := odttest.Text(t, w.Body.Bytes())
	assert.Contains(t, text, "Brand Volvo")
	assert.Contains(t, text, "Power 143 kW")
	assert.Contains(t, text, "Doors 5")

	w = e.do(t, http.MethodGet, "/sessions/"+id+"/export?language=Alem%C3%A1n", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, odttest.Text(t, w.Body.Bytes()), "Marke Volvo")
}

func TestListExports(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	w := e.do(t, http.MethodGet, "/sessions/"+id+"/exports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[ExportsResponse](t, w).Exports)

	e.process(t, id)
	e.do(t, http.MethodGet, "/sessions/"+id+"/export", nil)
	e.do(t, http.MethodGet, "/sessions/"+id+"/export?language=Alem%C3%A1n", nil)

	w = e.do(t, http.MethodGet, "/sessions/"+id+"/exports", nil)
	exports := decode[ExportsResponse](t, w).Exports
	require.Len(t, exports, 2)
	assert.Equal(t, "Alemán", exports[0].Language)
	assert.Equal(t, 3, exports[1].Replacements)
	assert.Equal(t, 1, exports[1].Unmatched, "{{B4}} is not in the template")
}

func TestExport_Errors(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	id := e.createSession(t)

	w := e.do(t, http.MethodGet, "/sessions/"+id+"/export", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "nothing processed yet")

	e.process(t, id)
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/export?language=Italiano", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/sessions/"+id+"/export?language=Klingon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLanguagesAndMarkers(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})

	w := e.do(t, http.MethodGet, "/languages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	langs := decode[LanguagesResponse](t, w)
	assert.Equal(t, "Inglés", langs.Default)
	assert.Len(t, langs.Languages, 3)

	w = e.do(t, http.MethodGet, "/languages/"+url.PathEscape("Inglés")+"/markers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"{{B1}}", "{{B2}}", "{{B3}}"}, decode[MarkersResponse](t, w).Markers)

	w = e.do(t, http.MethodGet, "/languages/Italiano/markers", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconcile(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	str := func(s string) *string { return &s }

	w := e.do(t, http.MethodPost, "/reconcile", types.ReconcileRequest{
		Tables: map[string][]types.RawEntry{
			"site1": {{Key: "Engine", Value: str("2.0L")}},
			"site3": {{Key: "Engine", Value: str("None")}, {Key: "Weight", Value: str("1500kg")}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ReconcileResponse](t, w)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "2.0L", resp.Rows[0].Final.String())
	assert.Equal(t, types.SourceSite1, resp.Rows[0].Winner)
	assert.Equal(t, "Weight", resp.Rows[1].Key)
	assert.Equal(t, types.DefaultPriority, resp.Priority)

	w = e.do(t, http.MethodPost, "/reconcile", types.ReconcileRequest{
		Tables: map[string][]types.RawEntry{
			"site1": {{Key: "Engine", Value: str("2.0L")}},
			"site2": {{Key: "Engine", Value: str("1.9L")}},
		},
		Priority: []string{"site1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2.0L", decode[ReconcileResponse](t, w).Rows[0].Final.String())

	w = e.do(t, http.MethodPost, "/reconcile", types.ReconcileRequest{
		Tables: map[string][]types.RawEntry{"site7": {{Key: "x"}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcile_ConfiguredNullMarkers(t *testing.T) {
	s := New(Config{}, Deps{NullMarkers: []string{"-"}})
	t.Cleanup(s.rateLimiter.Stop)
	e := &testEnv{server: s}
	str := func(v string) *string { return &v }

	tables := map[string][]types.RawEntry{
		"site2": {{Key: "Fuel", Value: str("-")}},
		"site1": {{Key: "Fuel", Value: str("Diesel")}},
	}
	w := e.do(t, http.MethodPost, "/reconcile", types.ReconcileRequest{Tables: tables})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rows := decode[ReconcileResponse](t, w).Rows
	require.Len(t, rows, 1)
	assert.Equal(t, "Diesel", rows[0].Final.String())
	assert.Equal(t, types.SourceSite1, rows[0].Winner)

	// markers in the body replace the configured ones
	w = e.do(t, http.MethodPost, "/reconcile", types.ReconcileRequest{Tables: tables, NullMarkers: []string{"None"}})
	require.Equal(t, http.StatusOK, w.Code)
	rows = decode[ReconcileResponse](t, w).Rows
	assert.Equal(t, "-", rows[0].Final.String())
	assert.Equal(t, types.SourceSite2, rows[0].Winner)
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Endpoints:     []ratelimit.EndpointConfig{{Path: "/languages", Method: "GET", Limit: 2, Window: time.Hour}},
	})

	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodGet, "/languages", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	w := e.do(t, http.MethodGet, "/languages", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health is never limited
	w = e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, ratelimit.Config{})
	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")

	s := New(Config{AllowedOrigins: []string{"https://ui.test"}}, Deps{Store: session.NewMemoryStore()})
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ui.test")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "https://ui.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	stopped := make(chan struct{})
	s := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, Deps{
		Store:      session.NewMemoryStore(),
		OnShutdown: func() { close(stopped) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	<-stopped
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ErrValidation{Message: "x"}, http.StatusBadRequest},
		{types.ErrNoURLs, http.StatusBadRequest},
		{&pipeline.UnknownLanguageError{Language: "x"}, http.StatusBadRequest},
		{session.ErrNotFound, http.StatusNotFound},
		{&rendering.TemplateNotFoundError{Path: "x.odt"}, http.StatusNotFound},
		{pipeline.ErrNoData, http.StatusConflict},
		{&rendering.RenderError{Message: "boom"}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
	assert.Equal(t, "export failed", publicMessage(&rendering.RenderError{Message: "zip"}))
	assert.Equal(t, "internal server error", publicMessage(errors.New("db password leaked")))
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.WriteEvent(eventProgress, map[string]string{"step": "scrape"}))
	require.NoError(t, sse.Ping())
	sse.WriteComplete("abc", "completed")

	body := w.Body.String()
	assert.Contains(t, body, "id: 1\nevent: progress\ndata: {\"step\":\"scrape\"}\n\n")
	assert.Contains(t, body, ": ping\n\n")
	assert.Contains(t, body, "id: 2\nevent: complete\n")
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}
