package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><table><tr><td>Fuel</td><td>Diesel</td></tr></table></body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<td>Diesel</td>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "text/html", result.ContentType)
	assert.False(t, result.FromCache)
}

func TestURL_InvalidURL(t *testing.T) {
	_, err := URL(context.Background(), "not-a-valid-url", nil)
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestURL_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.NotNil(t, result) // Result is returned even on error
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_SendsHeadersAndUserAgent(t *testing.T) {
	var ua, lang atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		lang.Store(r.Header.Get("Accept-Language"))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.UserAgents = []string{"specsheet-test/1.0"}
	_, err := NewClient(opts).Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "specsheet-test/1.0", ua.Load())
	assert.Equal(t, opts.Headers["Accept-Language"], lang.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	result, err := NewClient(&Options{Retries: 2}).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.HTML)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(nil).Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type fakeRenderer struct {
	html string
	err  error
}

func (r fakeRenderer) Render(context.Context, string) (string, error) {
	return r.html, r.err
}

func TestRenderingFetcher(t *testing.T) {
	f := &RenderingFetcher{Renderer: fakeRenderer{html: "<html>rendered</html>"}}
	res, err := f.Fetch(context.Background(), "https://example.com/car")
	require.NoError(t, err)
	assert.True(t, res.Rendered)
	assert.Equal(t, "<html>rendered</html>", res.HTML)

	_, err = (&RenderingFetcher{Renderer: fakeRenderer{}}).Fetch(context.Background(), "https://example.com")
	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)

	_, err = (&RenderingFetcher{}).Fetch(context.Background(), "https://example.com")
	assert.Error(t, err)
}
