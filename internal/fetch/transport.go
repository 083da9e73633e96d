package fetch

import (
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// DefaultUserAgents is the pool a request's User-Agent is drawn from when
// the caller sets none.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Transport adds a rotating User-Agent and bounded retries to a base
// RoundTripper. Only replayable requests (GET/HEAD without body) are retried.
type Transport struct {
	Base http.RoundTripper

	// RetryMax is the number of retries after the first attempt.
	RetryMax int

	// RetryStatus reports whether a response status should be retried.
	// Nil retries 5xx and 429.
	RetryStatus func(code int) bool

	ua *uaPool
}

// NewTransport wraps base. A nil base uses a clone of http.DefaultTransport.
func NewTransport(base http.RoundTripper, retryMax int, userAgents []string) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	return &Transport{
		Base:     base,
		RetryMax: retryMax,
		ua:       newUAPool(userAgents),
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.ua != nil {
			r.Header.Set("User-Agent", t.ua.random())
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if attempt == max || !t.shouldRetry(resp.StatusCode) {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = &Error{URL: req.URL.String(), Message: http.StatusText(resp.StatusCode)}
		} else {
			lastErr = err
		}
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) shouldRetry(code int) bool {
	if t.RetryStatus != nil {
		return t.RetryStatus(code)
	}
	return code >= 500 || code == http.StatusTooManyRequests
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func newUAPool(uas []string) *uaPool {
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: append([]string(nil), uas...),
	}
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}
