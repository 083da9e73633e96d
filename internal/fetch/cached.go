package fetch

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/logging"
)

// PageStore persists fetched pages. *db.DB implements it.
type PageStore interface {
	GetFreshPage(ctx context.Context, url string, ttl time.Duration) (*db.CachedPage, error)
	UpsertPage(ctx context.Context, page *db.CachedPage) error
	ExpirePage(ctx context.Context, url string) error
}

// CachedFetcher wraps a Fetcher with a page cache. Concurrent fetches of the
// same URL share one upstream request.
type CachedFetcher struct {
	next  Fetcher
	store PageStore
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedFetcher wraps next. A nil store disables caching but keeps
// request de-duplication.
func NewCachedFetcher(next Fetcher, store PageStore, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = db.DefaultPageCacheTTL
	}
	return &CachedFetcher{next: next, store: store, ttl: ttl}
}

// Fetch returns a fresh cached page or fetches and stores it.
func (f *CachedFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	logger := logging.FromContext(ctx)

	if f.store != nil {
		cached, err := f.store.GetFreshPage(ctx, url, f.ttl)
		if err != nil {
			logger.Warn().Err(err).Str("url", url).Msg("page cache lookup failed")
		} else if cached != nil {
			logger.Debug().Str("url", url).Msg("page cache hit")
			return &Result{
				URL:         cached.URL,
				HTML:        cached.HTML,
				ContentType: cached.ContentType,
				StatusCode:  cached.StatusCode,
				FromCache:   true,
			}, nil
		}
	}

	v, err, shared := f.group.Do(url, func() (interface{}, error) {
		res, err := f.next.Fetch(ctx, url)
		if err != nil {
			return res, err
		}
		if f.store != nil {
			page := &db.CachedPage{
				URL:         url,
				HTML:        res.HTML,
				ContentType: res.ContentType,
				StatusCode:  res.StatusCode,
			}
			if err := f.store.UpsertPage(ctx, page); err != nil {
				logger.Warn().Err(err).Str("url", url).Msg("failed to store page")
			}
		}
		return res, nil
	})
	if shared {
		logger.Debug().Str("url", url).Msg("shared in-flight fetch")
	}

	res, _ := v.(*Result)
	if err != nil {
		return res, err
	}
	out := *res
	return &out, nil
}

// Invalidate forces the next Fetch of url to go upstream.
func (f *CachedFetcher) Invalidate(ctx context.Context, url string) error {
	if f.store == nil {
		return nil
	}
	return f.store.ExpirePage(ctx, url)
}
