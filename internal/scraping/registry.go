package scraping

import (
	"fmt"

	"github.com/jonathan/specsheet/internal/fetch"
	"github.com/jonathan/specsheet/internal/types"
)

// Registry is a read-only set of scrapers indexed by source.
type Registry struct {
	bySource map[types.SourceID]Scraper
}

// NewRegistry indexes scrapers, rejecting nil, unknown or duplicate sources.
func NewRegistry(scrapers ...Scraper) (*Registry, error) {
	bySource := make(map[types.SourceID]Scraper, len(scrapers))
	for _, s := range scrapers {
		if s == nil {
			return nil, fmt.Errorf("scraper must not be nil")
		}
		id := s.Source()
		if !id.Valid() {
			return nil, fmt.Errorf("scraper has invalid source %d", id)
		}
		if _, ok := bySource[id]; ok {
			return nil, fmt.Errorf("duplicate scraper for %s", id)
		}
		bySource[id] = s
	}
	return &Registry{bySource: bySource}, nil
}

// NewDefaultRegistry registers the three site scrapers. A nil fallback
// disables browser re-rendering.
func NewDefaultRegistry(fetcher, fallback fetch.Fetcher) *Registry {
	r, _ := NewRegistry(
		&Site{ID: types.SourceSite1, Fetcher: fetcher, Fallback: fallback, Parse: ParseVoertuig},
		&Site{ID: types.SourceSite2, Fetcher: fetcher, Fallback: fallback, Parse: ParseTypenscheine},
		&Site{ID: types.SourceSite3, Fetcher: fetcher, Fallback: fallback, Parse: ParseAutoData},
	)
	return r
}

// Get returns the scraper for id.
func (r *Registry) Get(id types.SourceID) (Scraper, bool) {
	if r == nil || r.bySource == nil {
		return nil, false
	}
	s, ok := r.bySource[id]
	return s, ok
}
