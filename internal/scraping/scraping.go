// Package scraping reads label/value specification tables from the three
// supported vehicle sites.
package scraping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/specsheet/internal/fetch"
	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/types"
)

// Scrape stages reported in Error.
const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// ErrNoRows is returned when a page holds no specification rows.
var ErrNoRows = errors.New("no specification rows found")

// Options tunes a single scrape.
type Options struct {
	// Transmission selects the value column on pages listing manual and
	// automatic variants side by side.
	Transmission types.Transmission
}

// Scraper extracts the raw specification table of one site.
type Scraper interface {
	Source() types.SourceID
	Scrape(ctx context.Context, url string, opts Options) (*types.RawTable, error)
}

// Error is a traceable scrape failure.
type Error struct {
	Source types.SourceID
	Stage  string
	URL    string
	Cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s scrape (%s) of %s failed: %v", e.Source, e.Stage, e.URL, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// ParseFunc extracts fields from a parsed page. It must be pure.
type ParseFunc func(doc *goquery.Document, opts Options) []types.RawField

// Site is a Scraper built from a fetcher and a parser. When the parser finds
// nothing and a Fallback fetcher is set, the page is fetched again through it
// (typically a headless browser) and parsed once more.
type Site struct {
	ID       types.SourceID
	Fetcher  fetch.Fetcher
	Fallback fetch.Fetcher
	Parse    ParseFunc
}

// Source implements Scraper.
func (s *Site) Source() types.SourceID { return s.ID }

// Scrape implements Scraper.
func (s *Site) Scrape(ctx context.Context, url string, opts Options) (*types.RawTable, error) {
	logger := logging.FromContext(ctx).With().Str("source", s.ID.String()).Str("url", url).Logger()

	fields, err := s.fetchParse(ctx, s.Fetcher, url, opts)
	if err == nil && len(fields) == 0 && s.Fallback != nil {
		logger.Info().Msg("no rows in static page, rendering with browser")
		fields, err = s.fetchParse(ctx, s.Fallback, url, opts)
	}
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &Error{Source: s.ID, Stage: StageParse, URL: url, Cause: ErrNoRows}
	}

	logger.Debug().Int("fields", len(fields)).Msg("scraped page")
	return &types.RawTable{Source: s.ID, URL: url, Fields: fields}, nil
}

func (s *Site) fetchParse(ctx context.Context, f fetch.Fetcher, url string, opts Options) ([]types.RawField, error) {
	if f == nil {
		return nil, &Error{Source: s.ID, Stage: StageFetch, URL: url, Cause: errors.New("no fetcher configured")}
	}
	res, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, &Error{Source: s.ID, Stage: StageFetch, URL: url, Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(res.HTML)))
	if err != nil {
		return nil, &Error{Source: s.ID, Stage: StageParse, URL: url, Cause: err}
	}
	return s.Parse(doc, opts), nil
}

// ParseHTML runs parse over an HTML string.
func ParseHTML(parse ParseFunc, html string, opts Options) ([]types.RawField, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return parse(doc, opts), nil
}
