// Package pipeline orchestrates a processing run (scrape, transform and
// reconcile every requested source) and document export.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/scraping"
	"github.com/jonathan/specsheet/internal/session"
	"github.com/jonathan/specsheet/internal/transform"
	"github.com/jonathan/specsheet/internal/types"
)

// Progress steps
const (
	StepScrape    = "scrape"
	StepTransform = "transform"
	StepReconcile = "reconcile"
	StepComplete  = "complete"
)

// Progress categories
const (
	CategorySource = "source"
	CategoryMerge  = "merge"
	CategoryError  = "error"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step     string         `json:"step"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Source   types.SourceID `json:"source,omitempty"`
	Content  any            `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// RunOptions holds the inputs of one run
type RunOptions struct {
	URLs         [types.NumSources]string
	Transmission types.Transmission
	OnProgress   ProgressCallback
}

// OptionsFromRequest converts a validated API request.
func OptionsFromRequest(req *types.ProcessRequest) (RunOptions, error) {
	tr, err := types.ParseTransmission(req.Transmission)
	if err != nil {
		return RunOptions{}, err
	}
	return RunOptions{URLs: req.URLs(), Transmission: tr}, nil
}

func (o *RunOptions) emit(step, category, message string, source types.SourceID, content any) {
	if o.OnProgress != nil {
		o.OnProgress(ProgressEvent{
			Step:     step,
			Category: category,
			Message:  message,
			Source:   source,
			Content:  content,
		})
	}
}

// Processor runs the scrapers and transformers and reconciles their output.
type Processor struct {
	scrapers     *scraping.Registry
	transformers *transform.Set
	merger       *reconcile.Merger
}

// NewProcessor creates a Processor. A nil merger uses the default priority.
func NewProcessor(scrapers *scraping.Registry, transformers *transform.Set, merger *reconcile.Merger) *Processor {
	if merger == nil {
		merger = reconcile.New()
	}
	return &Processor{scrapers: scrapers, transformers: transformers, merger: merger}
}

// Process handles each source with a URL in input order. A source that fails
// to scrape or transform leaves a nil table and a warning; the others still
// run. Only a missing URL for every source, or a cancelled context, is an
// error.
func (p *Processor) Process(ctx context.Context, opts RunOptions) (session.Run, error) {
	var run session.Run

	requested := 0
	for _, u := range opts.URLs {
		if u != "" {
			requested++
		}
	}
	if requested == 0 {
		return run, types.ErrNoURLs
	}

	logger := logging.FromContext(ctx)
	start := time.Now()

	for slot, url := range opts.URLs {
		if url == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return session.Run{}, err
		}

		id := types.AllSources[slot]
		table, err := p.source(ctx, id, url, &opts)
		if err != nil {
			w := types.SourceWarning{Source: id, URL: url, Message: err.Error()}
			run.Warnings = append(run.Warnings, w)
			logger.Warn().Err(err).Str("source", id.String()).Str("url", url).Msg("source skipped")
			opts.emit(StepScrape, CategoryError, w.String(), id, nil)
			continue
		}
		run.Tables[slot] = table
	}

	run.Rows = p.merger.Merge(run.Tables)
	opts.emit(StepReconcile, CategoryMerge, fmt.Sprintf("Reconciled %d rows", len(run.Rows)), types.SourceNone, nil)

	logger.Info().
		Int("requested", requested).
		Int("warnings", len(run.Warnings)).
		Int("rows", len(run.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("run complete")
	opts.emit(StepComplete, CategoryMerge, "Run complete", types.SourceNone, nil)
	return run, nil
}

// source scrapes and transforms one site. Panics inside a scraper or
// transformer are returned as errors.
func (p *Processor) source(ctx context.Context, id types.SourceID, url string, opts *RunOptions) (table *types.SourceTable, err error) {
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("%s processing panicked: %v", id, r)
		}
	}()

	scraper, ok := p.scrapers.Get(id)
	if !ok {
		return nil, fmt.Errorf("no scraper registered for %s", id)
	}

	opts.emit(StepScrape, CategorySource, fmt.Sprintf("Scraping %s", id.Site()), id, nil)
	raw, err := scraper.Scrape(ctx, url, scraping.Options{Transmission: opts.Transmission})
	if err != nil {
		return nil, err
	}

	table, err = p.transformers.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%s transform failed: %w", id, err)
	}
	opts.emit(StepTransform, CategorySource, fmt.Sprintf("%s: %d fields", id.Site(), table.Len()), id, nil)
	return table, nil
}
