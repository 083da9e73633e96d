package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/observability"
	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/types"
)

// resultOptions control what happens to a merged table: overrides, the
// displayed subset, the output format and an optional export.
type resultOptions struct {
	sets     []string
	filter   string
	format   string
	language string
	out      string
}

func (o *resultOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.sets, "set", nil, "Override a final value: key=value, or just key to clear it (repeatable)")
	cmd.Flags().StringVarP(&o.filter, "filter", "f", "", "Only show rows whose key contains this text (case-insensitive)")
	cmd.Flags().StringVar(&o.format, "format", "", "Output format: table or json (default table on a terminal)")
	cmd.Flags().StringVarP(&o.language, "export", "e", "", "Export the rows into this language's template")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "Export path (default datos_exportados_<language>.odt)")
}

// result is the JSON output of process and reconcile.
type result struct {
	Rows     []types.ReconciledRow `json:"rows"`
	Warnings []types.SourceWarning `json:"warnings,omitempty"`
	Export   *exportSummary        `json:"export,omitempty"`
}

type exportSummary struct {
	Path string `json:"path"`
	Size int    `json:"size"`
	*pipeline.Export
}

// parseSet splits a --set argument. A bare key clears the value.
func parseSet(arg string) (string, types.Value, error) {
	key, value, hasValue := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", types.Value{}, fmt.Errorf("invalid --set %q: missing key", arg)
	}
	if !hasValue {
		return key, types.Absent(), nil
	}
	return key, types.Present(value), nil
}

// applySets applies every --set in order.
func applySets(rows []types.ReconciledRow, sets []string) ([]types.ReconciledRow, error) {
	for _, s := range sets {
		key, value, err := parseSet(s)
		if err != nil {
			return nil, err
		}
		updated, _, err := reconcile.ApplyOverride(rows, key, value)
		if err != nil {
			return nil, err
		}
		rows = updated
	}
	return rows, nil
}

// finish applies overrides, exports if asked and prints the outcome.
func (o *resultOptions) finish(ctx context.Context, w io.Writer, exporter *pipeline.Exporter, rows []types.ReconciledRow, warnings []types.SourceWarning) error {
	format, err := observability.DetectFormat(o.format)
	if err != nil {
		return err
	}
	rows, err = applySets(rows, o.sets)
	if err != nil {
		return err
	}

	res := result{Rows: reconcile.Filter(rows, o.filter), Warnings: warnings}
	if o.language != "" {
		// the full table is exported; --filter only narrows the display
		summary, err := o.export(ctx, exporter, rows)
		if err != nil {
			return err
		}
		res.Export = summary
	}

	p := observability.NewPrinter(w)
	if format == observability.FormatJSON {
		return p.JSON(res)
	}
	p.PrintWarnings(res.Warnings)
	if err := p.PrintRows(res.Rows); err != nil {
		return err
	}
	if res.Export != nil {
		p.PrintReport(res.Export.Path, res.Export.Size, res.Export.Report)
	}
	return nil
}

func (o *resultOptions) export(ctx context.Context, exporter *pipeline.Exporter, rows []types.ReconciledRow) (*exportSummary, error) {
	out, err := exporter.Export(ctx, uuid.Nil, rows, o.language)
	if err != nil {
		return nil, err
	}

	path := o.out
	if path == "" {
		path = out.Filename
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, out.Document, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	logging.FromContext(ctx).Info().
		Str("path", path).
		Str("language", out.Language).
		Int("replacements", out.Report.Total).
		Msg("document exported")
	return &exportSummary{Path: path, Size: len(out.Document), Export: out}, nil
}
