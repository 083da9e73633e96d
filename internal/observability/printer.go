// Package observability provides formatted output for the CLI.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/rendering"
	"github.com/jonathan/specsheet/internal/types"
)

// Format selects how results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// boxWidth is the width of summary boxes
const boxWidth = 60

// absentCell is shown for values a source did not provide.
const absentCell = "-"

// DetectFormat returns explicit when set, otherwise table on a terminal and
// JSON when stdout is piped.
func DetectFormat(explicit string) (Format, error) {
	switch Format(strings.ToLower(explicit)) {
	case FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case "":
	default:
		return "", fmt.Errorf("unknown output format %q (expected table or json)", explicit)
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return FormatTable, nil
	}
	return FormatJSON, nil
}

// Printer handles formatted CLI output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) table(headers []string, rows [][]string, align []tw.Align) error {
	cfg := tablewriter.Config{}
	if len(align) > 0 {
		cfg.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}
	table := tablewriter.NewTable(p.out, tablewriter.WithConfig(cfg))

	h := make([]any, len(headers))
	for i, v := range headers {
		h[i] = v
	}
	table.Header(h...)

	for _, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintRows writes the reconciled table: one column per source, then the
// final value and where it came from. Overridden rows are marked "manual".
func (p *Printer) PrintRows(rows []types.ReconciledRow) error {
	headers := []string{"#", "Key"}
	for _, id := range types.AllSources {
		headers = append(headers, id.Site())
	}
	headers = append(headers, "Final", "From")

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := []string{fmt.Sprintf("%d", r.Order+1), r.Key}
		for _, id := range types.AllSources {
			line = append(line, cell(r.Sources.Get(id)))
		}
		from := r.Winner.String()
		if r.Overridden {
			from = "manual"
		}
		line = append(line, cell(r.Final), from)
		data = append(data, line)
	}

	align := []tw.Align{tw.AlignRight}
	return p.table(headers, data, align)
}

// PrintWarnings lists the sources that produced no data.
func (p *Printer) PrintWarnings(warnings []types.SourceWarning) {
	if len(warnings) == 0 {
		return
	}
	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = w.String()
	}
	p.printBox("SOURCE WARNINGS", strings.Join(lines, "\n"))
}

// PrintLanguages writes the template catalog.
func (p *Printer) PrintLanguages(catalog *pipeline.Catalog) error {
	var data [][]string
	for _, l := range catalog.Languages() {
		path, _ := catalog.Path(l.Name)
		data = append(data, []string{l.Name, path})
	}
	return p.table([]string{"Language", "Template"}, data, nil)
}

// PrintMarkers writes the placeholders of a template, several per line.
func (p *Printer) PrintMarkers(template string, markers []string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Template: %s\n", template)
	fmt.Fprintf(&sb, "Markers:  %d\n", len(markers))
	const perLine = 6
	for i := 0; i < len(markers); i += perLine {
		end := min(i+perLine, len(markers))
		sb.WriteString("\n" + strings.Join(markers[i:end], " "))
	}
	p.printBox("TEMPLATE MARKERS", sb.String())
}

// PrintReport summarises an export.
func (p *Printer) PrintReport(filename string, size int, r rendering.Report) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File:          %s (%d bytes)\n", filename, size)
	fmt.Fprintf(&sb, "Replacements:  %d in %d nodes\n", r.Total, r.NodesRewritten)
	fmt.Fprintf(&sb, "Not in doc:    %s\n", list(r.Unmatched))
	fmt.Fprintf(&sb, "  with value:  %s\n", list(r.UnmatchedWithValue))
	fmt.Fprintf(&sb, "Unbound:       %s", list(r.Unbound))
	p.printBox("EXPORT", sb.String())
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func cell(v types.Value) string {
	if !v.IsPresent() {
		return absentCell
	}
	return v.String()
}

func list(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
