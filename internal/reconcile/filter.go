package reconcile

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/jonathan/specsheet/internal/types"
)

// Filter returns the rows whose key contains substring, ignoring case.
// An empty substring returns every row. The result is a copy.
func Filter(rows []types.ReconciledRow, substring string) []types.ReconciledRow {
	out := make([]types.ReconciledRow, 0, len(rows))
	if substring == "" {
		return append(out, rows...)
	}

	fold := cases.Fold()
	needle := fold.String(substring)
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		if strings.Contains(fold.String(row.Key), needle) {
			out = append(out, row)
		}
	}
	return out
}
