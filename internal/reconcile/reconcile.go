// Package reconcile merges per-source vehicle tables into one ordered table
// with a single winning value per key.
package reconcile

import (
	"github.com/jonathan/specsheet/internal/types"
)

// Option configures a Merger.
type Option func(*Merger)

// WithPriority sets the final-value precedence. Sources missing from the list
// are appended in input order; duplicates and unknown IDs are ignored.
func WithPriority(priority []types.SourceID) Option {
	return func(m *Merger) {
		m.priority = normalizePriority(priority)
	}
}

// Merger joins source tables by key.
type Merger struct {
	priority []types.SourceID
}

// New creates a Merger using types.DefaultPriority unless overridden.
func New(opts ...Option) *Merger {
	m := &Merger{priority: normalizePriority(types.DefaultPriority)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Priority returns the effective precedence order.
func (m *Merger) Priority() []types.SourceID {
	out := make([]types.SourceID, len(m.priority))
	copy(out, m.priority)
	return out
}

// Merge is shorthand for New(opts...).Merge(tables).
func Merge(tables [types.NumSources]*types.SourceTable, opts ...Option) []types.ReconciledRow {
	return New(opts...).Merge(tables)
}

// Merge outer-joins the present tables by key. The first present table in
// input order is the base and fixes the order of its rows; keys first seen in
// later tables follow all base rows in the order they were encountered.
// Input tables are not modified. No tables yields an empty, non-nil result.
func (m *Merger) Merge(tables [types.NumSources]*types.SourceTable) []types.ReconciledRow {
	rows := make([]types.ReconciledRow, 0)
	index := make(map[string]int)

	for slot, table := range tables {
		if table == nil {
			continue
		}
		source := types.AllSources[slot]
		seen := make(map[string]bool, len(table.Fields))
		for _, f := range table.Fields {
			// first occurrence wins within one table
			if seen[f.Key] {
				continue
			}
			seen[f.Key] = true

			i, ok := index[f.Key]
			if !ok {
				i = len(rows)
				index[f.Key] = i
				rows = append(rows, types.ReconciledRow{Key: f.Key, Order: i})
			}
			rows[i].Sources.Set(source, f.Value)
		}
	}

	for i := range rows {
		rows[i].Final, rows[i].Winner = m.Resolve(rows[i].Sources)
	}
	return rows
}

// Resolve picks the final value for one row: the first non-blank present
// value in priority order, else the first present value, else Absent.
func (m *Merger) Resolve(values types.SourceValues) (types.Value, types.SourceID) {
	for _, id := range m.priority {
		if v := values.Get(id); !v.IsBlank() {
			return v, id
		}
	}
	for _, id := range m.priority {
		if v := values.Get(id); v.IsPresent() {
			return v, id
		}
	}
	return types.Absent(), types.SourceNone
}

func normalizePriority(priority []types.SourceID) []types.SourceID {
	out := make([]types.SourceID, 0, types.NumSources)
	used := make(map[types.SourceID]bool, types.NumSources)
	for _, id := range priority {
		if id.Valid() && !used[id] {
			out = append(out, id)
			used[id] = true
		}
	}
	for _, id := range types.AllSources {
		if !used[id] {
			out = append(out, id)
		}
	}
	return out
}
