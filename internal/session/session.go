// Package session holds per-user working state: the source tables of the
// last run, the reconciled rows with operator overrides, the search term and
// the selected export language. Each Session guards its own state; sessions
// share nothing.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/types"
)

// Run is the outcome of processing the sources once.
type Run struct {
	Tables   [types.NumSources]*types.SourceTable
	Rows     []types.ReconciledRow
	Warnings []types.SourceWarning
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID        uuid.UUID                            `json:"id"`
	Tables    [types.NumSources]*types.SourceTable `json:"tables"`
	Rows      []types.ReconciledRow                `json:"rows"`
	Search    string                               `json:"search"`
	Language  string                               `json:"language"`
	Warnings  []types.SourceWarning                `json:"warnings"`
	CreatedAt time.Time                            `json:"created_at"`
	UpdatedAt time.Time                            `json:"updated_at"`
}

// Session is one user's working context.
type Session struct {
	mu        sync.RWMutex
	id        uuid.UUID
	tables    [types.NumSources]*types.SourceTable
	rows      []types.ReconciledRow
	search    string
	language  string
	warnings  []types.SourceWarning
	createdAt time.Time
	updatedAt time.Time
}

// New creates an empty session with a fresh ID.
func New(language string) *Session {
	now := time.Now().UTC()
	return &Session{id: uuid.New(), language: language, createdAt: now, updatedAt: now}
}

// Restore rebuilds a session from a snapshot.
func Restore(snap Snapshot) *Session {
	return &Session{
		id:        snap.ID,
		tables:    snap.Tables,
		rows:      copyRows(snap.Rows),
		search:    snap.Search,
		language:  snap.Language,
		warnings:  append([]types.SourceWarning(nil), snap.Warnings...),
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// ApplyRun replaces the tables, rows and warnings with those of run.
// Operator overrides are discarded unless carry is set, in which case they
// are re-applied by key; keys missing from the new rows are returned.
func (s *Session) ApplyRun(run Run, carry bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := copyRows(run.Rows)
	var dropped []string
	if carry {
		rows, dropped = reconcile.CarryOverrides(s.rows, rows)
	}

	s.tables = run.Tables
	s.rows = rows
	s.warnings = append([]types.SourceWarning(nil), run.Warnings...)
	s.touch()
	return dropped
}

// Override sets the final value of the row with key.
func (s *Session) Override(key string, value types.Value) (types.ReconciledRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, changed, err := reconcile.ApplyOverride(s.rows, key, value)
	if err != nil {
		return types.ReconciledRow{}, false, err
	}
	s.rows = updated
	if changed {
		s.touch()
	}
	for _, row := range updated {
		if row.Key == key {
			return row, changed, nil
		}
	}
	return types.ReconciledRow{}, changed, nil
}

// Rows returns a copy of all rows in display order.
func (s *Session) Rows() []types.ReconciledRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRows(s.rows)
}

// View returns the rows whose key contains q, ignoring case.
func (s *Session) View(q string) []types.ReconciledRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reconcile.Filter(s.rows, q)
}

// Filtered returns the rows matching the stored search term.
func (s *Session) Filtered() []types.ReconciledRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reconcile.Filter(s.rows, s.search)
}

// SetSearch stores the search term.
func (s *Session) SetSearch(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.search != q {
		s.search = q
		s.touch()
	}
}

// Search returns the stored search term.
func (s *Session) Search() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// SetLanguage selects the export language.
func (s *Session) SetLanguage(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.language != language {
		s.language = language
		s.touch()
	}
}

// Language returns the selected export language.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// Warnings returns the source warnings of the last run.
func (s *Session) Warnings() []types.SourceWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.SourceWarning(nil), s.warnings...)
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:        s.id,
		Tables:    s.tables,
		Rows:      copyRows(s.rows),
		Search:    s.search,
		Language:  s.language,
		Warnings:  append([]types.SourceWarning(nil), s.warnings...),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) touch() {
	s.updatedAt = time.Now().UTC()
}

func copyRows(rows []types.ReconciledRow) []types.ReconciledRow {
	out := make([]types.ReconciledRow, len(rows))
	copy(out, rows)
	return out
}
