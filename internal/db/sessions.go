package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveSession writes the session and replaces its rows
func (db *DB) SaveSession(ctx context.Context, s *Session) error {
	tables := s.Tables
	if len(tables) == 0 {
		tables = []byte("[]")
	}
	warnings := s.Warnings
	if len(warnings) == 0 {
		warnings = []byte("[]")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO sessions (id, search, language, tables, warnings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), NOW())
		 ON CONFLICT (id) DO UPDATE SET
		     search = $2,
		     language = $3,
		     tables = $4,
		     warnings = $5,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		s.ID, s.Search, s.Language, tables, warnings, nullTime(s.CreatedAt),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_rows WHERE session_id = $1`, s.ID); err != nil {
		return fmt.Errorf("failed to clear session rows: %w", err)
	}

	if len(s.Rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"session_rows"},
			rowColumns,
			pgx.CopyFromSlice(len(s.Rows), func(i int) ([]any, error) {
				return rowValues(s.ID, s.Rows[i]), nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy session rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// GetSession loads a session with its rows, or nil when it does not exist
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var s Session
	err := db.pool.QueryRow(ctx,
		`SELECT id, search, language, tables, warnings, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Search, &s.Language, &s.Tables, &s.Warnings, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT position, display_order, key, site1_value, site2_value, site3_value,
		        final_value, winner, overridden
		 FROM session_rows WHERE session_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get session rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Position, &r.DisplayOrder, &r.Key,
			&r.Values[0], &r.Values[1], &r.Values[2],
			&r.Final, &r.Winner, &r.Overridden); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		s.Rows = append(s.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}
	return &s, nil
}

// DeleteSession removes a session and its rows. It reports whether a row was deleted.
func (db *DB) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordExport stores an audit entry for a generated document
func (db *DB) RecordExport(ctx context.Context, e *Export) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO exports (id, session_id, language, filename, replacements, unmatched, size_bytes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		e.ID, e.SessionID, e.Language, e.Filename, e.Replacements, e.Unmatched, e.SizeBytes,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record export: %w", err)
	}
	return nil
}

// ListExports returns a session's exports, newest first
func (db *DB) ListExports(ctx context.Context, sessionID uuid.UUID) ([]Export, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, language, filename, replacements, unmatched, size_bytes, created_at
		 FROM exports WHERE session_id = $1 ORDER BY created_at DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		var e Export
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Language, &e.Filename,
			&e.Replacements, &e.Unmatched, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
