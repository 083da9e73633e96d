package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetFreshPage returns the cached page for url if it was fetched within ttl,
// or nil when there is none.
func (db *DB) GetFreshPage(ctx context.Context, url string, ttl time.Duration) (*CachedPage, error) {
	var p CachedPage
	err := db.pool.QueryRow(ctx,
		`SELECT url, html, content_type, status_code, content_hash, fetched_at, expires_at
		 FROM page_cache
		 WHERE url = $1 AND expires_at > NOW() AND fetched_at > $2`,
		url, time.Now().Add(-ttl),
	).Scan(&p.URL, &p.HTML, &p.ContentType, &p.StatusCode, &p.ContentHash, &p.FetchedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached page: %w", err)
	}
	return &p, nil
}

// UpsertPage stores page, replacing any previous copy of the same URL
func (db *DB) UpsertPage(ctx context.Context, page *CachedPage) error {
	page.ContentHash = HashContent(page.HTML)
	if page.ExpiresAt.IsZero() {
		page.ExpiresAt = time.Now().Add(DefaultPageCacheTTL)
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO page_cache (url, html, content_type, status_code, content_hash, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		 ON CONFLICT (url) DO UPDATE SET
		     html = $2,
		     content_type = $3,
		     status_code = $4,
		     content_hash = $5,
		     fetched_at = NOW(),
		     expires_at = $6
		 RETURNING fetched_at`,
		page.URL, page.HTML, page.ContentType, page.StatusCode, page.ContentHash, page.ExpiresAt,
	).Scan(&page.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cached page: %w", err)
	}
	return nil
}

// ExpirePage marks the cached copy of url as stale
func (db *DB) ExpirePage(ctx context.Context, url string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE page_cache SET expires_at = NOW() - INTERVAL '1 second' WHERE url = $1`,
		url,
	)
	if err != nil {
		return fmt.Errorf("failed to expire cached page: %w", err)
	}
	return nil
}

// PurgeExpiredPages deletes expired pages and returns how many were removed
func (db *DB) PurgeExpiredPages(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM page_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge page cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
