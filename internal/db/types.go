package db

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultPageCacheTTL is the default time-to-live for cached pages
const DefaultPageCacheTTL = 24 * time.Hour

// CachedPage is a fetched vehicle page kept for re-use
type CachedPage struct {
	URL         string    `json:"url"`
	HTML        string    `json:"html"`
	ContentType string    `json:"content_type"`
	StatusCode  int       `json:"status_code"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the page is past its expiry at now
func (p *CachedPage) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Session is the stored form of a working session
type Session struct {
	ID        uuid.UUID       `json:"id"`
	Search    string          `json:"search"`
	Language  string          `json:"language"`
	Tables    json.RawMessage `json:"tables"`
	Warnings  json.RawMessage `json:"warnings"`
	Rows      []Row           `json:"rows"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Row is one reconciled row of a session. Nil values are absent.
type Row struct {
	Position     int        `json:"position"`
	DisplayOrder int        `json:"display_order"`
	Key          string     `json:"key"`
	Values       [3]*string `json:"values"`
	Final        *string    `json:"final"`
	Winner       string     `json:"winner"`
	Overridden   bool       `json:"overridden"`
}

// Export is an audit record of one generated document
type Export struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	Language     string     `json:"language"`
	Filename     string     `json:"filename"`
	Replacements int        `json:"replacements"`
	Unmatched    int        `json:"unmatched"`
	SizeBytes    int        `json:"size_bytes"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HashContent computes SHA-256 hash of content for change detection
func HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// rowColumns is the column order used when copying session rows.
var rowColumns = []string{
	"session_id", "position", "display_order", "key",
	"site1_value", "site2_value", "site3_value",
	"final_value", "winner", "overridden",
}

func rowValues(sessionID uuid.UUID, r Row) []any {
	return []any{
		sessionID, r.Position, r.DisplayOrder, r.Key,
		r.Values[0], r.Values[1], r.Values[2],
		r.Final, r.Winner, r.Overridden,
	}
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
