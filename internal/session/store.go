package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/types"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Store keeps sessions.
type Store interface {
	Create(ctx context.Context, language string) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*Session)}
}

func (m *MemoryStore) Create(_ context.Context, language string) (*Session, error) {
	s := New(language)
	m.put(s)
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.put(s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of sessions held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

// SessionDB is the persistence used by PersistentStore. *db.DB implements it.
type SessionDB interface {
	SaveSession(ctx context.Context, s *db.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) (bool, error)
}

// PersistentStore writes sessions through to a database and keeps live
// sessions in memory so concurrent requests share one Session value.
type PersistentStore struct {
	cache *MemoryStore
	db    SessionDB
	// writes holds one *sync.Mutex per session ID so saves of a session
	// reach the database in the order their snapshots were taken.
	writes sync.Map
}

// NewPersistentStore wraps database.
func NewPersistentStore(database SessionDB) *PersistentStore {
	return &PersistentStore{cache: NewMemoryStore(), db: database}
}

func (p *PersistentStore) Create(ctx context.Context, language string) (*Session, error) {
	s := New(language)
	if err := p.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PersistentStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	if s, err := p.cache.Get(ctx, id); err == nil {
		return s, nil
	}

	rec, err := p.db.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	snap, err := fromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	s := Restore(snap)
	p.cache.put(s)
	logging.FromContext(ctx).Debug().Str("session_id", id.String()).Msg("session loaded from database")
	return s, nil
}

func (p *PersistentStore) Save(ctx context.Context, s *Session) error {
	mu := p.writeLock(s.ID())
	mu.Lock()
	defer mu.Unlock()

	rec, err := toRecord(s.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID(), err)
	}
	if err := p.db.SaveSession(ctx, rec); err != nil {
		return err
	}
	p.cache.put(s)
	return nil
}

func (p *PersistentStore) writeLock(id uuid.UUID) *sync.Mutex {
	mu, _ := p.writes.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (p *PersistentStore) Delete(ctx context.Context, id uuid.UUID) error {
	_ = p.cache.Delete(ctx, id)
	p.writes.Delete(id)
	deleted, err := p.db.DeleteSession(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func toRecord(snap Snapshot) (*db.Session, error) {
	tables, err := json.Marshal(snap.Tables)
	if err != nil {
		return nil, err
	}
	warnings, err := json.Marshal(snap.Warnings)
	if err != nil {
		return nil, err
	}

	rec := &db.Session{
		ID:        snap.ID,
		Search:    snap.Search,
		Language:  snap.Language,
		Tables:    tables,
		Warnings:  warnings,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		Rows:      make([]db.Row, len(snap.Rows)),
	}
	for i, r := range snap.Rows {
		row := db.Row{
			Position:     i,
			DisplayOrder: r.Order,
			Key:          r.Key,
			Final:        r.Final.Ptr(),
			Overridden:   r.Overridden,
		}
		if r.Winner.Valid() {
			row.Winner = r.Winner.String()
		}
		for _, id := range types.AllSources {
			row.Values[id.Index()] = r.Sources.Get(id).Ptr()
		}
		rec.Rows[i] = row
	}
	return rec, nil
}

func fromRecord(rec *db.Session) (Snapshot, error) {
	snap := Snapshot{
		ID:        rec.ID,
		Search:    rec.Search,
		Language:  rec.Language,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Rows:      make([]types.ReconciledRow, len(rec.Rows)),
	}
	if len(rec.Tables) > 0 {
		if err := json.Unmarshal(rec.Tables, &snap.Tables); err != nil {
			return Snapshot{}, err
		}
	}
	if len(rec.Warnings) > 0 {
		if err := json.Unmarshal(rec.Warnings, &snap.Warnings); err != nil {
			return Snapshot{}, err
		}
	}

	for i, r := range rec.Rows {
		row := types.ReconciledRow{
			Key:        r.Key,
			Final:      types.FromPtr(r.Final),
			Order:      r.DisplayOrder,
			Overridden: r.Overridden,
		}
		if r.Winner != "" {
			winner, err := types.ParseSourceID(r.Winner)
			if err != nil {
				return Snapshot{}, err
			}
			row.Winner = winner
		}
		for _, id := range types.AllSources {
			row.Sources.Set(id, types.FromPtr(r.Values[id.Index()]))
		}
		snap.Rows[i] = row
	}
	return snap, nil
}
