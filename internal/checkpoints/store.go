package checkpoints

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Store persists checkpoints.
type Store interface {
	Upsert(ctx context.Context, cp *Checkpoint) error
	Get(ctx context.Context, id string) (*Checkpoint, error)
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*Checkpoint, error)
}

// SQLStore keeps checkpoints in Postgres through database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("checkpoints: db cannot be nil")
	}
	return &SQLStore{db: db}
}

const checkpointColumns = `id, county, location, roads, starts_at, ends_at, time_assumed,
		       latitude, longitude, source, created_at, updated_at`

// Upsert inserts cp or refreshes the stored row with the same id.
func (s *SQLStore) Upsert(ctx context.Context, cp *Checkpoint) error {
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, county, location, roads, starts_at, ends_at, time_assumed,
		                         latitude, longitude, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			county = EXCLUDED.county,
			location = EXCLUDED.location,
			roads = EXCLUDED.roads,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			time_assumed = EXCLUDED.time_assumed,
			latitude = COALESCE(EXCLUDED.latitude, checkpoints.latitude),
			longitude = COALESCE(EXCLUDED.longitude, checkpoints.longitude),
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at`,
		cp.ID, cp.County, cp.Location, pq.Array(cp.Roads), cp.StartsAt, cp.EndsAt, cp.TimeAssumed,
		cp.Latitude, cp.Longitude, cp.Source, cp.CreatedAt, cp.UpdatedAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = $1`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cp, err
}

// ListUpcoming returns checkpoints that have not ended, soonest first.
func (s *SQLStore) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM checkpoints WHERE ends_at >= $1 ORDER BY starts_at ASC LIMIT $2`, now, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var lat, lng sql.NullFloat64
	if err := row.Scan(&cp.ID, &cp.County, &cp.Location, pq.Array(&cp.Roads), &cp.StartsAt, &cp.EndsAt,
		&cp.TimeAssumed, &lat, &lng, &cp.Source, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		cp.Latitude, cp.Longitude = &lat.Float64, &lng.Float64
	}
	if cp.Roads == nil {
		cp.Roads = []string{}
	}
	return &cp, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

// MemoryStore keeps checkpoints in process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Checkpoint)}
}

func (m *MemoryStore) Upsert(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	stored := *cp
	if prev, ok := m.items[cp.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
		if !stored.Geocoded() {
			stored.Latitude, stored.Longitude = prev.Latitude, prev.Longitude
		}
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.items[cp.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *cp
	return &clone, nil
}

func (m *MemoryStore) ListUpcoming(_ context.Context, now time.Time, limit int) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Checkpoint{}
	for _, cp := range m.items {
		if cp.EndsAt.Before(now) {
			continue
		}
		clone := *cp
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
