package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/fixcache"
)

// FixCacheStore is the durable fixcache.Store.
type FixCacheStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewFixCacheStore creates a store. A zero ttl never expires entries.
func NewFixCacheStore(db *sql.DB, ttl time.Duration) *FixCacheStore {
	return &FixCacheStore{db: db, ttl: ttl, now: time.Now}
}

// Get returns the entry for workKey, or nil if absent or expired.
func (s *FixCacheStore) Get(ctx context.Context, workKey string) (*fixcache.Entry, error) {
	var resultJSON string
	var generatedAt, reuses int64
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json, generated_at, reuses FROM fix_cache WHERE work_key = ?`, workKey,
	).Scan(&resultJSON, &generatedAt, &reuses)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	e := &fixcache.Entry{
		WorkKey:     workKey,
		GeneratedAt: time.Unix(generatedAt, 0).UTC(),
		Reuses:      reuses,
	}
	if s.expired(e.GeneratedAt) {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(resultJSON), &e.Result); err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// Put inserts e. An existing live entry is never overwritten; an expired
// one is replaced.
func (s *FixCacheStore) Put(ctx context.Context, e *fixcache.Entry) error {
	data, err := json.Marshal(e.Result)
	if err != nil {
		return errors.NewInternal(err)
	}

	cutoff := int64(-1)
	if s.ttl > 0 {
		cutoff = s.now().Add(-s.ttl).Unix()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fix_cache (work_key, result_json, generated_at, reuses)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (work_key) DO UPDATE
		SET result_json = excluded.result_json, generated_at = excluded.generated_at, reuses = 0
		WHERE fix_cache.generated_at < ?
	`, e.WorkKey, string(data), e.GeneratedAt.Unix(), cutoff)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// MarkReused increments the reuse counter of workKey.
func (s *FixCacheStore) MarkReused(ctx context.Context, workKey string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE fix_cache SET reuses = reuses + 1 WHERE work_key = ?`, workKey)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func (s *FixCacheStore) expired(generatedAt time.Time) bool {
	return s.ttl > 0 && s.now().Sub(generatedAt) > s.ttl
}
