package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mediashelf/internal/storage"
)

// CacheGet returns a cached provider response if one exists and is younger
// than ttl. Stale entries are treated as misses but left in place so a
// degraded cycle can still fall back to them via CacheGetStale.
func (s *Store) CacheGet(ctx context.Context, key string, ttl time.Duration, now time.Time) (string, bool, error) {
	payload, fetchedAt, err := s.cacheRow(ctx, key)
	if err != nil || payload == "" {
		return "", false, err
	}
	if now.Sub(fetchedAt) > ttl {
		return "", false, nil
	}
	return payload, true, nil
}

// CacheGetStale returns a cached response regardless of age.
func (s *Store) CacheGetStale(ctx context.Context, key string) (string, bool, error) {
	payload, _, err := s.cacheRow(ctx, key)
	if err != nil || payload == "" {
		return "", false, err
	}
	return payload, true, nil
}

func (s *Store) cacheRow(ctx context.Context, key string) (string, time.Time, error) {
	ctx = storage.EnsureContext(ctx)
	var (
		payload    string
		fetchedRaw string
	)
	err := s.db.Conn().QueryRowContext(ctx,
		"SELECT response_json, fetched_at FROM match_cache WHERE query_key = ?", key,
	).Scan(&payload, &fetchedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read match cache: %w", err)
	}
	fetchedAt, err := storage.ParseTime(fetchedRaw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse cache timestamp: %w", err)
	}
	return payload, fetchedAt, nil
}

// CachePut stores or refreshes a provider response.
func (s *Store) CachePut(ctx context.Context, key, payload string, now time.Time) error {
	ctx = storage.EnsureContext(ctx)
	_, err := s.db.ExecWithRetry(ctx, `
INSERT INTO match_cache (query_key, response_json, fetched_at) VALUES (?, ?, ?)
ON CONFLICT(query_key) DO UPDATE SET response_json = excluded.response_json, fetched_at = excluded.fetched_at`,
		key, payload, storage.FormatTime(now))
	if err != nil {
		return fmt.Errorf("write match cache: %w", err)
	}
	return nil
}

// CachePrune deletes entries older than ttl.
func (s *Store) CachePrune(ctx context.Context, ttl time.Duration, now time.Time) (int64, error) {
	ctx = storage.EnsureContext(ctx)
	cutoff := storage.FormatTime(now.Add(-ttl))
	res, err := s.db.ExecWithRetry(ctx, "DELETE FROM match_cache WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune match cache: %w", err)
	}
	return res.RowsAffected()
}
