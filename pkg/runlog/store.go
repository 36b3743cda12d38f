package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

const latestRunKey = "reconcile:last_run"

// Store persists run history and mirrors the latest run in redis when a
// client is configured. Cache failures are logged and never surface.
type Store struct {
	repo  *Repository
	cache *redis.Client
	ttl   time.Duration
}

func NewStore(repo *Repository, cache *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Store{repo: repo, cache: cache, ttl: ttl}
}

func (s *Store) Record(ctx context.Context, run *Run) error {
	if err := s.repo.Create(ctx, run); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	payload, err := json.Marshal(run)
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to encode run for cache")
		return nil
	}
	if err := s.cache.Set(ctx, latestRunKey, payload, s.ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("run_id", run.ID).Warn("Failed to cache latest run")
	}
	return nil
}

func (s *Store) Latest(ctx context.Context) (*Run, error) {
	if s.cache != nil {
		payload, err := s.cache.Get(ctx, latestRunKey).Bytes()
		switch {
		case err == nil:
			var run Run
			if err := json.Unmarshal(payload, &run); err == nil {
				return &run, nil
			}
		case !errors.Is(err, redis.Nil):
			logger.Log.WithError(err).Warn("Latest run cache unavailable")
		}
	}
	return s.repo.Latest(ctx)
}

func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	return s.repo.List(ctx, limit)
}
