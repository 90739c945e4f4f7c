package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/tallybook/tallybook/internal/shared"
)

const cacheKey = "tallybook:stats:summary"

// Service serves the dashboard summary. The ledger-wide snapshot is
// cached in Redis and rebuilt on misses; summaries scoped to one user
// are cheap filtered aggregates and are collected per request.
// Concurrent rebuilds of the same snapshot collapse into one.
type Service struct {
	repo   Repository
	cache  *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, cache *redis.Client, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// Summary returns figures scoped to the actor: admins see the whole
// ledger, everyone else only their own vouchers. Only the ledger-wide
// snapshot is cached; cache errors degrade to a direct rebuild.
func (s *Service) Summary(ctx context.Context, actor shared.Actor) (Summary, error) {
	if !actor.IsAdmin() {
		v, err, _ := s.group.Do(fmt.Sprintf("owner:%d", actor.ID), func() (any, error) {
			return s.collect(ctx, actor.ID)
		})
		if err != nil {
			return Summary{}, err
		}
		return v.(Summary), nil
	}

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var summary Summary
			if jsonErr := json.Unmarshal(raw, &summary); jsonErr == nil {
				return summary, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("stats cache read", slog.Any("error", err))
		}
	}

	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		return s.rebuild(ctx)
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// Refresh rebuilds the ledger-wide snapshot unconditionally. The
// warmup job calls this on a schedule so interactive requests mostly
// hit the cache.
func (s *Service) Refresh(ctx context.Context) (Summary, error) {
	return s.rebuild(ctx)
}

func (s *Service) rebuild(ctx context.Context) (Summary, error) {
	summary, err := s.collect(ctx, 0)
	if err != nil {
		return Summary{}, err
	}

	if s.cache != nil {
		raw, err := json.Marshal(summary)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("stats cache write", slog.Any("error", err))
			}
		}
	}
	return summary, nil
}

func (s *Service) collect(ctx context.Context, ownerID int64) (Summary, error) {
	summary, err := s.repo.Collect(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	summary.GeneratedAt = s.now().UTC()
	return summary, nil
}
