package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

var _ RoutineRepository = (*CachedRoutineRepository)(nil)

const routineCacheTTL = 30 * time.Minute

// CachedRoutineRepository is a read-through Redis cache in front of a routine repository.
// Every save records the routine's UpdatedAt under a version key; a read fills
// the cache only if its value is not older than that version.
type CachedRoutineRepository struct {
	next   RoutineRepository
	cache  *redis.Client
	logger *zap.Logger
}

func NewCachedRoutineRepository(next RoutineRepository, cache *redis.Client, logger *zap.Logger) *CachedRoutineRepository {
	return &CachedRoutineRepository{
		next:   next,
		cache:  cache,
		logger: logger,
	}
}

func (r *CachedRoutineRepository) cacheKey(userID string, period domain.Period) string {
	return fmt.Sprintf("routines:%s:%s", userID, period)
}

func (r *CachedRoutineRepository) versionKey(userID string, period domain.Period) string {
	return r.cacheKey(userID, period) + ":ver"
}

func (r *CachedRoutineRepository) invalidate(ctx context.Context, routine *domain.SkincareRoutine) {
	_, err := r.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.versionKey(routine.UserID, routine.Period), routine.UpdatedAt.UnixNano(), routineCacheTTL)
		pipe.Del(ctx, r.cacheKey(routine.UserID, routine.Period))
		return nil
	})
	if err != nil {
		r.logger.Warn("cache invalidation failed", zap.String("user_id", routine.UserID), zap.Error(err))
	}
}

// fill caches routine unless a save newer than it has been recorded since it was read.
func (r *CachedRoutineRepository) fill(ctx context.Context, routine *domain.SkincareRoutine) {
	data, err := json.Marshal(routine)
	if err != nil {
		return
	}
	key := r.cacheKey(routine.UserID, routine.Period)
	verKey := r.versionKey(routine.UserID, routine.Period)

	err = r.cache.Watch(ctx, func(tx *redis.Tx) error {
		ver, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if routine.UpdatedAt.UnixNano() < ver {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, routineCacheTTL)
			return nil
		})
		return err
	}, verKey)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("routine saved during read, cache fill skipped", zap.String("key", key))
	case err != nil:
		r.logger.Warn("redis set error", zap.Error(err))
	}
}

func (r *CachedRoutineRepository) Get(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error) {
	key := r.cacheKey(userID, period)

	val, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		var routine domain.SkincareRoutine
		if err := json.Unmarshal([]byte(val), &routine); err == nil {
			return &routine, nil
		}

		r.logger.Warn("corrupted cache entry, cleaning up key", zap.String("key", key))
		r.cache.Del(ctx, key)
	} else if err != redis.Nil {
		r.logger.Warn("redis read error", zap.Error(err))
	}

	routine, err := r.next.Get(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	r.fill(ctx, routine)
	return routine, nil
}

func (r *CachedRoutineRepository) Save(ctx context.Context, routine *domain.SkincareRoutine) error {
	if err := r.next.Save(ctx, routine); err != nil {
		return err
	}
	r.invalidate(ctx, routine)
	return nil
}
