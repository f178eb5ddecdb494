package main

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/glow-sync-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/glow-sync-engine/internal/config"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// backend is the document store the engine runs on.
type backend struct {
	progress domain.ProgressStore
	routines domain.RoutineStore
	db       *sqlx.DB
	redis    *redis.Client
	closers  []func()
}

func (b *backend) onClose(fn func()) {
	b.closers = append(b.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("running on the in-memory store, data is lost on exit")
		return &backend{
			progress: repository.NewInMemoryProgressStore(),
			routines: repository.NewInMemoryRoutineStore(),
		}, nil
	}

	logger.Info("connecting to database", zap.String("host", cfg.DB.Host), zap.String("name", cfg.DB.Name))

	db, err := sqlx.Connect("pgx", cfg.DB.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	be := &backend{db: db, redis: rdb}
	be.onClose(func() { _ = db.Close() })
	be.onClose(func() { _ = rdb.Close() })

	feed := cache.NewRedisChangeFeed(rdb, logger)
	routineRepo := repository.NewCachedRoutineRepository(repository.NewPostgresRoutineRepository(db), rdb, logger)

	be.progress = repository.NewLiveProgressStore(repository.NewPostgresProgressRepository(db), feed, logger)
	be.routines = repository.NewLiveRoutineStore(routineRepo, feed, logger)

	logger.Info("database and redis connected")
	return be, nil
}
