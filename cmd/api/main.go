package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	adapterHTTP "github.com/comitanigiacomo/glow-sync-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/glow-sync-engine/internal/config"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/workers"
	appLogger "github.com/comitanigiacomo/glow-sync-engine/internal/logger"
)

const tokenDuration = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Critical: failed to load config: %v", err)
	}

	logger, err := appLogger.New(cfg)
	if err != nil {
		log.Fatalf("Critical: failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	startTime := time.Now()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	be, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	calendar := workers.NewDateBoundary(logger, workers.WithLocation(loc))
	calendar.Start(ctx)

	router := newRouter(cfg, logger, be, calendar, startTime)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Streams stay open; WriteTimeout would cut them.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("glow sync engine listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store),
			zap.String("date", calendar.CurrentDate()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stop signal received, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, logger *zap.Logger, be *backend, calendar *workers.DateBoundary, startTime time.Time) http.Handler {
	tokens := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, tokenDuration)
	sessions := services.NewSessionService(be.routines, logger)

	progressSvc := services.NewProgressService(be.progress, logger)
	historySvc := services.NewHistoryService(be.progress, calendar, cfg.History.Days, cfg.History.Concurrency, logger)
	routineSvc := services.NewRoutineService(be.routines, logger)

	be.onClose(sessions.Close)

	return adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		ProgressHandler: adapterHTTP.NewProgressHandler(progressSvc, historySvc, sessions, calendar),
		RoutineHandler:  adapterHTTP.NewRoutineHandler(routineSvc, sessions, calendar),
		SessionHandler:  adapterHTTP.NewSessionHandler(sessions, calendar),
		Tokens:          tokens,
		Logger:          logger,
		DB:              be.db,
		Redis:           be.redis,
		RateLimit:       cfg.RateLimit.Requests,
		RateWindow:      cfg.RateLimit.Window,
		StartTime:       startTime,
	})
}
