package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// RoutineService is the routine editing flow. Saved routines reach every
// resident RoutineCache through its watches, never through this service.
type RoutineService struct {
	store  domain.RoutineStore
	logger *zap.Logger
}

func NewRoutineService(store domain.RoutineStore, logger *zap.Logger) *RoutineService {
	return &RoutineService{
		store:  store,
		logger: logger,
	}
}

type SaveRoutineInput struct {
	UserID string
	Period domain.Period
	Steps  []domain.RoutineStep
}

func (s *RoutineService) Save(ctx context.Context, input SaveRoutineInput) (*domain.SkincareRoutine, error) {
	if input.UserID == "" {
		return nil, domain.ErrAuthRequired
	}

	routine, err := domain.NewSkincareRoutine(input.UserID, input.Period, input.Steps)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, routine); err != nil {
		return nil, fmt.Errorf("failed to save routine: %w", err)
	}

	s.logger.Info("routine saved",
		zap.String("user_id", input.UserID),
		zap.String("period", string(input.Period)),
		zap.String("step_count", routine.StepCount),
	)
	return routine, nil
}
