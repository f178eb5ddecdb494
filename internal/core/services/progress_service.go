package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// ProgressUpdate is delivered to progress subscribers. Exactly one of
// Progress and Err is set; Err marks a failed subscription.
type ProgressUpdate struct {
	Progress *domain.DailyProgress
	Err      error
}

type ProgressService struct {
	store  domain.ProgressStore
	logger *zap.Logger
}

func NewProgressService(store domain.ProgressStore, logger *zap.Logger) *ProgressService {
	return &ProgressService{
		store:  store,
		logger: logger,
	}
}

type ToggleStepInput struct {
	UserID    string
	Date      string
	Period    domain.Period
	StepID    string
	Completed bool
	// Routine is the routine of Period at write time; StepID must be one of its steps.
	Routine *domain.SkincareRoutine
}

// ToggleStep merge-writes a single step flag on the date's document,
// creating the document on first write. It does not retry.
func (s *ProgressService) ToggleStep(ctx context.Context, input ToggleStepInput) error {
	toggle := domain.StepToggle{
		UserID:    input.UserID,
		Date:      input.Date,
		Period:    input.Period,
		StepID:    input.StepID,
		Completed: input.Completed,
	}

	if err := toggle.Validate(); err != nil {
		return &domain.SyncError{Op: "toggle", Date: input.Date, Err: err}
	}
	if !input.Routine.HasStep(input.StepID) {
		err := fmt.Errorf("%w: %s is not a step of the %s routine", domain.ErrInvalidStep, input.StepID, input.Period)
		return &domain.SyncError{Op: "toggle", Date: input.Date, Err: err}
	}

	if _, err := s.store.MergeStep(ctx, toggle); err != nil {
		s.logger.Warn("toggle step failed",
			zap.String("user_id", input.UserID),
			zap.String("date", input.Date),
			zap.String("step_id", input.StepID),
			zap.Error(err),
		)
		return &domain.SyncError{Op: "toggle", Date: input.Date, Err: err}
	}
	return nil
}

// Get is a point read of the date's document. A missing document yields an empty one.
func (s *ProgressService) Get(ctx context.Context, userID, date string) (*domain.DailyProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &domain.SyncError{Op: "get", Date: date, Err: domain.ErrAuthRequired}
	}
	if err := domain.ValidateDate(date); err != nil {
		return nil, err
	}

	p, err := s.store.Get(ctx, userID, date)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return domain.EmptyProgress(date), nil
	}
	if err != nil {
		return nil, &domain.SyncError{Op: "get", Date: date, Err: err}
	}
	return p, nil
}

// Subscribe opens a live subscription to the date's document. The callback
// receives every snapshot in write order, an empty document while none exists,
// and at most one error after which the subscription is terminal.
func (s *ProgressService) Subscribe(ctx context.Context, userID, date string, cb func(ProgressUpdate)) (*Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &domain.SyncError{Op: "subscribe", Date: date, Err: domain.ErrAuthRequired}
	}
	if err := domain.ValidateDate(date); err != nil {
		return nil, &domain.SyncError{Op: "subscribe", Date: date, Err: err}
	}

	sub := newSubscription()
	var last *domain.DailyProgress

	cancel, err := s.store.Watch(ctx, userID, date, func(ev domain.ProgressEvent) {
		if ev.Err != nil {
			syncErr := &domain.SyncError{Op: "subscribe", Date: date, Err: ev.Err}
			s.logger.Warn("progress subscription failed",
				zap.String("user_id", userID),
				zap.String("date", date),
				zap.Error(ev.Err),
			)
			sub.fail(syncErr, func() { cb(ProgressUpdate{Err: syncErr}) })
			return
		}

		snapshot := ev.Progress
		if snapshot == nil {
			snapshot = domain.EmptyProgress(date)
		}
		// Discard pushes older than what this subscriber has already seen.
		if last != nil && !snapshot.UpdatedAt.IsZero() && snapshot.UpdatedAt.Before(last.UpdatedAt) {
			return
		}

		sub.deliver(func() {
			last = snapshot
			cb(ProgressUpdate{Progress: snapshot.Clone()})
		})
	})
	if err != nil {
		return nil, &domain.SyncError{Op: "subscribe", Date: date, Err: err}
	}

	sub.attach(cancel)
	return sub, nil
}
