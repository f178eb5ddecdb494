package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

var (
	_ domain.ProgressStore = (*LiveProgressStore)(nil)
	_ domain.RoutineStore  = (*LiveRoutineStore)(nil)
)

// ChangeFeed publishes the post-write document of every change.
type ChangeFeed interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (cache.Subscription, error)
}

type ProgressRepository interface {
	MergeStep(ctx context.Context, toggle domain.StepToggle) (*domain.DailyProgress, error)
	Get(ctx context.Context, userID, date string) (*domain.DailyProgress, error)
}

type RoutineRepository interface {
	Get(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error)
	Save(ctx context.Context, routine *domain.SkincareRoutine) error
}

func progressTopic(userID, date string) string {
	return fmt.Sprintf("progress:%s:%s", userID, date)
}

func routineTopic(userID string, period domain.Period) string {
	return fmt.Sprintf("routine:%s:%s", userID, period)
}

// watchTopic subscribes to topic, delivers the current document and then every
// pushed document newer than the last delivered one. It runs until ctx is done
// or the feed drops, in which case fail is called once.
func watchTopic[T any](
	ctx context.Context,
	feed ChangeFeed,
	topic string,
	read func(ctx context.Context) (*T, error),
	stamp func(*T) time.Time,
	deliver func(*T),
	fail func(error),
) (domain.CancelFunc, error) {
	sub, err := feed.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)

	go func() {
		defer sub.Close()

		var last time.Time
		current, err := read(wctx)
		if err != nil {
			if wctx.Err() == nil {
				fail(fmt.Errorf("%w: %v", domain.ErrSubscriptionFailed, err))
			}
			return
		}
		if current != nil {
			last = stamp(current)
		}
		deliver(current)

		for {
			select {
			case <-wctx.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					if wctx.Err() == nil {
						fail(fmt.Errorf("%w: change feed closed", domain.ErrSubscriptionFailed))
					}
					return
				}
				var doc T
				if err := json.Unmarshal(msg, &doc); err != nil {
					continue
				}
				if !stamp(&doc).After(last) {
					continue
				}
				last = stamp(&doc)
				if wctx.Err() != nil {
					return
				}
				deliver(&doc)
			}
		}
	}()

	return domain.CancelFunc(cancel), nil
}

// LiveProgressStore combines a durable progress repository with a change feed
// into a push-capable document store.
type LiveProgressStore struct {
	repo   ProgressRepository
	feed   ChangeFeed
	logger *zap.Logger
}

func NewLiveProgressStore(repo ProgressRepository, feed ChangeFeed, logger *zap.Logger) *LiveProgressStore {
	return &LiveProgressStore{repo: repo, feed: feed, logger: logger}
}

func (s *LiveProgressStore) MergeStep(ctx context.Context, toggle domain.StepToggle) (*domain.DailyProgress, error) {
	doc, err := s.repo.MergeStep(ctx, toggle)
	if err != nil {
		return nil, err
	}

	// The write is durable at this point; a lost notification only delays watchers.
	if payload, err := json.Marshal(doc); err == nil {
		if err := s.feed.Publish(ctx, progressTopic(toggle.UserID, toggle.Date), payload); err != nil {
			s.logger.Warn("progress change not published", zap.String("date", toggle.Date), zap.Error(err))
		}
	}
	return doc, nil
}

func (s *LiveProgressStore) Get(ctx context.Context, userID, date string) (*domain.DailyProgress, error) {
	return s.repo.Get(ctx, userID, date)
}

func (s *LiveProgressStore) Watch(ctx context.Context, userID, date string, fn func(domain.ProgressEvent)) (domain.CancelFunc, error) {
	return watchTopic(ctx, s.feed, progressTopic(userID, date),
		func(ctx context.Context) (*domain.DailyProgress, error) {
			p, err := s.repo.Get(ctx, userID, date)
			if errors.Is(err, domain.ErrProgressNotFound) {
				return nil, nil
			}
			return p, err
		},
		func(p *domain.DailyProgress) time.Time { return p.UpdatedAt },
		func(p *domain.DailyProgress) { fn(domain.ProgressEvent{Progress: p}) },
		func(err error) { fn(domain.ProgressEvent{Err: err}) },
	)
}

// LiveRoutineStore is the routine counterpart of LiveProgressStore.
type LiveRoutineStore struct {
	repo   RoutineRepository
	feed   ChangeFeed
	logger *zap.Logger
}

func NewLiveRoutineStore(repo RoutineRepository, feed ChangeFeed, logger *zap.Logger) *LiveRoutineStore {
	return &LiveRoutineStore{repo: repo, feed: feed, logger: logger}
}

func (s *LiveRoutineStore) Get(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error) {
	return s.repo.Get(ctx, userID, period)
}

func (s *LiveRoutineStore) Save(ctx context.Context, routine *domain.SkincareRoutine) error {
	if err := s.repo.Save(ctx, routine); err != nil {
		return err
	}

	if payload, err := json.Marshal(routine); err == nil {
		if err := s.feed.Publish(ctx, routineTopic(routine.UserID, routine.Period), payload); err != nil {
			s.logger.Warn("routine change not published", zap.String("period", string(routine.Period)), zap.Error(err))
		}
	}
	return nil
}

func (s *LiveRoutineStore) Watch(ctx context.Context, userID string, period domain.Period, fn func(domain.RoutineEvent)) (domain.CancelFunc, error) {
	return watchTopic(ctx, s.feed, routineTopic(userID, period),
		func(ctx context.Context) (*domain.SkincareRoutine, error) {
			r, err := s.repo.Get(ctx, userID, period)
			if errors.Is(err, domain.ErrRoutineNotFound) {
				return nil, nil
			}
			return r, err
		},
		func(r *domain.SkincareRoutine) time.Time { return r.UpdatedAt },
		func(r *domain.SkincareRoutine) { fn(domain.RoutineEvent{Routine: r}) },
		func(err error) { fn(domain.RoutineEvent{Err: err}) },
	)
}
