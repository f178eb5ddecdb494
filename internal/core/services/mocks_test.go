package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
)

type MockProgressReader struct {
	mock.Mock
}

func (m *MockProgressReader) Get(ctx context.Context, userID, date string) (*domain.DailyProgress, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyProgress), args.Error(1)
}

type MockProgressStore struct {
	MockProgressReader
}

func (m *MockProgressStore) MergeStep(ctx context.Context, toggle domain.StepToggle) (*domain.DailyProgress, error) {
	args := m.Called(ctx, toggle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyProgress), args.Error(1)
}

// Watch replays the scripted events synchronously.
func (m *MockProgressStore) Watch(ctx context.Context, userID, date string, fn func(domain.ProgressEvent)) (domain.CancelFunc, error) {
	args := m.Called(ctx, userID, date)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	for _, ev := range args.Get(0).([]domain.ProgressEvent) {
		fn(ev)
	}
	return func() {}, nil
}

type MockRoutineStore struct {
	mock.Mock
}

func (m *MockRoutineStore) Get(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error) {
	args := m.Called(ctx, userID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SkincareRoutine), args.Error(1)
}

func (m *MockRoutineStore) Save(ctx context.Context, routine *domain.SkincareRoutine) error {
	return m.Called(ctx, routine).Error(0)
}

func (m *MockRoutineStore) Watch(ctx context.Context, userID string, period domain.Period, fn func(domain.RoutineEvent)) (domain.CancelFunc, error) {
	args := m.Called(ctx, userID, period)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() {}, nil
}

type fixedDate string

func (d fixedDate) CurrentDate() string { return string(d) }

// progressRecorder collects subscription callbacks.
type progressRecorder struct {
	mu      sync.Mutex
	updates []services.ProgressUpdate
}

func (r *progressRecorder) record(u services.ProgressUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *progressRecorder) all() []services.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.ProgressUpdate(nil), r.updates...)
}

func (r *progressRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *progressRecorder) last() services.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return services.ProgressUpdate{}
	}
	return r.updates[len(r.updates)-1]
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []services.RoutineSnapshot
}

func (r *snapshotRecorder) record(s services.RoutineSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *snapshotRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *snapshotRecorder) all() []services.RoutineSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.RoutineSnapshot(nil), r.snaps...)
}

func (r *snapshotRecorder) last() services.RoutineSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return services.RoutineSnapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
