package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

var (
	_ domain.ProgressStore = (*InMemoryProgressStore)(nil)
	_ domain.RoutineStore  = (*InMemoryRoutineStore)(nil)
)

func progressPath(userID, date string) string {
	return "users/" + userID + "/progress/" + date
}

func routinePath(userID string, period domain.Period) string {
	return "users/" + userID + "/routines/" + string(period)
}

// nextTimestamp keeps server timestamps strictly increasing within a document.
func nextTimestamp(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// InMemoryProgressStore is a push-capable progress document store for local runs and tests.
type InMemoryProgressStore struct {
	mu       sync.Mutex
	store    map[string]*domain.DailyProgress
	watchers *watcherSet[domain.ProgressEvent]
	revoked  map[string]bool
}

func NewInMemoryProgressStore() *InMemoryProgressStore {
	return &InMemoryProgressStore{
		store:    make(map[string]*domain.DailyProgress),
		watchers: newWatcherSet[domain.ProgressEvent](),
		revoked:  make(map[string]bool),
	}
}

func (r *InMemoryProgressStore) MergeStep(ctx context.Context, toggle domain.StepToggle) (*domain.DailyProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.revoked[toggle.UserID] {
		return nil, domain.ErrPermissionDenied
	}

	path := progressPath(toggle.UserID, toggle.Date)
	doc, ok := r.store[path]
	if !ok {
		doc = domain.EmptyProgress(toggle.Date)
		doc.UserID = toggle.UserID
		r.store[path] = doc
	}
	doc.Apply(toggle.Period, toggle.StepID, toggle.Completed)
	doc.UpdatedAt = nextTimestamp(doc.UpdatedAt)

	r.watchers.push(path, domain.ProgressEvent{Progress: doc.Clone()})
	return doc.Clone(), nil
}

func (r *InMemoryProgressStore) Get(ctx context.Context, userID, date string) (*domain.DailyProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.revoked[userID] {
		return nil, domain.ErrPermissionDenied
	}
	doc, ok := r.store[progressPath(userID, date)]
	if !ok {
		return nil, domain.ErrProgressNotFound
	}
	return doc.Clone(), nil
}

func (r *InMemoryProgressStore) Watch(ctx context.Context, userID, date string, fn func(domain.ProgressEvent)) (domain.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.revoked[userID] {
		return nil, domain.ErrPermissionDenied
	}

	path := progressPath(userID, date)
	id, mb := r.watchers.add(path, fn)
	// The first snapshot is queued under the write lock, ahead of any later write.
	mb.push(domain.ProgressEvent{Progress: r.store[path].Clone()})

	return r.cancelOnDone(ctx, path, id), nil
}

// Revoke simulates a permission loss: watchers of the user receive one error
// and every later operation is denied.
func (r *InMemoryProgressStore) Revoke(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revoked[userID] = true
	prefix := "users/" + userID + "/"
	for path := range r.watchers.byPath {
		if strings.HasPrefix(path, prefix) {
			r.watchers.push(path, domain.ProgressEvent{Err: domain.ErrPermissionDenied})
		}
	}
}

// Watchers reports the live watches of a date, for tests.
func (r *InMemoryProgressStore) Watchers(userID, date string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchers.count(progressPath(userID, date))
}

func (r *InMemoryProgressStore) cancelOnDone(ctx context.Context, path string, id uint64) domain.CancelFunc {
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			r.watchers.remove(path, id)
			r.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}
}

// InMemoryRoutineStore is a push-capable routine document store for local runs and tests.
type InMemoryRoutineStore struct {
	mu       sync.Mutex
	store    map[string]*domain.SkincareRoutine
	watchers *watcherSet[domain.RoutineEvent]
}

func NewInMemoryRoutineStore() *InMemoryRoutineStore {
	return &InMemoryRoutineStore{
		store:    make(map[string]*domain.SkincareRoutine),
		watchers: newWatcherSet[domain.RoutineEvent](),
	}
}

func (r *InMemoryRoutineStore) Get(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	routine, ok := r.store[routinePath(userID, period)]
	if !ok {
		return nil, domain.ErrRoutineNotFound
	}
	return routine.Clone(), nil
}

func (r *InMemoryRoutineStore) Save(ctx context.Context, routine *domain.SkincareRoutine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := routine.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := routinePath(routine.UserID, routine.Period)
	var prev time.Time
	if existing, ok := r.store[path]; ok {
		prev = existing.UpdatedAt
	}

	saved := routine.Clone()
	saved.StepCount = domain.StepCountLabel(len(saved.Steps))
	saved.UpdatedAt = nextTimestamp(prev)
	r.store[path] = saved

	routine.StepCount = saved.StepCount
	routine.UpdatedAt = saved.UpdatedAt

	r.watchers.push(path, domain.RoutineEvent{Routine: saved.Clone()})
	return nil
}

func (r *InMemoryRoutineStore) Watch(ctx context.Context, userID string, period domain.Period, fn func(domain.RoutineEvent)) (domain.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := routinePath(userID, period)
	id, mb := r.watchers.add(path, fn)
	mb.push(domain.RoutineEvent{Routine: r.store[path].Clone()})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			r.watchers.remove(path, id)
			r.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}, nil
}

func (r *InMemoryRoutineStore) Watchers(userID string, period domain.Period) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchers.count(routinePath(userID, period))
}
