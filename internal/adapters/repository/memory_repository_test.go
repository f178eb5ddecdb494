package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

const testDate = "2024-06-15"

// eventLog collects watch events pushed from another goroutine.
type eventLog[T any] struct {
	mu     sync.Mutex
	events []T
}

func (l *eventLog[T]) add(ev T) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.events...)
}

func (l *eventLog[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func stepToggle(userID, stepID string, completed bool) domain.StepToggle {
	period, _, _ := domain.ParseStepKey(stepID)
	return domain.StepToggle{UserID: userID, Date: testDate, Period: period, StepID: stepID, Completed: completed}
}

func TestInMemoryProgressStore_MergeStep(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryProgressStore()

	first, err := store.MergeStep(ctx, stepToggle("u1", "AM_1", true))
	require.NoError(t, err)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, testDate, first.Date)
	assert.Equal(t, domain.StepFlags{"AM_1": true}, first.AMSteps)
	assert.Empty(t, first.PMSteps)

	second, err := store.MergeStep(ctx, stepToggle("u1", "PM_3", true))
	require.NoError(t, err)
	third, err := store.MergeStep(ctx, stepToggle("u1", "AM_1", false))
	require.NoError(t, err)

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.True(t, third.UpdatedAt.After(second.UpdatedAt))

	got, err := store.Get(ctx, "u1", testDate)
	require.NoError(t, err)
	assert.Equal(t, domain.StepFlags{"AM_1": false}, got.AMSteps)
	assert.Equal(t, domain.StepFlags{"PM_3": true}, got.PMSteps)

	t.Run("Returned documents are copies", func(t *testing.T) {
		got.AMSteps["AM_9"] = true
		again, err := store.Get(ctx, "u1", testDate)
		require.NoError(t, err)
		assert.NotContains(t, again.AMSteps, "AM_9")
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := store.Get(ctx, "u2", testDate)
		assert.ErrorIs(t, err, domain.ErrProgressNotFound)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.MergeStep(cctx, stepToggle("u1", "AM_2", true))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInMemoryProgressStore_ConcurrentMerges(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryProgressStore()

	var wg sync.WaitGroup
	for i := 1; i <= 25; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.MergeStep(ctx, stepToggle("u1", fmt.Sprintf("PM_%d", n), true))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, "u1", testDate)
	require.NoError(t, err)
	assert.Len(t, got.PMSteps, 25)
}

func TestInMemoryProgressStore_Watch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryProgressStore()
	log := &eventLog[domain.ProgressEvent]{}

	cancel, err := store.Watch(ctx, "u1", testDate, log.add)
	require.NoError(t, err)

	for i := 1; i <= 20; i++ {
		_, err := store.MergeStep(ctx, stepToggle("u1", fmt.Sprintf("AM_%d", i), true))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return log.len() == 21 }, 2*time.Second, 5*time.Millisecond)

	events := log.snapshot()
	assert.Nil(t, events[0].Progress, "no document yet")
	for i := 1; i < len(events); i++ {
		require.NoError(t, events[i].Err)
		assert.Len(t, events[i].Progress.AMSteps, i, "pushes arrive in write order")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, store.Watchers("u1", testDate))

	_, err = store.MergeStep(ctx, stepToggle("u1", "AM_21", true))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 21, log.len())
}

func TestInMemoryProgressStore_WatchEndsWithContext(t *testing.T) {
	store := NewInMemoryProgressStore()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := store.Watch(ctx, "u1", testDate, func(domain.ProgressEvent) {})
	require.NoError(t, err)
	require.Equal(t, 1, store.Watchers("u1", testDate))

	cancel()

	assert.Eventually(t, func() bool {
		return store.Watchers("u1", testDate) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestInMemoryProgressStore_Revoke(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryProgressStore()
	mine := &eventLog[domain.ProgressEvent]{}
	theirs := &eventLog[domain.ProgressEvent]{}

	_, err := store.Watch(ctx, "u1", testDate, mine.add)
	require.NoError(t, err)
	_, err = store.Watch(ctx, "u2", testDate, theirs.add)
	require.NoError(t, err)

	store.Revoke("u1")

	require.Eventually(t, func() bool { return mine.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, mine.snapshot()[1].Err, domain.ErrPermissionDenied)

	_, err = store.MergeStep(ctx, stepToggle("u1", "AM_1", true))
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = store.Get(ctx, "u1", testDate)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = store.Watch(ctx, "u1", testDate, mine.add)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, theirs.len())
}

func TestInMemoryRoutineStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRoutineStore()
	log := &eventLog[domain.RoutineEvent]{}

	cancel, err := store.Watch(ctx, "u1", domain.PeriodAM, log.add)
	require.NoError(t, err)
	defer cancel()

	routine := &domain.SkincareRoutine{
		UserID: "u1",
		Period: domain.PeriodAM,
		Steps:  []domain.RoutineStep{{Step: 1, Name: "Cleanser"}, {Step: 2, Name: "SPF"}},
	}
	require.NoError(t, store.Save(ctx, routine))
	assert.Equal(t, "2 steps", routine.StepCount)
	assert.False(t, routine.UpdatedAt.IsZero())

	require.Eventually(t, func() bool { return log.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	events := log.snapshot()
	assert.Nil(t, events[0].Routine)
	assert.Equal(t, 2, events[1].Routine.Len())

	t.Run("Save keeps timestamps increasing", func(t *testing.T) {
		prev := routine.UpdatedAt
		require.NoError(t, store.Save(ctx, routine))
		assert.True(t, routine.UpdatedAt.After(prev))
	})

	t.Run("Invalid routine is rejected", func(t *testing.T) {
		err := store.Save(ctx, &domain.SkincareRoutine{UserID: "u1", Period: "NOON"})
		assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
	})

	t.Run("Get", func(t *testing.T) {
		got, err := store.Get(ctx, "u1", domain.PeriodAM)
		require.NoError(t, err)
		assert.Equal(t, "SPF", got.Steps[1].Name)

		_, err = store.Get(ctx, "u1", domain.PeriodPM)
		assert.ErrorIs(t, err, domain.ErrRoutineNotFound)
	})
}
