package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAuthRequired       = errors.New("no authenticated user")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrProgressNotFound   = errors.New("daily progress not found")
	ErrRoutineNotFound    = errors.New("skincare routine not found")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrCacheUserMismatch  = errors.New("routine cache holds another user, reset it first")
	ErrCacheReset         = errors.New("routine cache was reset during initialization")
)

// SyncError wraps a failure of a progress write or subscription.
type SyncError struct {
	Op   string
	Date string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("progress sync: %s %s: %v", e.Op, e.Date, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// ProgressEvent is one push from a watched progress document.
// Progress is nil when the document does not exist; Err is set once on a terminal failure.
type ProgressEvent struct {
	Progress *DailyProgress
	Err      error
}

// RoutineEvent is one push from a watched routine document.
type RoutineEvent struct {
	Routine *SkincareRoutine
	Err     error
}

// CancelFunc detaches a watch. It is safe to call more than once.
type CancelFunc func()

// ProgressReader is the point-read primitive of the document store.
type ProgressReader interface {
	// Get returns ErrProgressNotFound when no document exists for the date.
	Get(ctx context.Context, userID, date string) (*DailyProgress, error)
}

type ProgressStore interface {
	ProgressReader

	// MergeStep upserts the (user, date) document, setting exactly one nested step flag
	// and a fresh server timestamp. Sibling keys are never read or overwritten.
	MergeStep(ctx context.Context, toggle StepToggle) (*DailyProgress, error)

	// Watch pushes the current document, then every later change in write order,
	// until the returned CancelFunc is called or an error event is delivered.
	Watch(ctx context.Context, userID, date string, fn func(ProgressEvent)) (CancelFunc, error)
}

type RoutineReader interface {
	// Get returns ErrRoutineNotFound when the user has no routine for the period.
	Get(ctx context.Context, userID string, period Period) (*SkincareRoutine, error)
}

type RoutineStore interface {
	RoutineReader

	// Save upserts the routine document. Used by the routine editing flow only.
	Save(ctx context.Context, routine *SkincareRoutine) error

	Watch(ctx context.Context, userID string, period Period, fn func(RoutineEvent)) (CancelFunc, error)
}
