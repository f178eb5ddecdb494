package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// RoutineSnapshot is the cached routine pair. A nil routine does not exist yet.
type RoutineSnapshot struct {
	AM *domain.SkincareRoutine `json:"amRoutine"`
	PM *domain.SkincareRoutine `json:"pmRoutine"`
}

func (s RoutineSnapshot) StepCounts() (am, pm int) {
	return s.AM.Len(), s.PM.Len()
}

func (s RoutineSnapshot) clone() RoutineSnapshot {
	return RoutineSnapshot{AM: s.AM.Clone(), PM: s.PM.Clone()}
}

// RoutineCache keeps the AM and PM routines of one signed-in user in memory
// and fans out every remote change to its listeners. The two watches it owns
// are the only writers of the cached value.
type RoutineCache struct {
	store  domain.RoutineStore
	logger *zap.Logger

	// notifyMu orders listener notifications; it is always taken before mu.
	notifyMu sync.Mutex

	mu         sync.RWMutex
	userID     string
	snapshot   RoutineSnapshot
	populated  bool
	generation uint64
	cancels    []domain.CancelFunc
	listeners  map[uint64]*cacheListener
	nextID     uint64
}

// cacheListener is cleared on unsubscribe; notify skips inactive listeners,
// so no call starts after the unsubscribe function returns.
type cacheListener struct {
	id     uint64
	fn     func(RoutineSnapshot)
	active atomic.Bool
}

func NewRoutineCache(store domain.RoutineStore, logger *zap.Logger) *RoutineCache {
	return &RoutineCache{
		store:     store,
		logger:    logger,
		listeners: make(map[uint64]*cacheListener),
	}
}

// Initialize fetches both routines, populates the cache and arms one watch per
// period. It fails with ErrCacheUserMismatch if another user is still resident.
func (c *RoutineCache) Initialize(ctx context.Context, userID string) (RoutineSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return RoutineSnapshot{}, domain.ErrAuthRequired
	}

	c.mu.RLock()
	resident := c.userID
	populated := c.populated
	startGen := c.generation
	c.mu.RUnlock()

	if resident != "" && resident != userID {
		return RoutineSnapshot{}, fmt.Errorf("initialize %s: %w", userID, domain.ErrCacheUserMismatch)
	}
	if resident == userID && populated {
		return c.Snapshot(), nil
	}

	var am, pm *domain.SkincareRoutine
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		am, err = c.fetch(gctx, userID, domain.PeriodAM)
		return err
	})
	g.Go(func() (err error) {
		pm, err = c.fetch(gctx, userID, domain.PeriodPM)
		return err
	})
	if err := g.Wait(); err != nil {
		return RoutineSnapshot{}, fmt.Errorf("routine cache: initial fetch: %w", err)
	}

	c.notifyMu.Lock()
	c.mu.Lock()
	if c.userID != "" && c.userID != userID {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return RoutineSnapshot{}, fmt.Errorf("initialize %s: %w", userID, domain.ErrCacheUserMismatch)
	}
	if c.userID == userID && c.populated {
		snap := c.snapshot.clone()
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return snap, nil
	}
	// A Reset during the fetch ends this sign-in; arming watches now would leak them.
	if c.generation != startGen {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return RoutineSnapshot{}, fmt.Errorf("initialize %s: %w", userID, domain.ErrCacheReset)
	}
	c.userID = userID
	c.snapshot = RoutineSnapshot{AM: am, PM: pm}
	c.populated = true
	c.generation++
	gen := c.generation
	snap, listeners := c.snapshot.clone(), c.listenerList()
	c.mu.Unlock()
	c.notify(snap, listeners)
	c.notifyMu.Unlock()

	// The watches outlive the call that armed them; Reset detaches them.
	watchCtx := context.WithoutCancel(ctx)
	for _, period := range []domain.Period{domain.PeriodAM, domain.PeriodPM} {
		if err := c.watch(watchCtx, userID, period, gen); err != nil {
			c.Reset()
			return RoutineSnapshot{}, fmt.Errorf("routine cache: watch %s: %w", period, err)
		}
	}

	c.logger.Info("routine cache initialized",
		zap.String("user_id", userID),
		zap.Int("am_steps", am.Len()),
		zap.Int("pm_steps", pm.Len()),
	)
	return snap, nil
}

// UserID returns the resident user, empty after Reset.
func (c *RoutineCache) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *RoutineCache) Snapshot() RoutineSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}

// RoutineFor returns the routine of period that stepID is checked against.
// When the cached routine lacks the step it is read again from the store, so a
// save whose push has not arrived yet is still honored.
func (c *RoutineCache) RoutineFor(ctx context.Context, period domain.Period, stepID string) (*domain.SkincareRoutine, error) {
	c.mu.RLock()
	userID := c.userID
	cached := c.snapshot.AM
	if period == domain.PeriodPM {
		cached = c.snapshot.PM
	}
	cached = cached.Clone()
	c.mu.RUnlock()

	if userID == "" {
		return nil, domain.ErrAuthRequired
	}
	if cached.HasStep(stepID) {
		return cached, nil
	}
	return c.fetch(ctx, userID, period)
}

// Subscribe registers cb for every cache update. When the cache is populated
// cb is called once with the current value before Subscribe returns.
func (c *RoutineCache) Subscribe(cb func(RoutineSnapshot)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	l := &cacheListener{id: c.nextID, fn: cb}
	l.active.Store(true)
	c.nextID++
	c.listeners[l.id] = l
	populated := c.populated
	snap := c.snapshot.clone()
	c.mu.Unlock()

	if populated {
		cb(snap)
	}

	// Safe to call from inside a listener: it never waits on notifyMu.
	return func() {
		l.active.Store(false)
		c.mu.Lock()
		delete(c.listeners, l.id)
		c.mu.Unlock()
	}
}

// Reset detaches both watches and clears the cached state and the listeners.
// No listener is called after Reset returns. It must not be called from a listener.
func (c *RoutineCache) Reset() {
	c.notifyMu.Lock()
	c.mu.Lock()
	cancels := c.cancels
	userID := c.userID
	c.cancels = nil
	c.userID = ""
	c.snapshot = RoutineSnapshot{}
	c.populated = false
	c.generation++
	for _, l := range c.listeners {
		l.active.Store(false)
	}
	c.listeners = make(map[uint64]*cacheListener)
	c.mu.Unlock()
	c.notifyMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if userID != "" {
		c.logger.Info("routine cache reset", zap.String("user_id", userID))
	}
}

func (c *RoutineCache) fetch(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error) {
	r, err := c.store.Get(ctx, userID, period)
	if errors.Is(err, domain.ErrRoutineNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *RoutineCache) watch(ctx context.Context, userID string, period domain.Period, gen uint64) error {
	cancel, err := c.store.Watch(ctx, userID, period, func(ev domain.RoutineEvent) {
		c.apply(userID, period, gen, ev)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
	return nil
}

func (c *RoutineCache) apply(userID string, period domain.Period, gen uint64, ev domain.RoutineEvent) {
	if ev.Err != nil {
		c.logger.Warn("routine watch failed",
			zap.String("user_id", userID),
			zap.String("period", string(period)),
			zap.Error(ev.Err),
		)
		return
	}
	if ev.Routine != nil && (ev.Routine.UserID != userID || ev.Routine.Period != period) {
		c.logger.Error("routine push for foreign document dropped",
			zap.String("user_id", userID),
			zap.String("period", string(period)),
		)
		return
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.generation != gen || c.userID != userID {
		c.mu.Unlock()
		return
	}
	if period == domain.PeriodAM {
		c.snapshot.AM = ev.Routine.Clone()
	} else {
		c.snapshot.PM = ev.Routine.Clone()
	}
	snap, listeners := c.snapshot.clone(), c.listenerList()
	c.mu.Unlock()

	c.notify(snap, listeners)
}

// listenerList returns the listeners in registration order.
func (c *RoutineCache) listenerList() []*cacheListener {
	list := make([]*cacheListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		list = append(list, l)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

func (c *RoutineCache) notify(snap RoutineSnapshot, listeners []*cacheListener) {
	for _, l := range listeners {
		if !l.active.Load() {
			continue
		}
		l.fn(snap.clone())
	}
}
