package workers

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// Fires one second after local midnight.
const rolloverSpec = "1 0 0 * * *"

var rolloverSchedule = mustParseSchedule(rolloverSpec)

func mustParseSchedule(spec string) cron.Schedule {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s, err := parser.Parse(spec)
	if err != nil {
		panic(err)
	}
	return s
}

type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

type DateBoundaryOption func(*DateBoundary)

func WithClock(now func() time.Time) DateBoundaryOption {
	return func(b *DateBoundary) { b.now = now }
}

func WithAfterFunc(after AfterFunc) DateBoundaryOption {
	return func(b *DateBoundary) { b.after = after }
}

func WithLocation(loc *time.Location) DateBoundaryOption {
	return func(b *DateBoundary) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// DateBoundary publishes the current logical date and notifies subscribers
// when it rolls over, either at local midnight or when the client resumes.
type DateBoundary struct {
	loc    *time.Location
	now    func() time.Time
	after  AfterFunc
	logger *zap.Logger

	// notifyMu orders publications; it is always taken before mu.
	notifyMu sync.Mutex

	mu         sync.Mutex
	current    string
	timer      Timer
	generation uint64
	running    bool
	listeners  map[uint64]*dateListener
	nextID     uint64
}

// dateListener is cleared on unsubscribe so a publication already under way
// skips it.
type dateListener struct {
	id     uint64
	fn     func(string)
	active atomic.Bool
}

func NewDateBoundary(logger *zap.Logger, opts ...DateBoundaryOption) *DateBoundary {
	b := &DateBoundary{
		loc:    time.Local,
		now:    time.Now,
		logger: logger,
		after: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		listeners: make(map[uint64]*dateListener),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.current = b.today()
	return b
}

// Start arms the midnight timer and stops it when ctx is cancelled.
func (b *DateBoundary) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	b.publish("start")

	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	b.logger.Info("date boundary started", zap.String("date", b.CurrentDate()), zap.String("location", b.loc.String()))
}

func (b *DateBoundary) CurrentDate() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *DateBoundary) Location() *time.Location {
	return b.loc
}

// Subscribe registers fn for every date change. It does not replay the current date.
// No call to fn starts after the returned function returns, and the
// returned function may be called from inside fn.
func (b *DateBoundary) Subscribe(fn func(date string)) func() {
	b.mu.Lock()
	l := &dateListener{id: b.nextID, fn: fn}
	l.active.Store(true)
	b.nextID++
	b.listeners[l.id] = l
	b.mu.Unlock()

	return func() {
		l.active.Store(false)
		b.mu.Lock()
		delete(b.listeners, l.id)
		b.mu.Unlock()
	}
}

// Resume recomputes the date after the client comes back to the foreground.
// The timer is rearmed even when the date is unchanged.
func (b *DateBoundary) Resume() string {
	return b.publish("resume")
}

// Stop cancels the pending timer and drops all subscribers.
func (b *DateBoundary) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.generation++
	b.running = false
	for _, l := range b.listeners {
		l.active.Store(false)
	}
	b.listeners = make(map[uint64]*dateListener)
}

func (b *DateBoundary) today() string {
	return domain.FormatDate(b.now().In(b.loc))
}

// publish recomputes the date, rearms the timer and notifies on change.
func (b *DateBoundary) publish(trigger string) string {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if !b.running {
		date := b.today()
		b.current = date
		b.mu.Unlock()
		return date
	}

	previous := b.current
	date := b.today()
	b.current = date
	b.armLocked()

	var listeners []*dateListener
	if date != previous {
		for _, l := range b.listeners {
			listeners = append(listeners, l)
		}
		sort.Slice(listeners, func(i, j int) bool { return listeners[i].id < listeners[j].id })
	}
	b.mu.Unlock()

	if date != previous {
		b.logger.Info("date rolled over",
			zap.String("from", previous),
			zap.String("to", date),
			zap.String("trigger", trigger),
		)
		for _, l := range listeners {
			if l.active.Load() {
				l.fn(date)
			}
		}
	}
	return date
}

func (b *DateBoundary) armLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.generation++
	gen := b.generation

	now := b.now().In(b.loc)
	delay := rolloverSchedule.Next(now).Sub(now)

	b.timer = b.after(delay, func() {
		b.mu.Lock()
		stale := gen != b.generation
		b.mu.Unlock()
		if stale {
			return
		}
		b.publish("midnight")
	})
}
