package services

import (
	"sync"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

type SubscriptionState string

const (
	StateUnsubscribed SubscriptionState = "unsubscribed"
	StateSubscribing  SubscriptionState = "subscribing"
	StateLive         SubscriptionState = "live"
	StateError        SubscriptionState = "error"
)

// Subscription is the handle of a live document watch.
// Once Unsubscribe returns no further callback is started.
// The state and cancel function are guarded by mu; deliverMu serializes callbacks.
type Subscription struct {
	deliverMu sync.Mutex

	mu     sync.Mutex
	state  SubscriptionState
	cancel domain.CancelFunc
	err    error
}

func newSubscription() *Subscription {
	return &Subscription{state: StateSubscribing}
}

func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error of a subscription in the Error state.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	if s.state != StateError {
		s.state = StateUnsubscribed
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Subscription) attach(cancel domain.CancelFunc) {
	s.mu.Lock()
	if s.state == StateUnsubscribed || s.state == StateError {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
}

// deliver runs fn while the subscription is active. Callbacks of one
// subscription never overlap; a callback may call Unsubscribe itself.
func (s *Subscription) deliver(fn func()) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateUnsubscribed, StateError:
		s.mu.Unlock()
		return false
	case StateSubscribing:
		s.state = StateLive
	}
	s.mu.Unlock()

	fn()
	return true
}

// fail moves the subscription to its terminal Error state and delivers fn once.
func (s *Subscription) fail(err error, fn func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state == StateUnsubscribed || s.state == StateError {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.err = err
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	fn()
	if cancel != nil {
		go cancel()
	}
}
