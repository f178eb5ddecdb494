package services

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// SessionService owns one RoutineCache per signed-in user. Sign-in initializes
// the cache, sign-out resets and drops it.
type SessionService struct {
	store  domain.RoutineStore
	logger *zap.Logger

	mu     sync.Mutex
	caches map[string]*RoutineCache
}

func NewSessionService(store domain.RoutineStore, logger *zap.Logger) *SessionService {
	return &SessionService{
		store:  store,
		logger: logger,
		caches: make(map[string]*RoutineCache),
	}
}

func (s *SessionService) SignIn(ctx context.Context, userID string) (*RoutineCache, RoutineSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, RoutineSnapshot{}, domain.ErrAuthRequired
	}

	s.mu.Lock()
	cache, ok := s.caches[userID]
	if !ok {
		cache = NewRoutineCache(s.store, s.logger)
		s.caches[userID] = cache
	}
	s.mu.Unlock()

	snap, err := cache.Initialize(ctx, userID)
	if err != nil {
		s.mu.Lock()
		if s.caches[userID] == cache && cache.UserID() == "" {
			delete(s.caches, userID)
		}
		s.mu.Unlock()
		return nil, RoutineSnapshot{}, err
	}
	return cache, snap, nil
}

// Cache returns the user's cache, signing in on first use.
func (s *SessionService) Cache(ctx context.Context, userID string) (*RoutineCache, error) {
	s.mu.Lock()
	cache, ok := s.caches[userID]
	s.mu.Unlock()
	if ok && cache.UserID() == userID {
		return cache, nil
	}

	cache, _, err := s.SignIn(ctx, userID)
	return cache, err
}

func (s *SessionService) SignOut(userID string) {
	s.mu.Lock()
	cache, ok := s.caches[userID]
	delete(s.caches, userID)
	s.mu.Unlock()

	if ok {
		cache.Reset()
	}
}

// Close resets every resident cache.
func (s *SessionService) Close() {
	s.mu.Lock()
	caches := s.caches
	s.caches = make(map[string]*RoutineCache)
	s.mu.Unlock()

	for _, c := range caches {
		c.Reset()
	}
}

func (s *SessionService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.caches)
}
