package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/webmaker/logind/domain"
)

// MemoryTokenStore implements domain.LoginTokenRepository on ttlcache.
// Intended for dev mode and tests. A single mutex serializes mutations,
// which gives the same per-record compare-and-set guarantee the MongoDB
// store gets from single-document updates.
type MemoryTokenStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.LoginToken]
	ttl   time.Duration
}

// NewMemoryTokenStore creates an in-memory token store. Entries live for
// ttl, which should be the redemption window plus enough slack for
// expired tokens to stay observable as EXPIRED rather than NOT_FOUND.
func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.LoginToken](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.LoginToken](),
	)
	go cache.Start()

	return &MemoryTokenStore{cache: cache, ttl: ttl}
}

func (s *MemoryTokenStore) CreateToken(_ context.Context, token *domain.LoginToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.cache.Set(token.ID, &cp, s.ttl)
	return nil
}

func (s *MemoryTokenStore) LatestTokenForUser(_ context.Context, userID string) (*domain.LoginToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *domain.LoginToken
	for _, item := range s.cache.Items() {
		t := item.Value()
		if t.UserID != userID || t.Invalidated {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.ErrTokenNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryTokenStore) CodeInUse(_ context.Context, code string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.cache.Items() {
		t := item.Value()
		if t.Code == code && !t.Used && !t.Invalidated && !t.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryTokenStore) InvalidateTokens(_ context.Context, userID, audience string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, item := range s.cache.Items() {
		t := item.Value()
		if t.UserID == userID && t.Audience == audience && !t.Used && !t.Invalidated {
			t.Invalidated = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryTokenStore) RecordFailedAttempt(_ context.Context, tokenID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(tokenID)
	if item == nil {
		return 0, domain.ErrTokenNotFound
	}
	t := item.Value()
	if t.Used {
		return 0, domain.ErrTokenNotFound
	}
	t.FailedAttempts++
	return t.FailedAttempts, nil
}

func (s *MemoryTokenStore) ConsumeToken(_ context.Context, tokenID string, notBefore time.Time, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(tokenID)
	if item == nil {
		return false, nil
	}
	t := item.Value()
	if t.Used || t.Invalidated || t.FailedAttempts >= maxAttempts || t.CreatedAt.Before(notBefore) {
		return false, nil
	}
	t.Used = true
	return true, nil
}

func (s *MemoryTokenStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, item := range s.cache.Items() {
		if item.Value().CreatedAt.Before(before) {
			s.cache.Delete(id)
			n++
		}
	}
	return n, nil
}

// Close stops the cleanup goroutine.
func (s *MemoryTokenStore) Close() {
	s.cache.Stop()
}
