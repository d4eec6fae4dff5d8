package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bazarly/auth-service/internal/domain"
	"github.com/bazarly/auth-service/internal/ports"
)

// MemoryOTPSessionStore is the in-process variant of the session store.
// The same verification logic runs against it in tests and single-node dev
// runs; a process restart invalidates every in-flight OTP attempt, which is
// acceptable for this state and documented behavior for the memory backend.
type MemoryOTPSessionStore struct {
	mu    sync.Mutex
	items map[string]memorySession
}

type memorySession struct {
	session ports.OTPSession
	dropAt  time.Time
}

func NewMemoryOTPSessionStore() *MemoryOTPSessionStore {
	return &MemoryOTPSessionStore{items: make(map[string]memorySession)}
}

func (s *MemoryOTPSessionStore) Put(_ context.Context, phoneNumber string, session ports.OTPSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[phoneNumber] = memorySession{
		session: session,
		dropAt:  time.Now().UTC().Add(ttl + expiredRetention),
	}
	return nil
}

func (s *MemoryOTPSessionStore) Get(_ context.Context, phoneNumber string) (*ports.OTPSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[phoneNumber]
	if !ok {
		return nil, nil
	}
	copied := item.session
	return &copied, nil
}

func (s *MemoryOTPSessionStore) IncrementAttempts(_ context.Context, phoneNumber string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[phoneNumber]
	if !ok {
		return 0, domain.ErrNoActiveSession
	}
	item.session.AttemptCount++
	s.items[phoneNumber] = item
	return item.session.AttemptCount, nil
}

func (s *MemoryOTPSessionStore) Delete(_ context.Context, phoneNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[phoneNumber]
	delete(s.items, phoneNumber)
	return ok, nil
}

// SweepExpired drops sessions past their retention deadline. Removing only
// expired entries makes it safe to run concurrently with verification.
func (s *MemoryOTPSessionStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for phone, item := range s.items {
		if now.After(item.dropAt) {
			delete(s.items, phone)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired sessions until the context is cancelled. Redis
// deployments do not need it; TTLs expire keys natively.
func (s *MemoryOTPSessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired(time.Now().UTC())
		}
	}
}

// MemoryRateLimitStore keeps the sliding send window as a pruned timestamp
// slice per phone number.
type MemoryRateLimitStore struct {
	mu    sync.Mutex
	sends map[string][]time.Time
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{sends: make(map[string][]time.Time)}
}

func (s *MemoryRateLimitStore) RecordSend(_ context.Context, phoneNumber string, now time.Time, window time.Duration, limit int) (ports.RateLimitDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.sends[phoneNumber][:0]
	for _, ts := range s.sends[phoneNumber] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.sends[phoneNumber] = kept
		retryAfter := kept[0].Add(window).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return ports.RateLimitDecision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	s.sends[phoneNumber] = append(kept, now)
	return ports.RateLimitDecision{Allowed: true}, nil
}

func (s *MemoryRateLimitStore) ReleaseSend(_ context.Context, phoneNumber string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sends := s.sends[phoneNumber]
	for i, ts := range sends {
		if ts.Equal(sentAt) {
			s.sends[phoneNumber] = append(sends[:i], sends[i+1:]...)
			return nil
		}
	}
	return nil
}

// MemoryRegistrationTicketStore is the in-process ticket store.
type MemoryRegistrationTicketStore struct {
	mu    sync.Mutex
	items map[string]memoryTicket
}

type memoryTicket struct {
	ticket ports.RegistrationTicket
	dropAt time.Time
}

func NewMemoryRegistrationTicketStore() *MemoryRegistrationTicketStore {
	return &MemoryRegistrationTicketStore{items: make(map[string]memoryTicket)}
}

func (s *MemoryRegistrationTicketStore) Put(_ context.Context, token string, ticket ports.RegistrationTicket, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[token] = memoryTicket{ticket: ticket, dropAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *MemoryRegistrationTicketStore) Get(_ context.Context, token string) (*ports.RegistrationTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[token]
	if !ok {
		return nil, nil
	}
	if time.Now().UTC().After(item.dropAt) {
		delete(s.items, token)
		return nil, nil
	}
	copied := item.ticket
	return &copied, nil
}

func (s *MemoryRegistrationTicketStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, token)
	return nil
}
