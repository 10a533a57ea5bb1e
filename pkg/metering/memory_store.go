package metering

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type periodKey struct {
	userID      uuid.UUID
	periodStart time.Time
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	periods map[periodKey]*UsagePeriod
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods: make(map[periodKey]*UsagePeriod),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID, periodStart time.Time) (UsagePeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.periods[periodKey{userID, periodStart.UTC()}]; ok {
		return *p, nil
	}
	return UsagePeriod{UserID: userID, PeriodStart: periodStart.UTC()}, nil
}

func (s *MemoryStore) Increment(_ context.Context, userID uuid.UUID, periodStart time.Time, n int64) (int64, int64, error) {
	if n <= 0 {
		return 0, 0, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey{userID, periodStart.UTC()}
	p, ok := s.periods[key]
	if !ok {
		p = &UsagePeriod{UserID: userID, PeriodStart: periodStart.UTC()}
		s.periods[key] = p
	}
	before := p.CharactersUsed
	p.CharactersUsed += n
	p.UpdatedAt = s.now()
	return before, p.CharactersUsed, nil
}
