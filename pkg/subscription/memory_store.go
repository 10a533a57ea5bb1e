package subscription

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It mirrors the
// concurrency semantics of the Postgres store (atomic per-key transitions)
// and is intended for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Subscription // keyed by provider "/" provider sub ID
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]*Subscription),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock used for created/updated timestamps.
// Test helper; not part of the Store interface.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func storeKey(provider Provider, providerSubID string) string {
	return string(provider) + "/" + providerSubID
}

func (s *MemoryStore) GetByProviderRef(ctx context.Context, provider Provider, providerSubID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[storeKey(provider, providerSubID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRow(row), nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, *copyRow(row))
		}
	}
	sortByTransition(out)
	return out, nil
}

func (s *MemoryStore) ListSweepable(ctx context.Context) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, row := range s.rows {
		if !row.IsTerminal() {
			out = append(out, *copyRow(row))
		}
	}
	sortByTransition(out)
	return out, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Subscription, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, *copyRow(row))
	}
	sortByTransition(out)
	return out, nil
}

func (s *MemoryStore) ApplyTransition(ctx context.Context, t Transition) (*Subscription, bool, error) {
	if !t.Provider.Valid() {
		return nil, false, ErrInvalidProvider
	}
	if t.ProviderSubscriptionID == "" {
		return nil, false, ErrEmptyProviderID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(t.Provider, t.ProviderSubscriptionID)
	row, ok := s.rows[key]
	if !ok {
		if t.UserID == uuid.Nil {
			return nil, false, ErrMissingUserID
		}
		row = newFromTransition(t, s.now())
		s.rows[key] = row
		return copyRow(row), true, nil
	}

	if !wins(row, t) {
		return copyRow(row), false, nil
	}

	mergeTransition(row, t, s.now())
	return copyRow(row), true, nil
}

func copyRow(row *Subscription) *Subscription {
	cp := *row
	if row.PriceAmount != nil {
		v := *row.PriceAmount
		cp.PriceAmount = &v
	}
	if row.BillingInterval != nil {
		v := *row.BillingInterval
		cp.BillingInterval = &v
	}
	if row.CurrentPeriodEnd != nil {
		v := *row.CurrentPeriodEnd
		cp.CurrentPeriodEnd = &v
	}
	if row.CanceledAt != nil {
		v := *row.CanceledAt
		cp.CanceledAt = &v
	}
	if row.LegacyMetadata != nil {
		cp.LegacyMetadata = maps.Clone(row.LegacyMetadata)
	}
	return &cp
}

func sortByTransition(rows []Subscription) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StatusChangedAt.After(rows[j].StatusChangedAt)
	})
}
