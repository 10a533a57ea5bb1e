package plans

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Source defines how plan definitions are loaded into a Catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is the in-memory, immutable plan lookup used by metering and
// reporting. Plans are loaded once at construction; a missing plan is a
// configuration error, not a runtime mutation concern.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog loads and validates plans from the given source.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plans: source is required")
	}

	loaded, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(loaded); err != nil {
		return nil, err
	}

	return &Catalog{plans: maps.Clone(loaded)}, nil
}

// Resolve returns the plan for an ID.
func (c *Catalog) Resolve(planID string) (Plan, error) {
	plan, ok := c.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// All returns every plan keyed by ID. The returned map is a copy.
func (c *Catalog) All() map[string]Plan {
	return maps.Clone(c.plans)
}

// DefaultPrices derives a fallback price table keyed by plan ID and plan
// name. Revenue reporting uses it for rows that carry no stored price, which
// is common for migrated legacy orders. Preference is monthly, then yearly,
// then the lexicographically first interval, so the table is stable across
// restarts.
func (c *Catalog) DefaultPrices() map[string]Money {
	out := make(map[string]Money, len(c.plans)*2)
	for id, plan := range c.plans {
		price, ok := plan.Price("month")
		if !ok {
			price, ok = plan.Price("year")
		}
		if !ok {
			for _, interval := range slices.Sorted(maps.Keys(plan.PriceByInterval)) {
				price, ok = plan.PriceByInterval[interval], true
				break
			}
		}
		if !ok {
			continue
		}
		out[id] = price
		if plan.Name != "" {
			out[plan.Name] = price
		}
	}
	return out
}

func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("at least one plan is required"))
	}
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		if plan.CharactersPerMonth < 0 && plan.CharactersPerMonth != Unlimited {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has invalid character quota: %d", planID, plan.CharactersPerMonth))
		}
	}
	return nil
}

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory Source with a deep copy of the given
// plans. Panics if no plans are provided so the catalog always has at least
// one valid plan.
func NewInMemSource(plans ...Plan) Source {
	if len(plans) < 1 {
		panic("plans: at least one plan is required")
	}
	plansCopy := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		plansCopy[plan.ID] = copyPlan(plan)
	}
	return &inMemSource{plans: plansCopy}
}

// Load returns a copy of all plans from memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Plan, len(s.plans))
	for id, plan := range s.plans {
		out[id] = copyPlan(plan)
	}
	return out, nil
}

func copyPlan(plan Plan) Plan {
	return Plan{
		ID:                 plan.ID,
		Name:               plan.Name,
		CharactersPerMonth: plan.CharactersPerMonth,
		AllowedLanguages:   slices.Clone(plan.AllowedLanguages),
		PriceByInterval:    maps.Clone(plan.PriceByInterval),
		Public:             plan.Public,
	}
}
