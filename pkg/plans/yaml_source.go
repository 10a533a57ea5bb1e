package plans

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLSource loads plan definitions from a YAML file.
//
// Expected layout:
//
//	plans:
//	  - id: free
//	    name: Free
//	    characters_per_month: 5000
//	  - id: pro_monthly
//	    name: Pro
//	    characters_per_month: -1
//	    price_by_interval:
//	      month: {amount: 1900, currency: USD}
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a Source reading the given file on every Load call,
// so a restart picks up catalog edits without code changes.
func NewYAMLSource(path string) *YAMLSource {
	if path == "" {
		panic("plans: yaml source path is required")
	}
	return &YAMLSource{path: path}
}

func (s *YAMLSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, fmt.Errorf("parse %s: %w", s.path, err))
	}

	out := make(map[string]Plan, len(doc.Plans))
	for _, plan := range doc.Plans {
		if _, exists := out[plan.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %q in %s", plan.ID, s.path))
		}
		out[plan.ID] = plan
	}
	return out, nil
}
