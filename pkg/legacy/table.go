package legacy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxley/billingkit/pkg/plans"
)

// Mapping is one resolved legacy identifier: the canonical plan and
// interval a historical item name corresponds to. A nil Interval marks a
// non-recurring (lifetime) purchase.
type Mapping struct {
	PlanID   string       `yaml:"plan_id"`
	PlanName string       `yaml:"plan_name"`
	Interval *string      `yaml:"interval"`
	Price    *plans.Money `yaml:"price"`
}

// Table maps legacy item identifiers to canonical plans. It is versioned
// and populated once at migration time: historical item names like "Pro
// Annual" or "6 Month Package" are resolved here instead of string-matched
// at runtime.
type Table struct {
	version  int
	mappings map[string]Mapping
}

type tableFile struct {
	Version  int                `yaml:"version"`
	Mappings map[string]Mapping `yaml:"mappings"`
}

// NewTable builds a lookup table from explicit entries. Keys are matched
// case-insensitively after trimming.
func NewTable(version int, mappings map[string]Mapping) (*Table, error) {
	if version <= 0 {
		return nil, fmt.Errorf("%w: version must be positive", ErrInvalidTable)
	}
	normalized := make(map[string]Mapping, len(mappings))
	for key, m := range mappings {
		k := normalizeKey(key)
		if k == "" {
			return nil, fmt.Errorf("%w: empty identifier", ErrInvalidTable)
		}
		if m.PlanID == "" {
			return nil, fmt.Errorf("%w: identifier %q has no plan_id", ErrInvalidTable, key)
		}
		if _, dup := normalized[k]; dup {
			return nil, fmt.Errorf("%w: duplicate identifier %q", ErrInvalidTable, key)
		}
		normalized[k] = m
	}
	return &Table{version: version, mappings: normalized}, nil
}

// LoadTable reads a lookup table from a YAML file.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	return NewTable(file.Version, file.Mappings)
}

// Version returns the table's migration version, recorded in the
// provenance metadata of every imported row.
func (t *Table) Version() int { return t.version }

// Lookup resolves a legacy item identifier.
func (t *Table) Lookup(identifier string) (Mapping, bool) {
	m, ok := t.mappings[normalizeKey(identifier)]
	return m, ok
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
