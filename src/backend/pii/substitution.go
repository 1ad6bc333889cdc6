package pii

import (
	"fmt"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

// maxRegenerateAttempts bounds retries when a generator returns the original value
const maxRegenerateAttempts = 5

// mappedKinds are the kinds the mapper substitutes. EMAIL and IPV4 are left
// to the rewriter's pattern pass; OTHER is never substituted.
var mappedKinds = map[detectors.EntityKind]bool{
	detectors.KindPerson:       true,
	detectors.KindOrganization: true,
	detectors.KindLocation:     true,
	detectors.KindDate:         true,
}

// Substitution is one original -> synthetic pair
type Substitution struct {
	Original   string
	Substitute string
	Kind       detectors.EntityKind
}

// SubstitutionMap maps original values to synthetic ones for a single
// document. Iteration follows insertion order.
type SubstitutionMap struct {
	entries []Substitution
	index   map[string]int
}

// NewSubstitutionMap returns an empty map
func NewSubstitutionMap() *SubstitutionMap {
	return &SubstitutionMap{index: make(map[string]int)}
}

// Add records original -> substitute. It returns false and leaves the map
// unchanged if original is already present.
func (m *SubstitutionMap) Add(original, substitute string, kind detectors.EntityKind) bool {
	if _, exists := m.index[original]; exists {
		return false
	}
	m.index[original] = len(m.entries)
	m.entries = append(m.entries, Substitution{Original: original, Substitute: substitute, Kind: kind})
	return true
}

// Get returns the substitute for original
func (m *SubstitutionMap) Get(original string) (string, bool) {
	i, ok := m.index[original]
	if !ok {
		return "", false
	}
	return m.entries[i].Substitute, true
}

func (m *SubstitutionMap) Contains(original string) bool {
	_, ok := m.index[original]
	return ok
}

func (m *SubstitutionMap) Len() int {
	return len(m.entries)
}

// Entries returns a copy of the pairs in insertion order
func (m *SubstitutionMap) Entries() []Substitution {
	out := make([]Substitution, len(m.entries))
	copy(out, m.entries)
	return out
}

// CountByKind returns how many pairs were recorded per kind
func (m *SubstitutionMap) CountByKind() map[detectors.EntityKind]int {
	counts := make(map[detectors.EntityKind]int)
	for _, e := range m.entries {
		counts[e.Kind]++
	}
	return counts
}

// BuildMap assigns a synthetic value to every distinct entity text of a
// mapped kind, in the order the entities are given. The first occurrence of
// a text wins; later entities with the same text are skipped whatever their
// kind. Entities with empty text are ignored.
func BuildMap(entities []detectors.Entity, generator Generator) (*SubstitutionMap, error) {
	m := NewSubstitutionMap()
	for _, entity := range entities {
		if entity.Text == "" || !mappedKinds[entity.Label] || m.Contains(entity.Text) {
			continue
		}

		substitute, err := generateDistinct(generator, entity.Label, entity.Text)
		if err != nil {
			return nil, err
		}
		m.Add(entity.Text, substitute, entity.Label)
	}
	return m, nil
}

// generateDistinct asks for a value of kind that differs from original
func generateDistinct(generator Generator, kind detectors.EntityKind, original string) (string, error) {
	for attempt := 0; attempt < maxRegenerateAttempts; attempt++ {
		value, err := generator.Generate(kind)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrGeneration, kind, err)
		}
		if value != original {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s: generator returned the original value %d times", ErrGeneration, kind, maxRegenerateAttempts)
}
