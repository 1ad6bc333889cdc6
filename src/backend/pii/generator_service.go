package pii

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
	piiGenerators "github.com/hannes/doc-cleanser/src/backend/pii/generators"
)

// Generator produces a synthetic value for an entity kind. Successive calls
// for the same kind are independent.
type Generator interface {
	Generate(kind detectors.EntityKind) (string, error)
}

// GeneratorService handles PII replacement generation. Safe for concurrent use.
type GeneratorService struct {
	mu         sync.Mutex
	rng        *rand.Rand
	generators map[detectors.EntityKind]piiGenerators.Func
}

// NewGeneratorService creates a new generator service
func NewGeneratorService() *GeneratorService {
	// #nosec G404 - Using math/rand for synthetic PII generation, not security-critical
	return newGeneratorService(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewGeneratorServiceWithSeed creates a generator with a fixed seed for deterministic output (testing)
func NewGeneratorServiceWithSeed(seed int64) *GeneratorService {
	// #nosec G404 - Using math/rand for synthetic PII generation, not security-critical
	return newGeneratorService(rand.New(rand.NewSource(seed)))
}

func newGeneratorService(rng *rand.Rand) *GeneratorService {
	return &GeneratorService{
		rng: rng,
		generators: map[detectors.EntityKind]piiGenerators.Func{
			detectors.KindPerson:       piiGenerators.PersonName,
			detectors.KindOrganization: piiGenerators.CompanyName,
			detectors.KindLocation:     piiGenerators.City,
			detectors.KindDate:         piiGenerators.Date,
			detectors.KindEmail:        piiGenerators.Email,
			detectors.KindIPv4:         piiGenerators.IPv4,
		},
	}
}

// Generate returns a synthetic value for kind. OTHER and unknown kinds have
// no generator.
func (s *GeneratorService) Generate(kind detectors.EntityKind) (string, error) {
	generator, ok := s.generators[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return generator(s.rng), nil
}
