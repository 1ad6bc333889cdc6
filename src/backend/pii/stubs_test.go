package pii

import (
	"context"
	"fmt"
	"sync"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

// stubDetector returns a fixed entity list and counts calls
type stubDetector struct {
	mu       sync.Mutex
	entities []detectors.Entity
	err      error
	calls    int
	closed   bool
}

func (d *stubDetector) GetName() string { return "stub_detector" }

func (d *stubDetector) Detect(ctx context.Context, input detectors.DetectorInput) (detectors.DetectorOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return detectors.DetectorOutput{}, d.err
	}
	return detectors.DetectorOutput{Text: input.Text, Entities: d.entities}, nil
}

func (d *stubDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *stubDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stubProvider hands out a single detector, or an error
type stubProvider struct {
	detector detectors.Detector
	err      error
}

func (p *stubProvider) GetDetector() (detectors.Detector, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.detector, nil
}

// stubGenerator returns scripted values per kind, then "<kind>-<n>"
type stubGenerator struct {
	mu      sync.Mutex
	scripts map[detectors.EntityKind][]string
	counter map[detectors.EntityKind]int
	fail    map[detectors.EntityKind]error
	calls   int
}

func newStubGenerator() *stubGenerator {
	return &stubGenerator{
		scripts: map[detectors.EntityKind][]string{},
		counter: map[detectors.EntityKind]int{},
		fail:    map[detectors.EntityKind]error{},
	}
}

func (g *stubGenerator) script(kind detectors.EntityKind, values ...string) *stubGenerator {
	g.scripts[kind] = append(g.scripts[kind], values...)
	return g
}

func (g *stubGenerator) Generate(kind detectors.EntityKind) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := g.fail[kind]; err != nil {
		return "", err
	}
	if queue := g.scripts[kind]; len(queue) > 0 {
		g.scripts[kind] = queue[1:]
		return queue[0], nil
	}
	g.counter[kind]++
	return fmt.Sprintf("%s-%d", kind, g.counter[kind]), nil
}

func (g *stubGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func entity(kind detectors.EntityKind, text string) detectors.Entity {
	return detectors.Entity{Label: kind, Text: text, Confidence: 1.0}
}
