package pii

import (
	"context"
	"regexp"
	"sort"
)

// RegexDetector implements Detector using regular expressions
type RegexDetector struct {
	patterns map[string]*regexp.Regexp
}

func NewRegexDetector(patterns map[string]string) *RegexDetector {
	regexMap := make(map[string]*regexp.Regexp)
	for label, pattern := range patterns {
		regexMap[label] = regexp.MustCompile(pattern)
	}

	return &RegexDetector{
		patterns: regexMap,
	}
}

// GetName returns the name of this detector
func (r *RegexDetector) GetName() string {
	return DetectorNameRegex
}

// Detect processes the input and returns detected entities ordered by position
func (r *RegexDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	if err := ctx.Err(); err != nil {
		return DetectorOutput{}, err
	}

	entities := []Entity{}
	for label, pattern := range r.patterns {
		kind := ParseEntityKind(label)
		for _, match := range pattern.FindAllStringIndex(input.Text, -1) {
			entities = append(entities, Entity{
				Text:       input.Text[match[0]:match[1]],
				Label:      kind,
				StartPos:   match[0],
				EndPos:     match[1],
				Confidence: 1.0,
			})
		}
	}

	// Map iteration is random; downstream substitution order follows detector
	// order, so it has to be stable.
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].StartPos != entities[j].StartPos {
			return entities[i].StartPos < entities[j].StartPos
		}
		if entities[i].EndPos != entities[j].EndPos {
			return entities[i].EndPos > entities[j].EndPos
		}
		return entities[i].Label < entities[j].Label
	})

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

// Close implements the Detector interface
func (r *RegexDetector) Close() error {
	return nil
}
