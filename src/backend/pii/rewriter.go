package pii

import (
	"fmt"
	"regexp"
	"strings"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

var (
	emailPattern = regexp.MustCompile(detectors.EmailPattern)
	ipv4Pattern  = regexp.MustCompile(detectors.IPv4Pattern)
)

// Rewriter applies a SubstitutionMap to text and then replaces every
// email-like and IPv4-like token with a freshly generated value.
type Rewriter struct {
	generator Generator
}

// RewriteStats counts what a rewrite replaced
type RewriteStats struct {
	Substitutions  int `json:"substitutions"`
	EmailsReplaced int `json:"emails_replaced"`
	IPv4Replaced   int `json:"ipv4_replaced"`
}

func NewRewriter(generator Generator) *Rewriter {
	return &Rewriter{generator: generator}
}

// Rewrite returns raw with every mapped original replaced by its substitute
// followed by the email and IPv4 pattern passes.
//
// Literal replacement runs over the whole text once per pair in insertion
// order. An original that is a substring of another original, or that
// occurs inside an earlier substitute, is replaced there too.
func (r *Rewriter) Rewrite(raw string, substitutions *SubstitutionMap) (string, error) {
	text, _, err := r.rewrite(raw, substitutions)
	return text, err
}

func (r *Rewriter) rewrite(raw string, substitutions *SubstitutionMap) (string, RewriteStats, error) {
	var stats RewriteStats
	if raw == "" {
		return "", stats, nil
	}

	text := raw
	if substitutions != nil {
		for _, s := range substitutions.entries {
			text = strings.ReplaceAll(text, s.Original, s.Substitute)
		}
		stats.Substitutions = substitutions.Len()
	}

	var err error
	text, stats.EmailsReplaced, err = r.replacePattern(text, emailPattern, detectors.KindEmail)
	if err != nil {
		return "", RewriteStats{}, err
	}
	text, stats.IPv4Replaced, err = r.replacePattern(text, ipv4Pattern, detectors.KindIPv4)
	if err != nil {
		return "", RewriteStats{}, err
	}
	return text, stats, nil
}

// replacePattern swaps every match for an independently generated value
func (r *Rewriter) replacePattern(text string, pattern *regexp.Regexp, kind detectors.EntityKind) (string, int, error) {
	var (
		count  int
		genErr error
	)
	out := pattern.ReplaceAllStringFunc(text, func(match string) string {
		if genErr != nil {
			return match
		}
		value, err := generateDistinct(r.generator, kind, match)
		if err != nil {
			genErr = err
			return match
		}
		count++
		return value
	})
	if genErr != nil {
		return "", 0, fmt.Errorf("%s pattern: %w", strings.ToLower(string(kind)), genErr)
	}
	return out, count, nil
}
