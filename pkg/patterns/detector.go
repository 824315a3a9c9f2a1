// Package patterns classifies sample values against known data patterns
// (email, UUID, ISO date, ...). Detection is pure and stateless: the pattern
// table is compiled once at init and safe for concurrent use.
package patterns

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var patternsYAML []byte

// AcceptanceThreshold is the minimum match rate for a pattern to be reported.
// Matches must be a strict majority of the sample to be meaningful; 0.70
// tolerates a few dirty rows without reporting coincidental matches.
const AcceptanceThreshold = 0.70

// Pattern is one named regular expression from the pattern table.
type Pattern struct {
	Name  string
	regex *regexp.Regexp
}

type patternFile struct {
	Patterns []struct {
		Name  string `yaml:"name"`
		Regex string `yaml:"regex"`
	} `yaml:"patterns"`
}

// table preserves declaration order so rate ties resolve deterministically.
var table []Pattern

func init() {
	var err error
	table, err = loadPatterns(patternsYAML)
	if err != nil {
		panic(fmt.Sprintf("patterns: invalid embedded pattern table: %v", err))
	}
}

func loadPatterns(raw []byte) ([]Pattern, error) {
	var pf patternFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse pattern table: %w", err)
	}

	patterns := make([]Pattern, 0, len(pf.Patterns))
	for _, p := range pf.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p.Name, err)
		}
		patterns = append(patterns, Pattern{Name: p.Name, regex: re})
	}
	return patterns, nil
}

// Detect classifies a sample of string values against the pattern table.
// It returns the name of the best-matching pattern and the fraction of
// non-empty values it matched. ok is false when no pattern clears the
// acceptance threshold, or when the sample contains no non-empty values.
//
// Callers are responsible for capping the sample size before calling.
func Detect(values []string) (name string, rate float64, ok bool) {
	nonEmpty := 0
	for _, v := range values {
		if v != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return "", 0, false
	}

	bestRate := 0.0
	bestName := ""
	for _, p := range table {
		matched := 0
		for _, v := range values {
			if v != "" && p.regex.MatchString(v) {
				matched++
			}
		}
		r := float64(matched) / float64(nonEmpty)
		// Strict > keeps earlier declarations on ties.
		if r > bestRate {
			bestRate = r
			bestName = p.Name
		}
	}

	if bestRate <= AcceptanceThreshold {
		return "", 0, false
	}
	return bestName, bestRate, true
}

// Names returns the pattern names in declaration order.
func Names() []string {
	names := make([]string, len(table))
	for i, p := range table {
		names[i] = p.Name
	}
	return names
}
