package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/sightline/internal/issues"
	"github.com/hpungsan/sightline/internal/score"
)

// RuleSet is the tunable part of scoring: component weights and the
// signal-to-issue rules.
type RuleSet struct {
	Score  score.Model  `yaml:"score"`
	Issues issues.Rules `yaml:"issues"`
}

// DefaultRuleSet returns the compiled-in model and rules.
func DefaultRuleSet() RuleSet {
	return RuleSet{Score: score.DefaultModel(), Issues: issues.DefaultRules()}
}

// LoadRules reads a rules.yaml file. An empty path or missing file yields
// the defaults. A section left out of the file keeps its default; a section
// present in the file replaces the default entirely.
func LoadRules(path string) (RuleSet, error) {
	if path == "" {
		return DefaultRuleSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRuleSet(), nil
		}
		return RuleSet{}, err
	}
	return ParseRules(data)
}

// ParseRules decodes rules YAML and validates the result.
func ParseRules(data []byte) (RuleSet, error) {
	var raw RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return RuleSet{}, fmt.Errorf("parsing rules: %w", err)
	}

	rs := DefaultRuleSet()
	if len(raw.Score.Components) > 0 {
		rs.Score = raw.Score
	}
	if len(raw.Issues.Rules) > 0 {
		rs.Issues.Rules = raw.Issues.Rules
	}
	if len(raw.Issues.PillarPriority) > 0 {
		rs.Issues.PillarPriority = raw.Issues.PillarPriority
	}

	if err := rs.Score.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("score model: %w", err)
	}
	if err := rs.Issues.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("issue rules: %w", err)
	}
	return rs, nil
}
