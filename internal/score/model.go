package score

import (
	"fmt"
	"strings"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/signal"
)

// ComponentID names a score bucket.
type ComponentID string

const (
	ComponentContent    ComponentID = "content"
	ComponentEntities   ComponentID = "entities"
	ComponentTechnical  ComponentID = "technical"
	ComponentVisibility ComponentID = "visibility"
)

// SignalWeight binds a signal type to a component.
type SignalWeight struct {
	Signal string          `yaml:"signal" json:"signal"`
	Weight float64         `yaml:"weight" json:"weight"`
	Pillar signal.PillarID `yaml:"pillar" json:"pillar"`
}

// ComponentDef defines one component and its weight in the overall score.
type ComponentDef struct {
	ID      ComponentID    `yaml:"id" json:"id"`
	Weight  float64        `yaml:"weight" json:"weight"`
	Signals []SignalWeight `yaml:"signals" json:"signals"`
}

// Model is the scoring configuration.
type Model struct {
	Components []ComponentDef `yaml:"components" json:"components"`
}

// DefaultModel returns the built-in scoring model.
func DefaultModel() Model {
	return Model{Components: []ComponentDef{
		{
			ID:     ComponentContent,
			Weight: 0.30,
			Signals: []SignalWeight{
				{Signal: "contentCoverage", Weight: 3, Pillar: signal.PillarContent},
				{Signal: "contentDepth", Weight: 2, Pillar: signal.PillarContent},
				{Signal: "metadataCompleteness", Weight: 2, Pillar: signal.PillarMetadata},
			},
		},
		{
			ID:     ComponentEntities,
			Weight: 0.25,
			Signals: []SignalWeight{
				{Signal: "entityCoverage", Weight: 3, Pillar: signal.PillarEntities},
				{Signal: "schemaMarkup", Weight: 2, Pillar: signal.PillarEntities},
				{Signal: "localPresence", Weight: 2, Pillar: signal.PillarLocalDiscovery},
			},
		},
		{
			ID:     ComponentTechnical,
			Weight: 0.25,
			Signals: []SignalWeight{
				{Signal: "crawlHealth", Weight: 3, Pillar: signal.PillarTechnical},
				{Signal: "indexability", Weight: 3, Pillar: signal.PillarTechnical},
				{Signal: "pageSpeed", Weight: 1, Pillar: signal.PillarTechnical},
			},
		},
		{
			ID:     ComponentVisibility,
			Weight: 0.20,
			Signals: []SignalWeight{
				{Signal: "searchVisibility", Weight: 3, Pillar: signal.PillarVisibility},
				{Signal: "answerReadiness", Weight: 2, Pillar: signal.PillarVisibility},
			},
		},
	}}
}

// Validate checks weights and identifiers.
func (m Model) Validate() error {
	if len(m.Components) == 0 {
		return errors.NewInvalidRequest("score model has no components")
	}
	seen := make(map[ComponentID]bool, len(m.Components))
	for _, c := range m.Components {
		if strings.TrimSpace(string(c.ID)) == "" {
			return errors.NewInvalidRequest("score component id is required")
		}
		if seen[c.ID] {
			return errors.NewInvalidRequest(fmt.Sprintf("duplicate score component %q", c.ID))
		}
		seen[c.ID] = true
		if c.Weight <= 0 {
			return errors.NewInvalidRequest(fmt.Sprintf("component %q must have a positive weight", c.ID))
		}
		if len(c.Signals) == 0 {
			return errors.NewInvalidRequest(fmt.Sprintf("component %q has no signals", c.ID))
		}
		for _, s := range c.Signals {
			if strings.TrimSpace(s.Signal) == "" || strings.Contains(s.Signal, ":") {
				return errors.NewInvalidRequest(fmt.Sprintf("component %q has an invalid signal type %q", c.ID, s.Signal))
			}
			if s.Weight <= 0 {
				return errors.NewInvalidRequest(fmt.Sprintf("signal %q in component %q must have a positive weight", s.Signal, c.ID))
			}
			if s.Pillar == "" {
				return errors.NewInvalidRequest(fmt.Sprintf("signal %q in component %q has no pillar", s.Signal, c.ID))
			}
			if err := s.Pillar.Validate(); err != nil {
				return errors.NewInvalidRequest(fmt.Sprintf("signal %q in component %q has unknown pillar %q", s.Signal, c.ID, s.Pillar))
			}
		}
	}
	return nil
}
