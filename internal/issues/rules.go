package issues

import (
	"fmt"
	"strings"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/signal"
)

// Severity ranks an issue. Order: critical > warning > info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank returns a comparable rank; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity validates a severity name.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", errors.NewInvalidRequest(fmt.Sprintf("severity must be one of: critical, warning, info; got %q", s))
	}
	return sev, nil
}

// Actionability records whether a fix can be drafted automatically.
type Actionability string

const (
	ActionManual      Actionability = "manual"
	ActionAutomatable Actionability = "automatable"
)

// Rule maps a signal deficit to a candidate issue. It fires when the combined
// deficit of the signal type is at least Threshold.
type Rule struct {
	Type          string          `yaml:"type" json:"type"`
	Pillar        signal.PillarID `yaml:"pillar" json:"pillar"`
	Signal        string          `yaml:"signal" json:"signal"`
	Threshold     float64         `yaml:"threshold" json:"threshold"`
	Severity      Severity        `yaml:"severity" json:"severity"`
	Actionability Actionability   `yaml:"actionability" json:"actionability"`
}

// Rules is the issue derivation configuration. PillarPriority orders issues
// of equal severity; pillars not listed sort after listed ones.
type Rules struct {
	PillarPriority []signal.PillarID `yaml:"pillar_priority" json:"pillar_priority"`
	Rules          []Rule            `yaml:"rules" json:"rules"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		PillarPriority: []signal.PillarID{
			signal.PillarTechnical,
			signal.PillarMetadata,
			signal.PillarContent,
			signal.PillarEntities,
			signal.PillarLocalDiscovery,
			signal.PillarVisibility,
		},
		Rules: []Rule{
			{Type: "missing_metadata", Pillar: signal.PillarMetadata, Signal: "metadataCompleteness", Threshold: 0.3, Severity: SeverityWarning, Actionability: ActionAutomatable},
			{Type: "missing_metadata", Pillar: signal.PillarMetadata, Signal: "metadataCompleteness", Threshold: 0.7, Severity: SeverityCritical, Actionability: ActionAutomatable},
			{Type: "thin_content", Pillar: signal.PillarContent, Signal: "contentDepth", Threshold: 0.4, Severity: SeverityWarning, Actionability: ActionAutomatable},
			{Type: "thin_content", Pillar: signal.PillarContent, Signal: "contentDepth", Threshold: 0.8, Severity: SeverityCritical, Actionability: ActionAutomatable},
			{Type: "low_content_coverage", Pillar: signal.PillarContent, Signal: "contentCoverage", Threshold: 0.5, Severity: SeverityWarning, Actionability: ActionManual},
			{Type: "missing_schema", Pillar: signal.PillarEntities, Signal: "schemaMarkup", Threshold: 0.5, Severity: SeverityWarning, Actionability: ActionAutomatable},
			{Type: "weak_entity_coverage", Pillar: signal.PillarEntities, Signal: "entityCoverage", Threshold: 0.5, Severity: SeverityInfo, Actionability: ActionManual},
			{Type: "weak_entity_coverage", Pillar: signal.PillarEntities, Signal: "entityCoverage", Threshold: 0.8, Severity: SeverityWarning, Actionability: ActionManual},
			{Type: "missing_local_presence", Pillar: signal.PillarLocalDiscovery, Signal: "localPresence", Threshold: 0.3, Severity: SeverityWarning, Actionability: ActionManual},
			{Type: "missing_local_presence", Pillar: signal.PillarLocalDiscovery, Signal: "localPresence", Threshold: 0.6, Severity: SeverityCritical, Actionability: ActionManual},
			{Type: "crawl_errors", Pillar: signal.PillarTechnical, Signal: "crawlHealth", Threshold: 0.2, Severity: SeverityCritical, Actionability: ActionManual},
			{Type: "not_indexable", Pillar: signal.PillarTechnical, Signal: "indexability", Threshold: 0.5, Severity: SeverityCritical, Actionability: ActionManual},
			{Type: "slow_pages", Pillar: signal.PillarTechnical, Signal: "pageSpeed", Threshold: 0.5, Severity: SeverityInfo, Actionability: ActionManual},
			{Type: "low_answer_readiness", Pillar: signal.PillarVisibility, Signal: "answerReadiness", Threshold: 0.4, Severity: SeverityWarning, Actionability: ActionAutomatable},
			{Type: "low_search_visibility", Pillar: signal.PillarVisibility, Signal: "searchVisibility", Threshold: 0.6, Severity: SeverityInfo, Actionability: ActionManual},
		},
	}
}

// Validate checks that every rule is complete, names a known pillar and has
// a threshold in (0,1].
func (r Rules) Validate() error {
	for _, p := range r.PillarPriority {
		if err := p.Validate(); err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("pillar_priority: unknown pillar %q", p))
		}
	}
	for i, rule := range r.Rules {
		if strings.TrimSpace(rule.Type) == "" || rule.Pillar == "" {
			return errors.NewInvalidRequest(fmt.Sprintf("rule %d: type and pillar are required", i))
		}
		if err := rule.Pillar.Validate(); err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("rule %d (%s): unknown pillar %q", i, rule.Type, rule.Pillar))
		}
		if strings.TrimSpace(rule.Signal) == "" || strings.Contains(rule.Signal, ":") {
			return errors.NewInvalidRequest(fmt.Sprintf("rule %d (%s): invalid signal type %q", i, rule.Type, rule.Signal))
		}
		if rule.Threshold <= 0 || rule.Threshold > 1 {
			return errors.NewInvalidRequest(fmt.Sprintf("rule %d (%s): threshold must be in (0,1]", i, rule.Type))
		}
		if rule.Severity.Rank() == 0 {
			return errors.NewInvalidRequest(fmt.Sprintf("rule %d (%s): unknown severity %q", i, rule.Type, rule.Severity))
		}
		switch rule.Actionability {
		case ActionManual, ActionAutomatable:
		default:
			return errors.NewInvalidRequest(fmt.Sprintf("rule %d (%s): unknown actionability %q", i, rule.Type, rule.Actionability))
		}
	}
	return nil
}
