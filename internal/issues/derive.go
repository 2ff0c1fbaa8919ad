// Package issues derives a deduplicated, severity-ranked set of issues from
// signal deficits and per-pillar applicability.
package issues

import (
	"sort"

	"github.com/hpungsan/sightline/internal/signal"
)

// Issue is a derived, actionable problem. Issues are regenerated from the
// current snapshot on every request and are never a source of truth.
type Issue struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	PillarID           signal.PillarID `json:"pillar_id"`
	Severity           Severity        `json:"severity"`
	Actionability      Actionability   `json:"actionability"`
	AffectedEntityIDs  []string        `json:"affected_entity_ids"`
	CreatedFromSignals []string        `json:"created_from_signals"`
	// Impact is the largest combined deficit behind the issue, in [0,1].
	Impact float64 `json:"impact"`

	entity string
}

type issueKey struct {
	typ    string
	pillar signal.PillarID
	entity string
}

// Derive evaluates rules against each entity's snapshot.
//
// Pillars declared not applicable produce no issues. Candidates that share
// (type, pillar, entity) collapse into one issue keeping the highest severity.
// Repeated instances of a signal type are combined with signal.Saturate before
// the threshold check. Entities with an empty snapshot produce nothing.
func Derive(entities map[signal.EntityRef]signal.Snapshot, applicability signal.Applicability, rules Rules) []Issue {
	byKey := make(map[issueKey]*Issue)
	var order []issueKey

	for ref, snap := range entities {
		if len(snap) == 0 {
			continue
		}
		entityID := ref.String()
		for _, rule := range rules.Rules {
			if applicability.Excludes(rule.Pillar) {
				continue
			}
			value, keys, ok := signal.EffectiveValue(snap, rule.Signal)
			if !ok {
				continue
			}
			deficit := 1 - value
			if deficit < rule.Threshold {
				continue
			}

			k := issueKey{typ: rule.Type, pillar: rule.Pillar, entity: entityID}
			existing, found := byKey[k]
			if !found {
				byKey[k] = &Issue{
					ID:                 string(rule.Pillar) + "/" + rule.Type + "/" + entityID,
					Type:               rule.Type,
					PillarID:           rule.Pillar,
					Severity:           rule.Severity,
					Actionability:      rule.Actionability,
					AffectedEntityIDs:  []string{entityID},
					CreatedFromSignals: append([]string(nil), keys...),
					Impact:             deficit,
					entity:             entityID,
				}
				order = append(order, k)
				continue
			}
			merge(existing, rule, keys, deficit, entityID)
		}
	}

	out := make([]Issue, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	Sort(out, rules.PillarPriority)
	return out
}

func merge(dst *Issue, rule Rule, keys []string, deficit float64, entityID string) {
	if rule.Severity.Rank() > dst.Severity.Rank() {
		dst.Severity = rule.Severity
	}
	if rule.Actionability == ActionAutomatable {
		dst.Actionability = ActionAutomatable
	}
	if deficit > dst.Impact {
		dst.Impact = deficit
	}
	dst.AffectedEntityIDs = union(dst.AffectedEntityIDs, []string{entityID})
	dst.CreatedFromSignals = union(dst.CreatedFromSignals, keys)
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Sort orders issues by severity desc, pillar priority, entity id, then type.
func Sort(list []Issue, pillarPriority []signal.PillarID) {
	prio := make(map[signal.PillarID]int, len(pillarPriority))
	for i, p := range pillarPriority {
		prio[p] = i
	}
	rank := func(p signal.PillarID) int {
		if i, ok := prio[p]; ok {
			return i
		}
		return len(pillarPriority)
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if rank(a.PillarID) != rank(b.PillarID) {
			return rank(a.PillarID) < rank(b.PillarID)
		}
		if a.PillarID != b.PillarID {
			return a.PillarID < b.PillarID
		}
		if entityOf(a) != entityOf(b) {
			return entityOf(a) < entityOf(b)
		}
		return a.Type < b.Type
	})
}

func entityOf(i Issue) string {
	if i.entity != "" {
		return i.entity
	}
	if len(i.AffectedEntityIDs) > 0 {
		return i.AffectedEntityIDs[0]
	}
	return ""
}
