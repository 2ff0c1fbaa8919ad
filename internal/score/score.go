// Package score aggregates normalized signals into named components and one
// overall discoverability score.
package score

import (
	"math"
	"time"

	"github.com/hpungsan/sightline/internal/signal"
)

// Score is a computed projection of a signal snapshot. A nil value means
// nothing was measured; it is never coerced to zero.
type Score struct {
	Overall    *int                 `json:"overall"`
	Components map[ComponentID]*int `json:"components"`
	ComputedAt time.Time            `json:"computed_at"`
}

// ComputeScore scores snap with the default model and no applicability exclusions.
func ComputeScore(snap signal.Snapshot) Score {
	return Compute(snap, DefaultModel(), nil)
}

// Compute scores snap. Signals belonging to a pillar declared not applicable
// are treated as absent. Repeated instances of a signal type are combined
// with signal.EffectiveValue. ComputedAt is left for the caller to stamp.
func Compute(snap signal.Snapshot, model Model, applicability signal.Applicability) Score {
	out := Score{Components: make(map[ComponentID]*int, len(model.Components))}

	var weighted, totalWeight float64
	for _, c := range model.Components {
		v := component(snap, c, applicability)
		out.Components[c.ID] = v
		if v == nil {
			continue
		}
		weighted += c.Weight * float64(*v)
		totalWeight += c.Weight
	}

	if totalWeight > 0 {
		overall := int(math.Round(weighted / totalWeight))
		out.Overall = &overall
	}
	return out
}

func component(snap signal.Snapshot, c ComponentDef, applicability signal.Applicability) *int {
	var num, den float64
	for _, sw := range c.Signals {
		if applicability.Excludes(sw.Pillar) {
			continue
		}
		v, _, ok := signal.EffectiveValue(snap, sw.Signal)
		if !ok {
			continue
		}
		num += sw.Weight * v
		den += sw.Weight
	}
	if den == 0 {
		return nil
	}
	value := int(math.Round(100 * num / den))
	return &value
}

// Equal reports whether two scores have the same overall and component values.
// ComputedAt is ignored.
func Equal(a, b Score) bool {
	if !equalPtr(a.Overall, b.Overall) || len(a.Components) != len(b.Components) {
		return false
	}
	for id, av := range a.Components {
		bv, ok := b.Components[id]
		if !ok || !equalPtr(av, bv) {
			return false
		}
	}
	return true
}

func equalPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
