package signal

import (
	"fmt"
	"strings"

	"github.com/hpungsan/sightline/internal/errors"
)

// ApplicabilityStatus records whether a pillar applies to a project.
type ApplicabilityStatus string

const (
	Applicable    ApplicabilityStatus = "applicable"
	NotApplicable ApplicabilityStatus = "not_applicable"
	Unknown       ApplicabilityStatus = "unknown"
)

// ParseApplicabilityStatus validates a status string.
func ParseApplicabilityStatus(s string) (ApplicabilityStatus, error) {
	st := ApplicabilityStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case Applicable, NotApplicable, Unknown:
		return st, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("applicability status must be one of: applicable, not_applicable, unknown; got %q", s))
	}
}

// ReasonCode explains an applicability decision, e.g. "no_physical_location".
type ReasonCode string

// ApplicabilityDecision is the merchant-declared applicability of one pillar.
type ApplicabilityDecision struct {
	Status  ApplicabilityStatus `json:"status"`
	Reasons []ReasonCode        `json:"reasons,omitempty"`
}

// Applicability maps pillars to decisions. Pillars without an entry are Unknown.
type Applicability map[PillarID]ApplicabilityDecision

// Excludes reports whether the pillar is declared not applicable. A nil
// map excludes nothing.
func (a Applicability) Excludes(p PillarID) bool {
	d, ok := a[p]
	return ok && d.Status == NotApplicable
}

// Decision returns the pillar's decision, defaulting to Unknown.
func (a Applicability) Decision(p PillarID) ApplicabilityDecision {
	if d, ok := a[p]; ok {
		return d
	}
	return ApplicabilityDecision{Status: Unknown}
}
