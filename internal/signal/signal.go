// Package signal defines the normalized measurements consumed by scoring and
// issue derivation, and the per-pillar applicability decisions that gate them.
package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hpungsan/sightline/internal/errors"
)

// PillarID names a category of discoverability concern.
type PillarID string

const (
	PillarMetadata       PillarID = "metadata"
	PillarContent        PillarID = "content"
	PillarEntities       PillarID = "entities"
	PillarTechnical      PillarID = "technical"
	PillarLocalDiscovery PillarID = "local_discovery"
	PillarVisibility     PillarID = "visibility"
)

// Pillars lists every known pillar.
func Pillars() []PillarID {
	return []PillarID{PillarMetadata, PillarContent, PillarEntities, PillarTechnical, PillarLocalDiscovery, PillarVisibility}
}

// ParsePillarID validates a pillar name, ignoring case and surrounding space.
func ParsePillarID(s string) (PillarID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, p := range Pillars() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown pillar %q", s))
}

// Validate rejects anything that is not a known pillar in canonical form.
func (p PillarID) Validate() error {
	if parsed, err := ParsePillarID(string(p)); err != nil || parsed != p {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown pillar %q", string(p)))
	}
	return nil
}

// UnmarshalText accepts any spelling ParsePillarID accepts and stores the
// canonical name, so decoded rules and requests compare equal to constants.
func (p *PillarID) UnmarshalText(text []byte) error {
	parsed, err := ParsePillarID(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// EntityRef identifies a scored entity within a project.
type EntityRef struct {
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"`
	ID        string `json:"id"`
}

// String returns the project-local form "kind:id".
func (r EntityRef) String() string {
	return r.Kind + ":" + r.ID
}

// Validate rejects references with missing parts or reserved characters.
func (r EntityRef) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.NewInvalidRequest("entity project_id is required")
	}
	if strings.TrimSpace(r.Kind) == "" || strings.TrimSpace(r.ID) == "" {
		return errors.NewInvalidRequest("entity kind and id are required")
	}
	if strings.Contains(r.Kind, ":") {
		return errors.NewInvalidRequest(fmt.Sprintf("entity kind must not contain ':': %q", r.Kind))
	}
	return nil
}

// ParseEntityRef parses "kind:id" into an EntityRef for the given project.
func ParseEntityRef(projectID, s string) (EntityRef, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return EntityRef{}, errors.NewInvalidRequest(fmt.Sprintf("entity must be of the form kind:id, got %q", s))
	}
	ref := EntityRef{ProjectID: strings.TrimSpace(projectID), Kind: kind, ID: id}
	if err := ref.Validate(); err != nil {
		return EntityRef{}, err
	}
	return ref, nil
}

// ProjectRef is the entity that carries project-wide signals.
func ProjectRef(projectID string) EntityRef {
	return EntityRef{ProjectID: projectID, Kind: "project", ID: projectID}
}

// Signal is one normalized measurement.
type Signal struct {
	Key   string    `json:"key"`
	Value float64   `json:"value"`
	Scope EntityRef `json:"scope"`
}

// Type returns the signal type of a key. Keys are "type" or "type:instance";
// instances of the same type describe repeated occurrences of one gap.
func Type(key string) string {
	typ, _, _ := strings.Cut(key, ":")
	return typ
}

// ValidateValue rejects empty keys and non-finite values. Finite values
// outside [0,1] are accepted and clamped at use.
func ValidateValue(key string, value float64) error {
	if strings.TrimSpace(key) == "" || Type(key) == "" {
		return errors.NewInvalidRequest("signal key is required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.NewInvalidRequest(fmt.Sprintf("signal %q has non-finite value", key))
	}
	return nil
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Snapshot is the signal map of one entity for one computation pass.
// Treat it as read-only once built; use Clone before modifying.
type Snapshot map[string]float64

// NewSnapshot validates and copies values into a Snapshot.
func NewSnapshot(values map[string]float64) (Snapshot, error) {
	snap := make(Snapshot, len(values))
	for k, v := range values {
		if err := ValidateValue(k, v); err != nil {
			return nil, err
		}
		snap[k] = v
	}
	return snap, nil
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Instances returns the clamped values recorded for a signal type, ordered
// by key so that callers combine them deterministically.
func (s Snapshot) Instances(typ string) (keys []string, values []float64) {
	for k := range s {
		if Type(k) == typ {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values = make([]float64, len(keys))
	for i, k := range keys {
		values[i] = Clamp(s[k])
	}
	return keys, values
}

// Batch is a set of signals spanning several entities.
type Batch []Signal

// Validate checks every signal; any invalid signal rejects the whole batch.
func (b Batch) Validate() error {
	for _, s := range b {
		if err := s.Scope.Validate(); err != nil {
			return err
		}
		if err := ValidateValue(s.Key, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// ByEntity groups the batch into one Snapshot per entity. Later signals with
// the same key overwrite earlier ones.
func (b Batch) ByEntity() map[EntityRef]Snapshot {
	out := make(map[EntityRef]Snapshot)
	for _, s := range b {
		snap, ok := out[s.Scope]
		if !ok {
			snap = make(Snapshot)
			out[s.Scope] = snap
		}
		snap[s.Key] = s.Value
	}
	return out
}
