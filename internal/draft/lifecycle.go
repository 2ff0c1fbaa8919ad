// Package draft models the lifecycle of a staged, reviewable change to one
// field group of an entity.
package draft

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/signal"
)

// State is the lifecycle state of a draft.
type State string

const (
	NoDraft          State = "NO_DRAFT"
	GeneratedUnsaved State = "GENERATED_UNSAVED"
	SavedNotApplied  State = "SAVED_NOT_APPLIED"
	Applied          State = "APPLIED"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case NoDraft, GeneratedUnsaved, SavedNotApplied, Applied:
		return true
	default:
		return false
	}
}

// Event drives a transition.
type Event string

const (
	EventGenerate   Event = "generate"
	EventRegenerate Event = "regenerate"
	EventSave       Event = "save"
	EventApply      Event = "apply"
	EventReset      Event = "reset"
)

// Transition returns the state reached from `from` on ev. Transitions out of
// Applied start a new cycle for the same field group; the applied record
// itself stays as history.
func Transition(from State, ev Event) (State, error) {
	switch from {
	case NoDraft:
		switch ev {
		case EventGenerate:
			return GeneratedUnsaved, nil
		case EventSave:
			return SavedNotApplied, nil
		}
	case GeneratedUnsaved:
		switch ev {
		case EventGenerate, EventRegenerate:
			return GeneratedUnsaved, nil
		case EventSave:
			return SavedNotApplied, nil
		case EventReset:
			return NoDraft, nil
		}
	case SavedNotApplied:
		switch ev {
		case EventRegenerate:
			return GeneratedUnsaved, nil
		case EventSave:
			return SavedNotApplied, nil
		case EventApply:
			return Applied, nil
		case EventReset:
			return NoDraft, nil
		}
	case Applied:
		switch ev {
		case EventGenerate, EventRegenerate:
			return GeneratedUnsaved, nil
		case EventSave:
			return SavedNotApplied, nil
		case EventReset:
			return NoDraft, nil
		}
	}
	return from, errors.NewConflict(fmt.Sprintf("cannot %s a draft in state %s", ev, from))
}

// StartsNewCycle reports whether ev from `from` creates a fresh draft record
// instead of mutating the current one.
func StartsNewCycle(from State, ev Event) bool {
	return (from == Applied || from == NoDraft) && ev != EventReset
}

// Draft is a proposed change to one field group of an entity. The latest
// draft for an (entity, field group) supersedes earlier unapplied ones;
// applied drafts are immutable history.
type Draft struct {
	ID              string           `json:"id"`
	Entity          signal.EntityRef `json:"entity"`
	FieldGroup      string           `json:"field_group"`
	AIWorkKey       string           `json:"ai_work_key,omitempty"`
	RawSuggestion   string           `json:"raw_suggestion"`
	FinalSuggestion string           `json:"final_suggestion"`
	GeneratedWithAI bool             `json:"generated_with_ai"`
	State           State            `json:"state"`
	// Version increases on every mutation; saves are compare-and-swap on it
	// and approvals are bound to it.
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// ValidateFieldGroup checks a field group name.
func ValidateFieldGroup(fieldGroup string) error {
	fg := strings.TrimSpace(fieldGroup)
	if fg == "" {
		return errors.NewInvalidRequest("field_group is required")
	}
	if fg != fieldGroup {
		return errors.NewInvalidRequest("field_group must not have surrounding whitespace")
	}
	return nil
}

// CheckSave guards the destructive case: saving empty content over a
// non-empty live value requires explicit confirmation.
func CheckSave(fieldGroup, liveValue, finalSuggestion string, confirmedClear bool) error {
	if strings.TrimSpace(finalSuggestion) == "" && strings.TrimSpace(liveValue) != "" && !confirmedClear {
		return errors.NewConfirmationRequired(fieldGroup)
	}
	return nil
}
