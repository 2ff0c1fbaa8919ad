// Package governance decides whether a draft may be applied. It is a pure
// gate over already computed state and has no access to generation.
package governance

import "github.com/hpungsan/sightline/internal/draft"

// State is the apply governance state.
type State string

const (
	CanApply    State = "CAN_APPLY"
	CannotApply State = "CANNOT_APPLY"
	InProgress  State = "IN_PROGRESS"
)

// Category classifies why apply is blocked.
type Category string

const (
	CategoryNone             Category = ""
	CategoryPermission       Category = "permission"
	CategoryApprovalRequired Category = "approval_required"
	CategoryDraft            Category = "draft"
	CategorySystem           Category = "system"
)

// Signals are the inputs to Derive.
type Signals struct {
	IsApplying              bool             `json:"is_applying"`
	Role                    RoleCapabilities `json:"role"`
	RequireApprovalForApply bool             `json:"require_approval_for_apply"`
	HasApproval             bool             `json:"has_approval"`
	DraftState              draft.State      `json:"draft_state"`
}

// Result is the governance decision. Blocked results always carry a reason
// and a next step.
type Result struct {
	State    State    `json:"state"`
	Category Category `json:"category,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	NextStep string   `json:"next_step,omitempty"`
}

// Derive evaluates the rules in priority order; the first match wins.
func Derive(s Signals) Result {
	if s.IsApplying {
		return Result{
			State:    InProgress,
			Category: CategorySystem,
			Reason:   "an apply is already in progress",
			NextStep: "wait for it to finish",
		}
	}

	if !s.Role.CanApply {
		if s.Role.CanRequestApproval {
			return Result{
				State:    CannotApply,
				Category: CategoryApprovalRequired,
				Reason:   "your role cannot apply changes directly",
				NextStep: "request approval from a project owner",
			}
		}
		return Result{
			State:    CannotApply,
			Category: CategoryPermission,
			Reason:   "your role does not allow applying changes",
			NextStep: "ask a project owner to apply or to change your role",
		}
	}

	if s.RequireApprovalForApply && !s.HasApproval {
		return Result{
			State:    CannotApply,
			Category: CategoryApprovalRequired,
			Reason:   "this project requires approval before applying",
			NextStep: "request approval for the current draft",
		}
	}

	switch s.DraftState {
	case draft.NoDraft:
		return Result{
			State:    CannotApply,
			Category: CategoryDraft,
			Reason:   "there is no draft to apply",
			NextStep: "generate a draft first",
		}
	case draft.GeneratedUnsaved:
		return Result{
			State:    CannotApply,
			Category: CategoryDraft,
			Reason:   "the draft has unsaved changes",
			NextStep: "save before applying",
		}
	case draft.Applied:
		return Result{
			State:    CannotApply,
			Category: CategorySystem,
			Reason:   "this draft is already applied",
			NextStep: "change something to re-enable apply",
		}
	case draft.SavedNotApplied:
		return Result{State: CanApply}
	default:
		return Result{
			State:    CannotApply,
			Category: CategorySystem,
			Reason:   "the draft is in an unknown state",
			NextStep: "reload the draft",
		}
	}
}
