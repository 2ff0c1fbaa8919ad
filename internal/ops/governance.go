package ops

import (
	"context"

	"github.com/hpungsan/sightline/internal/approval"
	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/governance"
	"github.com/hpungsan/sightline/internal/signal"
)

// GovernanceInput contains parameters for the GetGovernance operation.
type GovernanceInput struct {
	Target
	ActorID string
}

// GovernanceOutput is the apply decision for one actor and field group.
type GovernanceOutput struct {
	Target
	ActorID string             `json:"actor_id"`
	Role    governance.Role    `json:"role,omitempty"`
	Signals governance.Signals `json:"signals"`
	governance.Result
	DraftID      string `json:"draft_id,omitempty"`
	DraftVersion int64  `json:"draft_version,omitempty"`
}

// GetGovernance reports whether the actor could apply the current draft now,
// and if not, why and what to do next.
func GetGovernance(ctx context.Context, deps *Deps, input GovernanceInput) (*GovernanceOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	if err := requireActor(input.ActorID); err != nil {
		return nil, err
	}
	current, state, err := currentDraft(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	applying := deps.Tracker.IsApplying(trackerKey(ref, fieldGroup))
	return evaluate(ctx, deps, ref, fieldGroup, input.ActorID, current, state, applying)
}

func evaluate(ctx context.Context, deps *Deps, ref signal.EntityRef, fieldGroup, actorID string, current *draft.Draft, state draft.State, applying bool) (*GovernanceOutput, error) {
	role, err := roleOf(ctx, deps, ref.ProjectID, actorID)
	if err != nil {
		return nil, err
	}

	sig := governance.Signals{
		IsApplying:              applying,
		Role:                    governance.Capabilities(role),
		RequireApprovalForApply: deps.Config.RequireApprovalForApply,
		DraftState:              state,
	}
	out := &GovernanceOutput{
		Target:  Target{ProjectID: ref.ProjectID, Entity: ref.String(), FieldGroup: fieldGroup},
		ActorID: actorID,
		Role:    role,
	}
	if current != nil {
		requests, err := db.ListApprovals(ctx, deps.DB, current.ID)
		if err != nil {
			return nil, err
		}
		sig.HasApproval = approval.HasApproval(requests, current.ID, current.Version)
		out.DraftID = current.ID
		out.DraftVersion = current.Version
	}

	out.Signals = sig
	out.Result = governance.Derive(sig)
	return out, nil
}
