package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/sightline/internal/approval"
	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/governance"
)

// RequestApprovalInput contains parameters for the RequestApproval operation.
type RequestApprovalInput struct {
	Target
	ActorID string
}

// ApprovalOutput contains one approval request.
type ApprovalOutput struct {
	ProjectID string           `json:"project_id"`
	Approval  approval.Request `json:"approval"`
}

// RequestApproval asks for permission to apply the current saved draft at
// its current version. Pending requests left over from earlier versions are
// superseded.
func RequestApproval(ctx context.Context, deps *Deps, input RequestApprovalInput) (*ApprovalOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	if err := requireActor(input.ActorID); err != nil {
		return nil, err
	}
	role, err := roleOf(ctx, deps, ref.ProjectID, input.ActorID)
	if err != nil {
		return nil, err
	}
	if !governance.Capabilities(role).CanRequestApproval {
		return nil, errors.NewPermissionDenied("request approval", string(role))
	}

	now := deps.now()
	var req *approval.Request
	err = db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		current, state, err := currentDraft(ctx, tx, ref, fieldGroup)
		if err != nil {
			return err
		}
		if state != draft.SavedNotApplied {
			return errors.NewConflict("only a saved, unapplied draft can be sent for approval")
		}

		existing, err := db.ListApprovals(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		for _, stale := range approval.Stale(existing, current.ID, current.Version, now) {
			if err := db.DecideApproval(ctx, tx, stale); err != nil {
				return err
			}
			for i := range existing {
				if existing[i].ID == stale.ID {
					existing[i] = *stale
				}
			}
		}
		if err := approval.CheckCanCreate(existing, current.ID); err != nil {
			return err
		}
		if approval.HasApproval(existing, current.ID, current.Version) {
			return errors.NewConflict("this draft version is already approved")
		}

		id, err := generateULID(now)
		if err != nil {
			return errors.NewInternal(err)
		}
		req = &approval.Request{
			ID:           id,
			DraftID:      current.ID,
			DraftVersion: current.Version,
			RequestedBy:  input.ActorID,
			Status:       approval.StatusPending,
			CreatedAt:    now,
		}
		return db.InsertApproval(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}

	deps.Logger.Info("approval requested",
		"project_id", ref.ProjectID, "draft_id", req.DraftID, "version", req.DraftVersion, "actor_id", input.ActorID)

	return &ApprovalOutput{ProjectID: ref.ProjectID, Approval: *req}, nil
}

// DecideApprovalInput contains parameters for the DecideApproval operation.
type DecideApprovalInput struct {
	ProjectID  string
	ApprovalID string
	ActorID    string
	Decision   string
}

// DecideApproval approves or rejects a pending request. Approving a request
// whose draft has since been re-saved is refused; the approval would not
// cover the current content.
func DecideApproval(ctx context.Context, deps *Deps, input DecideApprovalInput) (*ApprovalOutput, error) {
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return nil, errors.NewInvalidRequest("project_id is required")
	}
	if strings.TrimSpace(input.ApprovalID) == "" {
		return nil, errors.NewInvalidRequest("approval_id is required")
	}
	if err := requireActor(input.ActorID); err != nil {
		return nil, err
	}
	decision, err := approval.ParseDecision(input.Decision)
	if err != nil {
		return nil, err
	}
	role, err := roleOf(ctx, deps, projectID, input.ActorID)
	if err != nil {
		return nil, err
	}
	if !governance.Capabilities(role).CanApply {
		return nil, errors.NewPermissionDenied("decide approvals", string(role))
	}

	now := deps.now()
	var req *approval.Request
	err = db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		req, err = db.GetApproval(ctx, tx, input.ApprovalID)
		if err != nil {
			return err
		}
		d, err := db.GetDraft(ctx, tx, req.DraftID)
		if err != nil {
			return err
		}
		if d.Entity.ProjectID != projectID {
			return errors.NewNotFound("approval", input.ApprovalID)
		}
		if decision == approval.Approve && d.Version != req.DraftVersion {
			if stale := approval.Stale([]approval.Request{*req}, d.ID, d.Version, now); len(stale) == 1 {
				req = stale[0]
				return db.DecideApproval(ctx, tx, req)
			}
		}
		if err := approval.Decide(req, decision, input.ActorID, now); err != nil {
			return err
		}
		return db.DecideApproval(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	if req.Status == approval.StatusSuperseded {
		return nil, errors.NewConflict("the draft changed after approval was requested; request approval again")
	}

	deps.Logger.Info("approval decided",
		"project_id", projectID, "approval_id", req.ID, "status", req.Status, "actor_id", input.ActorID)

	return &ApprovalOutput{ProjectID: projectID, Approval: *req}, nil
}

// ListApprovalsInput contains parameters for the ListApprovals operation.
type ListApprovalsInput struct {
	Target
}

// ListApprovalsOutput lists the approval history of the current draft.
type ListApprovalsOutput struct {
	Target
	DraftID   string             `json:"draft_id,omitempty"`
	Approvals []approval.Request `json:"approvals"`
}

// ListApprovals returns the approval requests of a field group's current draft.
func ListApprovals(ctx context.Context, deps *Deps, input ListApprovalsInput) (*ListApprovalsOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	out := &ListApprovalsOutput{
		Target:    Target{ProjectID: ref.ProjectID, Entity: ref.String(), FieldGroup: fieldGroup},
		Approvals: []approval.Request{},
	}
	current, _, err := currentDraft(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return out, nil
	}
	requests, err := db.ListApprovals(ctx, deps.DB, current.ID)
	if err != nil {
		return nil, err
	}
	out.DraftID = current.ID
	if requests != nil {
		out.Approvals = requests
	}
	return out, nil
}
