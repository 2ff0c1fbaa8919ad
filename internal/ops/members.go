package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/governance"
)

// SetMemberInput contains parameters for the SetMember operation.
type SetMemberInput struct {
	ProjectID string
	ActorID   string
	UserID    string
	Role      string
}

// SetMemberOutput contains the result of the SetMember operation.
type SetMemberOutput struct {
	ProjectID    string                      `json:"project_id"`
	UserID       string                      `json:"user_id"`
	Role         governance.Role             `json:"role"`
	Capabilities governance.RoleCapabilities `json:"capabilities"`
}

// SetMember assigns a role. The first member of a project must be an OWNER
// and bootstraps it; afterwards only members who can manage members may
// change roles, and the last OWNER cannot be demoted.
func SetMember(ctx context.Context, deps *Deps, input SetMemberInput) (*SetMemberOutput, error) {
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return nil, errors.NewInvalidRequest("project_id is required")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.NewInvalidRequest("user_id is required")
	}
	actorID := strings.TrimSpace(input.ActorID)
	role, err := governance.ParseRole(input.Role)
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		total, err := db.CountMembers(ctx, tx, projectID, "")
		if err != nil {
			return err
		}
		if total == 0 {
			if role != governance.RoleOwner {
				return errors.NewInvalidRequest("the first member of a project must be an OWNER")
			}
			return db.SetMember(ctx, tx, projectID, userID, role, deps.now().Unix())
		}

		if err := requireActor(actorID); err != nil {
			return err
		}
		actorRole, err := db.GetMemberRole(ctx, tx, projectID, actorID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		if !governance.Capabilities(actorRole).CanManageMembers {
			return errors.NewPermissionDenied("manage members", string(actorRole))
		}

		current, err := db.GetMemberRole(ctx, tx, projectID, userID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		if current == governance.RoleOwner && role != governance.RoleOwner {
			owners, err := db.CountMembers(ctx, tx, projectID, governance.RoleOwner)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return errors.NewConflict("cannot demote the last OWNER of a project")
			}
		}
		return db.SetMember(ctx, tx, projectID, userID, role, deps.now().Unix())
	})
	if err != nil {
		return nil, err
	}

	deps.Logger.Info("member set", "project_id", projectID, "user_id", userID, "role", role, "actor_id", actorID)

	return &SetMemberOutput{
		ProjectID:    projectID,
		UserID:       userID,
		Role:         role,
		Capabilities: governance.Capabilities(role),
	}, nil
}
