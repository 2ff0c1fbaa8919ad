package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/governance"
	"github.com/hpungsan/sightline/internal/score"
)

// ApplyDraftInput contains parameters for the ApplyDraft operation.
type ApplyDraftInput struct {
	Target
	ActorID string
	// ExpectedVersion, when non-zero, must match the draft the actor reviewed.
	ExpectedVersion int64
}

// ApplyDraftOutput contains the result of the ApplyDraft operation.
type ApplyDraftOutput struct {
	DraftOutput
	// Score is the entity's score after the change, when it could be recomputed.
	Score *score.Score `json:"score,omitempty"`
}

// ApplyDraft writes the saved suggestion to the live field. It never calls a
// generator. Only a draft in SAVED_NOT_APPLIED can be applied, at most once,
// and only while governance allows it.
func ApplyDraft(ctx context.Context, deps *Deps, input ApplyDraftInput) (*ApplyDraftOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	if err := requireActor(input.ActorID); err != nil {
		return nil, err
	}

	key := trackerKey(ref, fieldGroup)
	if !deps.Tracker.TryBegin(key) {
		return nil, errors.NewGovernanceBlocked(string(governance.InProgress), string(governance.CategorySystem),
			"an apply is already in progress", "wait for it to finish")
	}
	defer deps.Tracker.End(key)

	current, state, err := currentDraft(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}

	// The tracker entry is our own.
	decision, err := evaluate(ctx, deps, ref, fieldGroup, input.ActorID, current, state, false)
	if err != nil {
		return nil, err
	}
	if decision.State != governance.CanApply {
		return nil, errors.NewGovernanceBlocked(string(decision.State), string(decision.Category), decision.Reason, decision.NextStep)
	}
	if input.ExpectedVersion != 0 && current.Version != input.ExpectedVersion {
		return nil, errors.NewConflict("the draft changed since it was reviewed")
	}

	now := deps.now()
	expected, expectedState := current.Version, current.State
	err = db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		current.State = draft.Applied
		current.UpdatedAt = now
		current.AppliedAt = &now
		if err := db.UpdateDraft(ctx, tx, current, expected, expectedState); err != nil {
			return err
		}
		return db.SetLiveField(ctx, tx, ref, fieldGroup, current.FinalSuggestion, now.Unix())
	})
	if err != nil {
		return nil, err
	}

	deps.Logger.Info("draft applied",
		"project_id", ref.ProjectID, "entity", ref.String(), "field_group", fieldGroup,
		"draft_id", current.ID, "version", current.Version, "actor_id", input.ActorID)

	out := &ApplyDraftOutput{
		DraftOutput: *newDraftOutput(ref, fieldGroup, current, draft.Applied, current.FinalSuggestion),
	}
	scored, err := computeAndStore(ctx, deps, ref)
	if err != nil {
		deps.Logger.Warn("recomputing score after apply", "project_id", ref.ProjectID, "entity", ref.String(), "error", err)
	} else {
		out.Score = &scored.Score
	}
	return out, nil
}
