package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/fixcache"
	"github.com/hpungsan/sightline/internal/generate"
	"github.com/hpungsan/sightline/internal/signal"
)

// DraftOutput describes the current draft of a field group.
type DraftOutput struct {
	ProjectID  string       `json:"project_id"`
	Entity     string       `json:"entity"`
	FieldGroup string       `json:"field_group"`
	State      draft.State  `json:"state"`
	Draft      *draft.Draft `json:"draft,omitempty"`
	LiveValue  string       `json:"live_value"`
	Diff       *draft.Diff  `json:"diff,omitempty"`
}

func newDraftOutput(ref signal.EntityRef, fieldGroup string, d *draft.Draft, state draft.State, live string) *DraftOutput {
	out := &DraftOutput{
		ProjectID:  ref.ProjectID,
		Entity:     ref.String(),
		FieldGroup: fieldGroup,
		State:      state,
		Draft:      d,
		LiveValue:  live,
	}
	if d != nil && state != draft.Applied {
		diff := draft.Preview(live, d.FinalSuggestion)
		out.Diff = &diff
	}
	return out
}

// GenerateDraftInput contains parameters for the GenerateDraft operation.
type GenerateDraftInput struct {
	Target
	FixType string
	// Refresh bypasses a cached suggestion for identical content. It still
	// counts against the AI quota.
	Refresh bool
}

// GenerateDraftOutput contains the result of the GenerateDraft operation.
type GenerateDraftOutput struct {
	DraftOutput
	Reused  bool   `json:"reused"`
	WorkKey string `json:"work_key"`
}

// GenerateDraft produces a suggestion through the fix cache and stores it as
// the field group's unsaved draft. A cache hit costs no quota. If generation
// fails or times out the draft is left as it was.
func GenerateDraft(ctx context.Context, deps *Deps, cache *fixcache.Cache, gen generate.Generator, input GenerateDraftInput) (*GenerateDraftOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	fixType := strings.TrimSpace(input.FixType)
	if fixType == "" {
		return nil, errors.NewInvalidRequest("fix_type is required")
	}

	current, from, err := currentDraft(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	ev := draft.EventGenerate
	if from == draft.GeneratedUnsaved || from == draft.SavedNotApplied {
		ev = draft.EventRegenerate
	}
	to, err := draft.Transition(from, ev)
	if err != nil {
		return nil, err
	}

	live, err := db.GetLiveField(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}

	now := deps.now()
	keyInput := WorkKeyInput{
		ProjectID:       ref.ProjectID,
		Entity:          ref.String(),
		FieldGroup:      fieldGroup,
		FixType:         fixType,
		LiveContent:     live,
		TemplateVersion: deps.Config.TemplateVersion,
	}
	if input.Refresh {
		nonce, err := generateULID(now)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		keyInput.Refresh = nonce
	}
	workKey := WorkKey(keyInput)

	req := generate.Request{
		ProjectID:       ref.ProjectID,
		EntityRef:       ref.String(),
		FieldGroup:      fieldGroup,
		FixType:         fixType,
		LiveContent:     live,
		TemplateVersion: deps.Config.TemplateVersion,
	}

	genCtx := ctx
	if timeout := deps.Config.GenerationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, reused, err := cache.GetOrGenerate(genCtx, workKey, func(ctx context.Context) (fixcache.Payload, error) {
		return generateCharged(ctx, deps, gen, req)
	})
	if err != nil {
		deps.Logger.Warn("draft generation failed",
			"project_id", ref.ProjectID, "entity", ref.String(), "field_group", fieldGroup, "error", err)
		return nil, err
	}

	var d *draft.Draft
	if draft.StartsNewCycle(from, ev) {
		id, err := generateULID(now)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		d = &draft.Draft{
			ID:              id,
			Entity:          ref,
			FieldGroup:      fieldGroup,
			AIWorkKey:       workKey,
			RawSuggestion:   payload.Suggestion,
			FinalSuggestion: payload.Suggestion,
			GeneratedWithAI: true,
			State:           to,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	} else {
		next := *current
		d = &next
		d.AIWorkKey = workKey
		d.RawSuggestion = payload.Suggestion
		d.FinalSuggestion = payload.Suggestion
		d.GeneratedWithAI = true
		d.State = to
		d.UpdatedAt = now
	}
	if err := writeDraft(ctx, deps, ref, fieldGroup, current, d); err != nil {
		return nil, err
	}

	deps.Logger.Info("draft generated",
		"project_id", ref.ProjectID, "entity", ref.String(), "field_group", fieldGroup,
		"draft_id", d.ID, "reused", reused, "work_key", workKey)

	return &GenerateDraftOutput{
		DraftOutput: *newDraftOutput(ref, fieldGroup, d, d.State, live),
		Reused:      reused,
		WorkKey:     workKey,
	}, nil
}

// writeDraft stores d as the next state of the draft that was read as seen
// (nil when no draft was active). A draft that starts a new cycle is
// inserted only if the head is still seen; otherwise d replaces seen by
// compare-and-swap. Either way a concurrent writer makes this a CONFLICT.
func writeDraft(ctx context.Context, deps *Deps, ref signal.EntityRef, fieldGroup string, seen, d *draft.Draft) error {
	return db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		if seen != nil && d.ID == seen.ID {
			return db.UpdateDraft(ctx, tx, d, seen.Version, seen.State)
		}
		head, _, err := currentDraft(ctx, tx, ref, fieldGroup)
		if err != nil {
			return err
		}
		if !sameDraft(head, seen) {
			return errors.NewConflict("the draft changed since it was loaded")
		}
		return db.InsertDraft(ctx, tx, d)
	})
}

func sameDraft(a, b *draft.Draft) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.Version == b.Version && a.State == b.State
}

// generateCharged runs on a cache miss only. It reserves one unit of the
// project's daily quota and gives it back if generation produces nothing.
func generateCharged(ctx context.Context, deps *Deps, gen generate.Generator, req generate.Request) (fixcache.Payload, error) {
	day := db.UsageDay(deps.now())
	used, err := db.ReserveUsage(ctx, deps.DB, req.ProjectID, day, deps.Config.AIDailyQuota)
	if err != nil {
		return fixcache.Payload{}, err
	}

	p, err := gen.Generate(ctx, req)
	if err != nil {
		if relErr := db.ReleaseUsage(context.WithoutCancel(ctx), deps.DB, req.ProjectID, day); relErr != nil {
			deps.Logger.Error("releasing AI quota", "project_id", req.ProjectID, "error", relErr)
		}
		return fixcache.Payload{}, err
	}
	if strings.TrimSpace(p.Suggestion) == "" {
		_ = db.ReleaseUsage(context.WithoutCancel(ctx), deps.DB, req.ProjectID, day)
		return fixcache.Payload{}, errors.NewGenerationFailed(nil)
	}

	deps.Logger.Info("AI generation", "project_id", req.ProjectID, "fix_type", req.FixType, "used_today", used)
	return p, nil
}

// SaveDraftInput contains parameters for the SaveDraft operation.
type SaveDraftInput struct {
	Target
	FinalSuggestion string
	// ExpectedVersion, when non-zero, must match the current draft version.
	ExpectedVersion int64
	// ConfirmClear acknowledges that an empty suggestion will clear a
	// non-empty live value on apply.
	ConfirmClear bool
}

// SaveDraft stores the user's final suggestion. Without a current draft it
// creates a manual one. Every save bumps the draft version, which voids any
// approval granted for an earlier version.
func SaveDraft(ctx context.Context, deps *Deps, input SaveDraftInput) (*DraftOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}

	current, from, err := currentDraft(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	to, err := draft.Transition(from, draft.EventSave)
	if err != nil {
		return nil, err
	}
	if input.ExpectedVersion != 0 && (current == nil || current.Version != input.ExpectedVersion) {
		return nil, errors.NewConflict("the draft changed since it was loaded")
	}

	live, err := db.GetLiveField(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	if err := draft.CheckSave(fieldGroup, live, input.FinalSuggestion, input.ConfirmClear); err != nil {
		return nil, err
	}

	now := deps.now()
	var d *draft.Draft
	if draft.StartsNewCycle(from, draft.EventSave) {
		id, err := generateULID(now)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		d = &draft.Draft{
			ID:              id,
			Entity:          ref,
			FieldGroup:      fieldGroup,
			FinalSuggestion: input.FinalSuggestion,
			State:           to,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	} else {
		next := *current
		d = &next
		d.FinalSuggestion = input.FinalSuggestion
		d.State = to
		d.UpdatedAt = now
	}
	if err := writeDraft(ctx, deps, ref, fieldGroup, current, d); err != nil {
		return nil, err
	}

	deps.Logger.Info("draft saved",
		"project_id", ref.ProjectID, "entity", ref.String(), "field_group", fieldGroup,
		"draft_id", d.ID, "version", d.Version, "manual", !d.GeneratedWithAI)

	return newDraftOutput(ref, fieldGroup, d, d.State, live), nil
}

// GetDraftInput contains parameters for the GetDraft operation.
type GetDraftInput struct {
	Target
}

// GetDraft returns the current draft of a field group with a preview of what
// applying it would change.
func GetDraft(ctx context.Context, deps *Deps, input GetDraftInput) (*DraftOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}
	current, state, err := currentDraft(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	live, err := db.GetLiveField(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	return newDraftOutput(ref, fieldGroup, current, state, live), nil
}

// ResetDraftInput contains parameters for the ResetDraft operation.
type ResetDraftInput struct {
	Target
	ExpectedVersion int64
}

// ResetDraft discards the current draft. An unapplied draft is marked
// NO_DRAFT in place; an applied draft stays as history and a reset marker
// starts the next cycle.
func ResetDraft(ctx context.Context, deps *Deps, input ResetDraftInput) (*DraftOutput, error) {
	ref, fieldGroup, err := input.Target.resolve()
	if err != nil {
		return nil, err
	}

	now := deps.now()
	err = db.WithTx(ctx, deps.DB, func(tx *sql.Tx) error {
		current, from, err := currentDraft(ctx, tx, ref, fieldGroup)
		if err != nil {
			return err
		}
		to, err := draft.Transition(from, draft.EventReset)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != 0 && current.Version != input.ExpectedVersion {
			return errors.NewConflict("the draft changed since it was loaded")
		}

		if from == draft.Applied {
			id, err := generateULID(now)
			if err != nil {
				return errors.NewInternal(err)
			}
			return db.InsertDraft(ctx, tx, &draft.Draft{
				ID:         id,
				Entity:     ref,
				FieldGroup: fieldGroup,
				State:      to,
				Version:    1,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}

		expected, expectedState := current.Version, current.State
		current.State = to
		current.UpdatedAt = now
		return db.UpdateDraft(ctx, tx, current, expected, expectedState)
	})
	if err != nil {
		return nil, err
	}

	deps.Logger.Info("draft reset", "project_id", ref.ProjectID, "entity", ref.String(), "field_group", fieldGroup)

	live, err := db.GetLiveField(ctx, deps.DB, ref, fieldGroup)
	if err != nil {
		return nil, err
	}
	return newDraftOutput(ref, fieldGroup, nil, draft.NoDraft, live), nil
}
