package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/signal"
)

const draftColumns = `
	id, project_id, entity_kind, entity_id, field_group, ai_work_key,
	raw_suggestion, final_suggestion, generated_with_ai, state, version,
	created_at, updated_at, applied_at
`

// InsertDraft stores a new draft record.
func InsertDraft(ctx context.Context, q DBTX, d *draft.Draft) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO drafts (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.Entity.ProjectID, d.Entity.Kind, d.Entity.ID, d.FieldGroup, toNullString(d.AIWorkKey),
		d.RawSuggestion, d.FinalSuggestion, d.GeneratedWithAI, string(d.State), d.Version,
		d.CreatedAt.Unix(), d.UpdatedAt.Unix(), toNullTime(d.AppliedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("draft %s already exists", d.ID))
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetDraft retrieves a draft by ID.
func GetDraft(ctx context.Context, q DBTX, id string) (*draft.Draft, error) {
	row := q.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("draft", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return d, nil
}

// LatestDraft returns the most recent draft for an entity field group, or
// nil if none was ever created.
func LatestDraft(ctx context.Context, q DBTX, ref signal.EntityRef, fieldGroup string) (*draft.Draft, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM drafts
		WHERE project_id = ? AND entity_kind = ? AND entity_id = ? AND field_group = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, ref.ProjectID, ref.Kind, ref.ID, fieldGroup)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return d, nil
}

// UpdateDraft writes d if the stored row still has expectedVersion and
// expectedState. On success d.Version is advanced by one. A lost race
// returns CONFLICT and leaves d untouched.
func UpdateDraft(ctx context.Context, q DBTX, d *draft.Draft, expectedVersion int64, expectedState draft.State) error {
	result, err := q.ExecContext(ctx, `
		UPDATE drafts
		SET ai_work_key = ?, raw_suggestion = ?, final_suggestion = ?, generated_with_ai = ?,
			state = ?, version = ?, updated_at = ?, applied_at = ?
		WHERE id = ? AND version = ? AND state = ?
	`,
		toNullString(d.AIWorkKey), d.RawSuggestion, d.FinalSuggestion, d.GeneratedWithAI,
		string(d.State), expectedVersion+1, d.UpdatedAt.Unix(), toNullTime(d.AppliedAt),
		d.ID, expectedVersion, string(expectedState),
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewConflict(fmt.Sprintf("draft %s was modified concurrently (expected version %d)", d.ID, expectedVersion))
	}

	d.Version = expectedVersion + 1
	return nil
}

func scanDraft(row *sql.Row) (*draft.Draft, error) {
	var d draft.Draft
	var workKey sql.NullString
	var state string
	var createdAt, updatedAt int64
	var appliedAt sql.NullInt64

	err := row.Scan(
		&d.ID, &d.Entity.ProjectID, &d.Entity.Kind, &d.Entity.ID, &d.FieldGroup, &workKey,
		&d.RawSuggestion, &d.FinalSuggestion, &d.GeneratedWithAI, &state, &d.Version,
		&createdAt, &updatedAt, &appliedAt,
	)
	if err != nil {
		return nil, err
	}

	d.AIWorkKey = workKey.String
	d.State = draft.State(state)
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	d.AppliedAt = fromNullTime(appliedAt)
	return &d, nil
}

// toNullString maps an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}
