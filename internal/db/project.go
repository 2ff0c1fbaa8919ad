package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/governance"
	"github.com/hpungsan/sightline/internal/signal"
)

// UpsertSignals writes every signal in the batch. The batch must already be
// validated.
func UpsertSignals(ctx context.Context, q DBTX, batch signal.Batch, now int64) error {
	query := `
		INSERT INTO signals (project_id, entity_kind, entity_id, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, entity_kind, entity_id, key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	for _, s := range batch {
		if _, err := q.ExecContext(ctx, query, s.Scope.ProjectID, s.Scope.Kind, s.Scope.ID, s.Key, s.Value, now); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// DeleteEntitySignals removes all signals of one entity.
func DeleteEntitySignals(ctx context.Context, q DBTX, ref signal.EntityRef) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM signals WHERE project_id = ? AND entity_kind = ? AND entity_id = ?`,
		ref.ProjectID, ref.Kind, ref.ID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSignal removes one signal key of an entity.
func DeleteSignal(ctx context.Context, q DBTX, ref signal.EntityRef, key string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM signals WHERE project_id = ? AND entity_kind = ? AND entity_id = ? AND key = ?`,
		ref.ProjectID, ref.Kind, ref.ID, key)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListProjectSignals returns one snapshot per entity of the project.
func ListProjectSignals(ctx context.Context, q DBTX, projectID string) (map[signal.EntityRef]signal.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT entity_kind, entity_id, key, value
		FROM signals
		WHERE project_id = ?
		ORDER BY entity_kind, entity_id, key
	`, projectID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make(map[signal.EntityRef]signal.Snapshot)
	for rows.Next() {
		var ref signal.EntityRef
		var key string
		var value float64
		if err := rows.Scan(&ref.Kind, &ref.ID, &key, &value); err != nil {
			return nil, errors.NewInternal(err)
		}
		ref.ProjectID = projectID
		snap, ok := out[ref]
		if !ok {
			snap = make(signal.Snapshot)
			out[ref] = snap
		}
		snap[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SetApplicability records the decision for one pillar.
func SetApplicability(ctx context.Context, q DBTX, projectID string, pillar signal.PillarID, d signal.ApplicabilityDecision, now int64) error {
	var reasons sql.NullString
	if len(d.Reasons) > 0 {
		data, err := json.Marshal(d.Reasons)
		if err != nil {
			return errors.NewInternal(err)
		}
		reasons = sql.NullString{String: string(data), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO applicability (project_id, pillar, status, reasons_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, pillar)
		DO UPDATE SET status = excluded.status, reasons_json = excluded.reasons_json, updated_at = excluded.updated_at
	`, projectID, string(pillar), string(d.Status), reasons, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetApplicability returns all recorded decisions for a project. Pillars
// without a row are absent and read as Unknown.
func GetApplicability(ctx context.Context, q DBTX, projectID string) (signal.Applicability, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT pillar, status, reasons_json FROM applicability WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make(signal.Applicability)
	for rows.Next() {
		var pillar, status string
		var reasons sql.NullString
		if err := rows.Scan(&pillar, &status, &reasons); err != nil {
			return nil, errors.NewInternal(err)
		}
		d := signal.ApplicabilityDecision{Status: signal.ApplicabilityStatus(status)}
		if reasons.Valid {
			if err := json.Unmarshal([]byte(reasons.String), &d.Reasons); err != nil {
				return nil, errors.NewInternal(err)
			}
		}
		out[signal.PillarID(pillar)] = d
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SetMember assigns a role to a user in a project.
func SetMember(ctx context.Context, q DBTX, projectID, userID string, role governance.Role, now int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO members (project_id, user_id, role, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (project_id, user_id)
		DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
	`, projectID, userID, string(role), now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetMemberRole returns the user's role, or NotFound if the user is not a member.
func GetMemberRole(ctx context.Context, q DBTX, projectID, userID string) (governance.Role, error) {
	var role string
	err := q.QueryRowContext(ctx,
		`SELECT role FROM members WHERE project_id = ? AND user_id = ?`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound("member", projectID+"/"+userID)
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return governance.Role(role), nil
}

// CountMembers returns the number of members holding role, or all members
// when role is empty.
func CountMembers(ctx context.Context, q DBTX, projectID string, role governance.Role) (int, error) {
	query := `SELECT COUNT(*) FROM members WHERE project_id = ?`
	args := []any{projectID}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, string(role))
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// GetLiveField returns the live value of a field group. A field that was
// never written reads as empty.
func GetLiveField(ctx context.Context, q DBTX, ref signal.EntityRef, fieldGroup string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `
		SELECT value FROM live_fields
		WHERE project_id = ? AND entity_kind = ? AND entity_id = ? AND field_group = ?
	`, ref.ProjectID, ref.Kind, ref.ID, fieldGroup).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return value, nil
}

// SetLiveField writes the live value of a field group.
func SetLiveField(ctx context.Context, q DBTX, ref signal.EntityRef, fieldGroup, value string, now int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO live_fields (project_id, entity_kind, entity_id, field_group, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, entity_kind, entity_id, field_group)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, ref.ProjectID, ref.Kind, ref.ID, fieldGroup, value, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
