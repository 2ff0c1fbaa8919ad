package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/sightline/internal/approval"
	"github.com/hpungsan/sightline/internal/errors"
)

const approvalColumns = `id, draft_id, draft_version, requested_by, status, decided_by, decided_at, created_at`

// InsertApproval stores a new request. A second pending request for the
// same draft violates the partial unique index and returns CONFLICT.
func InsertApproval(ctx context.Context, q DBTX, r *approval.Request) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO approvals (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.DraftID, r.DraftVersion, r.RequestedBy, string(r.Status),
		toNullString(r.DecidedBy), toNullTime(r.DecidedAt), r.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("an approval request is already pending for this draft")
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetApproval retrieves a request by ID.
func GetApproval(ctx context.Context, q DBTX, id string) (*approval.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id)
	r, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("approval", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListApprovals returns every request for a draft, oldest first.
func ListApprovals(ctx context.Context, q DBTX, draftID string) ([]approval.Request, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE draft_id = ?
		ORDER BY created_at ASC, id ASC
	`, draftID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []approval.Request
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// DecideApproval persists a decision made on a pending request. It only
// succeeds if the stored request is still pending.
func DecideApproval(ctx context.Context, q DBTX, r *approval.Request) error {
	result, err := q.ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`, string(r.Status), toNullString(r.DecidedBy), toNullTime(r.DecidedAt), r.ID, string(approval.StatusPending))
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewConflict(fmt.Sprintf("approval request %s is no longer pending", r.ID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*approval.Request, error) {
	var r approval.Request
	var status string
	var decidedBy sql.NullString
	var decidedAt sql.NullInt64
	var createdAt int64

	if err := row.Scan(&r.ID, &r.DraftID, &r.DraftVersion, &r.RequestedBy, &status, &decidedBy, &decidedAt, &createdAt); err != nil {
		return nil, err
	}
	r.Status = approval.Status(status)
	r.DecidedBy = decidedBy.String
	r.DecidedAt = fromNullTime(decidedAt)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &r, nil
}
