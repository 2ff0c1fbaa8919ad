package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/sightline/internal/errors"
)

// UsageDay is the UTC calendar day used as the quota bucket.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ReserveUsage atomically counts one generation against the project's quota
// for day. A limit of 0 means unlimited. It returns the count after the
// reservation, or QUOTA_EXCEEDED with nothing recorded.
func ReserveUsage(ctx context.Context, q DBTX, projectID, day string, limit int) (int, error) {
	if limit > 0 {
		used, err := GetUsage(ctx, q, projectID, day)
		if err != nil {
			return 0, err
		}
		if used >= limit {
			return used, errors.NewQuotaExceeded(projectID, used, limit)
		}
	}

	// The WHERE guard re-checks the limit so concurrent reservations cannot
	// overshoot it.
	result, err := q.ExecContext(ctx, `
		INSERT INTO ai_usage (project_id, day, count)
		VALUES (?, ?, 1)
		ON CONFLICT (project_id, day) DO UPDATE
		SET count = count + 1
		WHERE ? = 0 OR ai_usage.count < ?
	`, projectID, day, limit, limit)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	used, err := GetUsage(ctx, q, projectID, day)
	if err != nil {
		return 0, err
	}
	if rowsAffected == 0 {
		return used, errors.NewQuotaExceeded(projectID, used, limit)
	}
	return used, nil
}

// ReleaseUsage returns a reservation whose generation did not produce a result.
func ReleaseUsage(ctx context.Context, q DBTX, projectID, day string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE ai_usage SET count = count - 1 WHERE project_id = ? AND day = ? AND count > 0`,
		projectID, day)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetUsage returns the number of generations recorded for a project on day.
func GetUsage(ctx context.Context, q DBTX, projectID, day string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT count FROM ai_usage WHERE project_id = ? AND day = ?`, projectID, day).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
