package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/score"
	"github.com/hpungsan/sightline/internal/signal"
)

// SaveScore replaces the stored score of an entity.
func SaveScore(ctx context.Context, q DBTX, ref signal.EntityRef, s score.Score) error {
	components, err := json.Marshal(s.Components)
	if err != nil {
		return errors.NewInternal(err)
	}
	var overall sql.NullInt64
	if s.Overall != nil {
		overall = sql.NullInt64{Int64: int64(*s.Overall), Valid: true}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO scores (project_id, entity_kind, entity_id, overall, components_json, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, entity_kind, entity_id)
		DO UPDATE SET overall = excluded.overall, components_json = excluded.components_json, computed_at = excluded.computed_at
	`, ref.ProjectID, ref.Kind, ref.ID, overall, string(components), s.ComputedAt.Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetScore returns the last stored score of an entity.
func GetScore(ctx context.Context, q DBTX, ref signal.EntityRef) (*score.Score, error) {
	var overall sql.NullInt64
	var components string
	var computedAt int64
	err := q.QueryRowContext(ctx, `
		SELECT overall, components_json, computed_at
		FROM scores
		WHERE project_id = ? AND entity_kind = ? AND entity_id = ?
	`, ref.ProjectID, ref.Kind, ref.ID).Scan(&overall, &components, &computedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("score", ref.ProjectID+"/"+ref.String())
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	s := &score.Score{ComputedAt: time.Unix(computedAt, 0).UTC()}
	if err := json.Unmarshal([]byte(components), &s.Components); err != nil {
		return nil, errors.NewInternal(err)
	}
	if overall.Valid {
		v := int(overall.Int64)
		s.Overall = &v
	}
	return s, nil
}
