package ops

import (
	"context"
	"time"

	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/issues"
	"github.com/hpungsan/sightline/internal/score"
	"github.com/hpungsan/sightline/internal/signal"
)

// ScoreInput addresses the entity to score.
type ScoreInput struct {
	ProjectID string
	Entity    string // kind:id; empty means the project entity
}

// ScoreOutput contains a score and the entity it belongs to.
type ScoreOutput struct {
	ProjectID string      `json:"project_id"`
	Entity    string      `json:"entity"`
	Score     score.Score `json:"score"`
}

// ComputeScore scores the entity's current snapshot and stores the result.
// An entity with no signals gets a score whose values are all null.
func ComputeScore(ctx context.Context, deps *Deps, input ScoreInput) (*ScoreOutput, error) {
	ref, err := resolveEntity(input.ProjectID, input.Entity)
	if err != nil {
		return nil, err
	}
	return computeAndStore(ctx, deps, ref)
}

func computeAndStore(ctx context.Context, deps *Deps, ref signal.EntityRef) (*ScoreOutput, error) {
	entities, err := deps.Signals.ProjectSignals(ctx, ref.ProjectID)
	if err != nil {
		return nil, err
	}
	applicability, err := deps.Applicability.ProjectApplicability(ctx, ref.ProjectID)
	if err != nil {
		return nil, err
	}

	s := score.Compute(entities[ref], deps.Rules.Score, applicability)
	s.ComputedAt = deps.now().Truncate(time.Second)
	if err := db.SaveScore(ctx, deps.DB, ref, s); err != nil {
		return nil, err
	}

	deps.Logger.Debug("score computed", "project_id", ref.ProjectID, "entity", ref.String(), "overall", s.Overall)

	return &ScoreOutput{ProjectID: ref.ProjectID, Entity: ref.String(), Score: s}, nil
}

// GetScore returns the last stored score of an entity.
func GetScore(ctx context.Context, deps *Deps, input ScoreInput) (*ScoreOutput, error) {
	ref, err := resolveEntity(input.ProjectID, input.Entity)
	if err != nil {
		return nil, err
	}
	s, err := db.GetScore(ctx, deps.DB, ref)
	if err != nil {
		return nil, err
	}
	return &ScoreOutput{ProjectID: ref.ProjectID, Entity: ref.String(), Score: *s}, nil
}

// DeriveIssuesInput contains parameters for the DeriveIssues operation.
type DeriveIssuesInput struct {
	ProjectID   string
	MinSeverity string // optional: info, warning or critical
	Limit       int    // 0 = all
}

// DeriveIssuesOutput contains the ordered issues of a project.
type DeriveIssuesOutput struct {
	ProjectID string         `json:"project_id"`
	Issues    []issues.Issue `json:"issues"`
	Total     int            `json:"total"`
}

// DeriveIssues derives the project's issues from the current signals of all
// its entities.
func DeriveIssues(ctx context.Context, deps *Deps, input DeriveIssuesInput) (*DeriveIssuesOutput, error) {
	ref, err := resolveEntity(input.ProjectID, "")
	if err != nil {
		return nil, err
	}
	minRank := 0
	if input.MinSeverity != "" {
		sev, err := issues.ParseSeverity(input.MinSeverity)
		if err != nil {
			return nil, err
		}
		minRank = sev.Rank()
	}

	entities, err := deps.Signals.ProjectSignals(ctx, ref.ProjectID)
	if err != nil {
		return nil, err
	}
	applicability, err := deps.Applicability.ProjectApplicability(ctx, ref.ProjectID)
	if err != nil {
		return nil, err
	}

	derived := issues.Derive(entities, applicability, deps.Rules.Issues)
	filtered := make([]issues.Issue, 0, len(derived))
	for _, is := range derived {
		if is.Severity.Rank() >= minRank {
			filtered = append(filtered, is)
		}
	}
	total := len(filtered)
	if input.Limit > 0 && len(filtered) > input.Limit {
		filtered = filtered[:input.Limit]
	}

	return &DeriveIssuesOutput{ProjectID: ref.ProjectID, Issues: filtered, Total: total}, nil
}
