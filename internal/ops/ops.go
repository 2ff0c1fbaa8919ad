package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/sightline/internal/config"
	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/governance"
	"github.com/hpungsan/sightline/internal/signal"
)

// SignalProvider supplies the signal snapshots of a project, one per entity.
type SignalProvider interface {
	ProjectSignals(ctx context.Context, projectID string) (map[signal.EntityRef]signal.Snapshot, error)
}

// ApplicabilityProvider supplies the per-pillar applicability of a project.
type ApplicabilityProvider interface {
	ProjectApplicability(ctx context.Context, projectID string) (signal.Applicability, error)
}

// RoleProvider resolves a user's role in a project.
type RoleProvider interface {
	MemberRole(ctx context.Context, projectID, userID string) (governance.Role, error)
}

// Deps holds what operations share. There is no generator here; only
// GenerateDraft receives one.
type Deps struct {
	DB            *sql.DB
	Config        *config.Config
	Rules         config.RuleSet
	Signals       SignalProvider
	Applicability ApplicabilityProvider
	Roles         RoleProvider
	Tracker       *ApplyTracker
	Logger        *slog.Logger
	Now           func() time.Time
}

// NewDeps wires the local sqlite providers. A nil logger discards output.
func NewDeps(database *sql.DB, cfg *config.Config, rules config.RuleSet, logger *slog.Logger) *Deps {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	local := &LocalProvider{DB: database}
	return &Deps{
		DB:            database,
		Config:        cfg,
		Rules:         rules,
		Signals:       local,
		Applicability: local,
		Roles:         local,
		Tracker:       NewApplyTracker(),
		Logger:        logger,
		Now:           time.Now,
	}
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// LocalProvider implements the providers on the local database.
type LocalProvider struct {
	DB *sql.DB
}

func (p *LocalProvider) ProjectSignals(ctx context.Context, projectID string) (map[signal.EntityRef]signal.Snapshot, error) {
	return db.ListProjectSignals(ctx, p.DB, projectID)
}

func (p *LocalProvider) ProjectApplicability(ctx context.Context, projectID string) (signal.Applicability, error) {
	return db.GetApplicability(ctx, p.DB, projectID)
}

func (p *LocalProvider) MemberRole(ctx context.Context, projectID, userID string) (governance.Role, error) {
	return db.GetMemberRole(ctx, p.DB, projectID, userID)
}

// ApplyTracker records which field groups have an apply in flight in this
// process. Cross-process races are caught by the draft version check.
type ApplyTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewApplyTracker creates an empty tracker.
func NewApplyTracker() *ApplyTracker {
	return &ApplyTracker{active: make(map[string]struct{})}
}

// TryBegin marks key as applying. It returns false if it already was.
func (t *ApplyTracker) TryBegin(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[key]; ok {
		return false
	}
	t.active[key] = struct{}{}
	return true
}

// End clears key.
func (t *ApplyTracker) End(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, key)
}

// IsApplying reports whether key has an apply in flight.
func (t *ApplyTracker) IsApplying(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[key]
	return ok
}

// Target addresses one field group of one entity.
type Target struct {
	ProjectID  string `json:"project_id"`
	Entity     string `json:"entity"` // kind:id; empty means the project entity
	FieldGroup string `json:"field_group"`
}

func (t Target) resolve() (signal.EntityRef, string, error) {
	ref, err := resolveEntity(t.ProjectID, t.Entity)
	if err != nil {
		return signal.EntityRef{}, "", err
	}
	if err := draft.ValidateFieldGroup(t.FieldGroup); err != nil {
		return signal.EntityRef{}, "", err
	}
	return ref, t.FieldGroup, nil
}

func resolveEntity(projectID, entity string) (signal.EntityRef, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return signal.EntityRef{}, errors.NewInvalidRequest("project_id is required")
	}
	if strings.TrimSpace(entity) == "" {
		return signal.ProjectRef(projectID), nil
	}
	return signal.ParseEntityRef(projectID, entity)
}

func trackerKey(ref signal.EntityRef, fieldGroup string) string {
	return ref.ProjectID + "/" + ref.String() + "#" + fieldGroup
}

// currentDraft returns the live draft of a field group. A missing record and
// a reset marker both read as NO_DRAFT with a nil draft.
func currentDraft(ctx context.Context, q db.DBTX, ref signal.EntityRef, fieldGroup string) (*draft.Draft, draft.State, error) {
	latest, err := db.LatestDraft(ctx, q, ref, fieldGroup)
	if err != nil {
		return nil, "", err
	}
	if latest == nil || latest.State == draft.NoDraft {
		return nil, draft.NoDraft, nil
	}
	return latest, latest.State, nil
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return errors.NewInvalidRequest("actor_id is required")
	}
	return nil
}

// roleOf resolves the actor's role. Non-members get no capabilities.
func roleOf(ctx context.Context, deps *Deps, projectID, actorID string) (governance.Role, error) {
	role, err := deps.Roles.MemberRole(ctx, projectID, strings.TrimSpace(actorID))
	if errors.Is(err, errors.ErrNotFound) {
		return "", nil
	}
	return role, err
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// generateULID generates a new ULID. IDs from one process sort in creation
// order, which LatestDraft relies on within a second.
func generateULID(now time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
