package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sightline/internal/approval"
	"github.com/hpungsan/sightline/internal/draft"
	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/fixcache"
	"github.com/hpungsan/sightline/internal/governance"
	"github.com/hpungsan/sightline/internal/score"
	"github.com/hpungsan/sightline/internal/signal"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var home = signal.EntityRef{ProjectID: "p1", Kind: "page", ID: "home"}

func TestSignals_UpsertAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	batch := signal.Batch{
		{Key: "contentDepth", Value: 0.4, Scope: home},
		{Key: "schemaMarkup:product", Value: 0.2, Scope: home},
		{Key: "crawlHealth", Value: 1, Scope: signal.ProjectRef("p1")},
		{Key: "crawlHealth", Value: 0.1, Scope: signal.ProjectRef("other")},
	}
	require.NoError(t, UpsertSignals(ctx, db, batch, 100))
	require.NoError(t, UpsertSignals(ctx, db, signal.Batch{{Key: "contentDepth", Value: 0.9, Scope: home}}, 200))

	got, err := ListProjectSignals(ctx, db, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, signal.Snapshot{"contentDepth": 0.9, "schemaMarkup:product": 0.2}, got[home])
	assert.Equal(t, signal.Snapshot{"crawlHealth": 1}, got[signal.ProjectRef("p1")])

	require.NoError(t, DeleteSignal(ctx, db, home, "schemaMarkup:product"))
	got, err = ListProjectSignals(ctx, db, "p1")
	require.NoError(t, err)
	assert.Equal(t, signal.Snapshot{"contentDepth": 0.9}, got[home])

	require.NoError(t, DeleteEntitySignals(ctx, db, home))
	got, err = ListProjectSignals(ctx, db, "p1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestApplicability_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	empty, err := GetApplicability(ctx, db, "p1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	d := signal.ApplicabilityDecision{Status: signal.NotApplicable, Reasons: []signal.ReasonCode{"no_physical_location"}}
	require.NoError(t, SetApplicability(ctx, db, "p1", signal.PillarLocalDiscovery, d, 1))
	require.NoError(t, SetApplicability(ctx, db, "p1", signal.PillarVisibility, signal.ApplicabilityDecision{Status: signal.Applicable}, 1))

	got, err := GetApplicability(ctx, db, "p1")
	require.NoError(t, err)
	assert.Equal(t, d, got[signal.PillarLocalDiscovery])
	assert.True(t, got.Excludes(signal.PillarLocalDiscovery))
	assert.Nil(t, got[signal.PillarVisibility].Reasons)
}

func TestMembers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := GetMemberRole(ctx, db, "p1", "alex")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, SetMember(ctx, db, "p1", "alex", governance.RoleOwner, 1))
	require.NoError(t, SetMember(ctx, db, "p1", "sam", governance.RoleEditor, 1))
	require.NoError(t, SetMember(ctx, db, "p1", "sam", governance.RoleViewer, 2))

	role, err := GetMemberRole(ctx, db, "p1", "sam")
	require.NoError(t, err)
	assert.Equal(t, governance.RoleViewer, role)

	n, err := CountMembers(ctx, db, "p1", governance.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = CountMembers(ctx, db, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLiveFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, err := GetLiveField(ctx, db, home, "title")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, SetLiveField(ctx, db, home, "title", "Home", 1))
	require.NoError(t, SetLiveField(ctx, db, home, "title", "Welcome", 2))
	v, err = GetLiveField(ctx, db, home, "title")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", v)
}

func newTestDraft(id string, created time.Time) *draft.Draft {
	return &draft.Draft{
		ID:              id,
		Entity:          home,
		FieldGroup:      "title",
		AIWorkKey:       "wk",
		RawSuggestion:   "raw",
		FinalSuggestion: "raw",
		GeneratedWithAI: true,
		State:           draft.GeneratedUnsaved,
		Version:         1,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestDrafts_InsertGetLatest(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0).UTC()

	latest, err := LatestDraft(ctx, db, home, "title")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, InsertDraft(ctx, db, newTestDraft("01A", t0)))
	require.NoError(t, InsertDraft(ctx, db, newTestDraft("01B", t0)))
	assert.True(t, errors.Is(InsertDraft(ctx, db, newTestDraft("01B", t0)), errors.ErrConflict))

	got, err := GetDraft(ctx, db, "01A")
	require.NoError(t, err)
	assert.Equal(t, newTestDraft("01A", t0), got)

	latest, err = LatestDraft(ctx, db, home, "title")
	require.NoError(t, err)
	assert.Equal(t, "01B", latest.ID, "same timestamp falls back to id order")

	_, err = GetDraft(ctx, db, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdateDraft_CompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0).UTC()
	require.NoError(t, InsertDraft(ctx, db, newTestDraft("01A", t0)))

	a, err := GetDraft(ctx, db, "01A")
	require.NoError(t, err)
	b, err := GetDraft(ctx, db, "01A")
	require.NoError(t, err)

	a.FinalSuggestion = "edited by a"
	a.State = draft.SavedNotApplied
	require.NoError(t, UpdateDraft(ctx, db, a, 1, draft.GeneratedUnsaved))
	assert.Equal(t, int64(2), a.Version)

	b.FinalSuggestion = "edited by b"
	b.State = draft.SavedNotApplied
	err = UpdateDraft(ctx, db, b, 1, draft.GeneratedUnsaved)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, int64(1), b.Version)

	stored, err := GetDraft(ctx, db, "01A")
	require.NoError(t, err)
	assert.Equal(t, "edited by a", stored.FinalSuggestion)
	assert.Equal(t, int64(2), stored.Version)

	// Right version, wrong state.
	applied := time.Unix(2000, 0).UTC()
	stored.State = draft.Applied
	stored.AppliedAt = &applied
	assert.True(t, errors.Is(UpdateDraft(ctx, db, stored, 2, draft.GeneratedUnsaved), errors.ErrConflict))
	require.NoError(t, UpdateDraft(ctx, db, stored, 2, draft.SavedNotApplied))

	stored, err = GetDraft(ctx, db, "01A")
	require.NoError(t, err)
	require.NotNil(t, stored.AppliedAt)
	assert.True(t, applied.Equal(*stored.AppliedAt))
}

func TestApprovals(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0).UTC()
	require.NoError(t, InsertDraft(ctx, db, newTestDraft("d1", t0)))

	r := &approval.Request{ID: "a1", DraftID: "d1", DraftVersion: 1, RequestedBy: "sam", Status: approval.StatusPending, CreatedAt: t0}
	require.NoError(t, InsertApproval(ctx, db, r))

	dup := &approval.Request{ID: "a2", DraftID: "d1", DraftVersion: 1, RequestedBy: "sam", Status: approval.StatusPending, CreatedAt: t0}
	assert.True(t, errors.Is(InsertApproval(ctx, db, dup), errors.ErrConflict), "one pending request per draft")

	got, err := GetApproval(ctx, db, "a1")
	require.NoError(t, err)
	require.NoError(t, approval.Decide(got, approval.Approve, "alex", time.Unix(1500, 0)))
	require.NoError(t, DecideApproval(ctx, db, got))
	assert.True(t, errors.Is(DecideApproval(ctx, db, got), errors.ErrConflict), "already decided")

	// With nothing pending a new request is allowed again.
	require.NoError(t, InsertApproval(ctx, db, dup))

	list, err := ListApprovals(ctx, db, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, approval.StatusApproved, list[0].Status)
	assert.Equal(t, "alex", list[0].DecidedBy)
	assert.Equal(t, approval.StatusPending, list[1].Status)
	assert.True(t, approval.HasApproval(list, "d1", 1))

	_, err = GetApproval(ctx, db, "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestScores_RoundTripKeepsNulls(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := GetScore(ctx, db, home)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	s := score.ComputeScore(signal.Snapshot{"contentDepth": 0.2})
	s.ComputedAt = time.Unix(1234, 0).UTC()
	require.NoError(t, SaveScore(ctx, db, home, s))

	got, err := GetScore(ctx, db, home)
	require.NoError(t, err)
	assert.True(t, score.Equal(s, *got))
	assert.Nil(t, got.Components[score.ComponentEntities])
	assert.True(t, s.ComputedAt.Equal(got.ComputedAt))

	empty := score.ComputeScore(signal.Snapshot{})
	require.NoError(t, SaveScore(ctx, db, home, empty))
	got, err = GetScore(ctx, db, home)
	require.NoError(t, err)
	assert.Nil(t, got.Overall)
}

func TestFixCacheStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Unix(10_000, 0).UTC()
	s := NewFixCacheStore(db, time.Hour)
	s.now = func() time.Time { return now }

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, s.Put(ctx, &fixcache.Entry{WorkKey: "k", Result: fixcache.Payload{Suggestion: "first"}, GeneratedAt: now}))
	require.NoError(t, s.Put(ctx, &fixcache.Entry{WorkKey: "k", Result: fixcache.Payload{Suggestion: "second"}, GeneratedAt: now}))
	require.NoError(t, s.MarkReused(ctx, "k"))

	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "first", e.Result.Suggestion, "append-only")
	assert.Equal(t, int64(1), e.Reuses)

	now = now.Add(2 * time.Hour)
	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e, "expired")

	require.NoError(t, s.Put(ctx, &fixcache.Entry{WorkKey: "k", Result: fixcache.Payload{Suggestion: "fresh"}, GeneratedAt: now}))
	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "fresh", e.Result.Suggestion)
	assert.Equal(t, int64(0), e.Reuses)
}

func TestFixCacheStore_WithCache(t *testing.T) {
	db := setupTestDB(t)
	c := fixcache.New(NewFixCacheStore(db, 0))
	ctx := context.Background()

	calls := 0
	gen := func(context.Context) (fixcache.Payload, error) {
		calls++
		return fixcache.Payload{Suggestion: "x"}, nil
	}
	_, reused, err := c.GetOrGenerate(ctx, "k", gen)
	require.NoError(t, err)
	assert.False(t, reused)
	_, reused, err = c.GetOrGenerate(ctx, "k", gen)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, 1, calls)
}

func TestUsage_ReserveAndRelease(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := UsageDay(time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-05-01", day)

	n, err := ReserveUsage(ctx, db, "p1", day, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = ReserveUsage(ctx, db, "p1", day, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = ReserveUsage(ctx, db, "p1", day, 2)
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))

	require.NoError(t, ReleaseUsage(ctx, db, "p1", day))
	n, err = GetUsage(ctx, db, "p1", day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Unlimited.
	for i := 0; i < 5; i++ {
		_, err := ReserveUsage(ctx, db, "p2", day, 0)
		require.NoError(t, err)
	}
	n, err = GetUsage(ctx, db, "p2", day)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := SetLiveField(ctx, tx, home, "title", "inside", 1); err != nil {
			return err
		}
		return errors.NewConflict("boom")
	})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	v, err := GetLiveField(ctx, db, home, "title")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
