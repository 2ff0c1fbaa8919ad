package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sightline/internal/errors"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := &Request{ID: "a1", DraftID: "d1", DraftVersion: 2, Status: StatusPending}
	require.NoError(t, Decide(r, Approve, "owner-1", now))
	assert.Equal(t, StatusApproved, r.Status)
	assert.Equal(t, "owner-1", r.DecidedBy)
	require.NotNil(t, r.DecidedAt)
	assert.True(t, now.Equal(*r.DecidedAt))

	// Terminal: a second decision is a conflict.
	err := Decide(r, Reject, "owner-2", now)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, StatusApproved, r.Status)

	r2 := &Request{ID: "a2", DraftID: "d1", Status: StatusPending}
	require.NoError(t, Decide(r2, Reject, "owner-1", now))
	assert.Equal(t, StatusRejected, r2.Status)

	r3 := &Request{ID: "a3", Status: StatusPending}
	assert.True(t, errors.Is(Decide(r3, Decision("maybe"), "x", now), errors.ErrInvalidRequest))
	assert.Equal(t, StatusPending, r3.Status)
}

func TestCheckCanCreate(t *testing.T) {
	existing := []Request{
		{ID: "a1", DraftID: "d1", Status: StatusRejected},
		{ID: "a2", DraftID: "d2", Status: StatusPending},
	}
	require.NoError(t, CheckCanCreate(existing, "d1"))
	assert.True(t, errors.Is(CheckCanCreate(existing, "d2"), errors.ErrConflict))
	require.NoError(t, CheckCanCreate(nil, "d3"))
}

func TestHasApproval_BoundToVersion(t *testing.T) {
	requests := []Request{
		{ID: "a1", DraftID: "d1", DraftVersion: 3, Status: StatusApproved},
		{ID: "a2", DraftID: "d1", DraftVersion: 4, Status: StatusRejected},
		{ID: "a3", DraftID: "d1", DraftVersion: 5, Status: StatusPending},
	}
	assert.True(t, HasApproval(requests, "d1", 3))
	assert.False(t, HasApproval(requests, "d1", 4), "rejected")
	assert.False(t, HasApproval(requests, "d1", 5), "pending")
	assert.False(t, HasApproval(requests, "d1", 6), "re-saved after approval")
	assert.False(t, HasApproval(requests, "d2", 3), "other draft")
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("approve")
	require.NoError(t, err)
	assert.Equal(t, Approve, d)

	d, err = ParseDecision(" REJECT ")
	require.NoError(t, err)
	assert.Equal(t, Reject, d)

	_, err = ParseDecision("maybe")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	requests := []Request{
		{ID: "a1", DraftID: "d1", DraftVersion: 2, Status: StatusPending},
		{ID: "a2", DraftID: "d1", DraftVersion: 3, Status: StatusPending},
		{ID: "a3", DraftID: "d1", DraftVersion: 1, Status: StatusApproved},
		{ID: "a4", DraftID: "d2", DraftVersion: 1, Status: StatusPending},
	}

	stale := Stale(requests, "d1", 3, now)
	require.Len(t, stale, 1)
	assert.Equal(t, "a1", stale[0].ID)
	assert.Equal(t, StatusSuperseded, stale[0].Status)
	require.NotNil(t, stale[0].DecidedAt)
	assert.Equal(t, StatusPending, requests[0].Status, "input untouched")
}
