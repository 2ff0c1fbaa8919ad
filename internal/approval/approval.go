// Package approval implements the optional approve/reject gate in front of apply.
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/sightline/internal/errors"
)

// Status is the state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	// StatusSuperseded marks a request left pending while its draft moved on
	// to a newer version.
	StatusSuperseded Status = "superseded"
)

// Decision is an approver's verdict.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// ParseDecision parses a decision case-insensitively.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Approve, Reject:
		return d, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("decision must be approve or reject; got %q", s))
	}
}

// Request asks for permission to apply one version of a draft.
type Request struct {
	ID           string     `json:"id"`
	DraftID      string     `json:"draft_id"`
	DraftVersion int64      `json:"draft_version"`
	RequestedBy  string     `json:"requested_by"`
	Status       Status     `json:"status"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CheckCanCreate rejects a new request while another is pending for the draft.
func CheckCanCreate(existing []Request, draftID string) error {
	for _, r := range existing {
		if r.DraftID == draftID && r.Status == StatusPending {
			return errors.NewConflict(fmt.Sprintf("approval request %s is already pending for this draft", r.ID))
		}
	}
	return nil
}

// Decide moves a pending request to approved or rejected. Decided requests
// are terminal.
func Decide(r *Request, d Decision, by string, now time.Time) error {
	if r.Status != StatusPending {
		return errors.NewConflict(fmt.Sprintf("approval request %s is already %s", r.ID, r.Status))
	}
	switch d {
	case Approve:
		r.Status = StatusApproved
	case Reject:
		r.Status = StatusRejected
	default:
		return errors.NewInvalidRequest(fmt.Sprintf("unknown decision %q", d))
	}
	r.DecidedBy = by
	decided := now.UTC()
	r.DecidedAt = &decided
	return nil
}

// HasApproval reports whether an approved request covers exactly this draft
// version. Re-saving a draft bumps its version, so an earlier approval no
// longer counts.
func HasApproval(requests []Request, draftID string, version int64) bool {
	for _, r := range requests {
		if r.DraftID == draftID && r.Status == StatusApproved && r.DraftVersion == version {
			return true
		}
	}
	return false
}

// Stale returns the pending requests of draftID that were made for a version
// other than the current one, marked superseded. Callers persist them.
func Stale(requests []Request, draftID string, current int64, now time.Time) []*Request {
	var out []*Request
	decided := now.UTC()
	for i := range requests {
		r := requests[i]
		if r.DraftID != draftID || r.Status != StatusPending || r.DraftVersion == current {
			continue
		}
		r.Status = StatusSuperseded
		r.DecidedBy = "system"
		r.DecidedAt = &decided
		out = append(out, &r)
	}
	return out
}
