package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/fixcache"
	"github.com/hpungsan/sightline/internal/generate"
	"github.com/hpungsan/sightline/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers. The generator is used by
// draft_generate only.
type Handlers struct {
	deps  *ops.Deps
	cache *fixcache.Cache
	gen   generate.Generator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps *ops.Deps, cache *fixcache.Cache, gen generate.Generator) *Handlers {
	return &Handlers{deps: deps, cache: cache, gen: gen}
}

// Request types for each tool

// TargetRequest addresses one field group of one entity.
type TargetRequest struct {
	ProjectID  string `json:"project_id"`
	Entity     string `json:"entity,omitempty"`
	FieldGroup string `json:"field_group"`
}

func (r TargetRequest) target() ops.Target {
	return ops.Target{ProjectID: r.ProjectID, Entity: r.Entity, FieldGroup: r.FieldGroup}
}

// ImportSignalsRequest represents the arguments for signals_import.
type ImportSignalsRequest struct {
	ProjectID string            `json:"project_id"`
	Signals   []ops.SignalInput `json:"signals"`
	Replace   bool              `json:"replace,omitempty"`
}

// SetApplicabilityRequest represents the arguments for signals_set_applicability.
type SetApplicabilityRequest struct {
	ProjectID string   `json:"project_id"`
	Pillar    string   `json:"pillar"`
	Status    string   `json:"status"`
	Reasons   []string `json:"reasons,omitempty"`
}

// SetLiveFieldRequest represents the arguments for signals_set_live_field.
type SetLiveFieldRequest struct {
	TargetRequest
	Value string `json:"value"`
}

// ScoreRequest represents the arguments for score_compute and score_get.
type ScoreRequest struct {
	ProjectID string `json:"project_id"`
	Entity    string `json:"entity,omitempty"`
}

// IssuesRequest represents the arguments for score_issues.
type IssuesRequest struct {
	ProjectID   string `json:"project_id"`
	MinSeverity string `json:"min_severity,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// GenerateDraftRequest represents the arguments for draft_generate.
type GenerateDraftRequest struct {
	TargetRequest
	FixType string `json:"fix_type"`
	Refresh bool   `json:"refresh,omitempty"`
}

// SaveDraftRequest represents the arguments for draft_save.
type SaveDraftRequest struct {
	TargetRequest
	FinalSuggestion string `json:"final_suggestion"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
	ConfirmClear    bool   `json:"confirm_clear,omitempty"`
}

// ApplyDraftRequest represents the arguments for draft_apply.
type ApplyDraftRequest struct {
	TargetRequest
	ActorID         string `json:"actor_id"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

// ResetDraftRequest represents the arguments for draft_reset.
type ResetDraftRequest struct {
	TargetRequest
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

// ActorTargetRequest represents the arguments for draft_governance and approval_request.
type ActorTargetRequest struct {
	TargetRequest
	ActorID string `json:"actor_id"`
}

// DecideApprovalRequest represents the arguments for approval_decide.
type DecideApprovalRequest struct {
	ProjectID  string `json:"project_id"`
	ApprovalID string `json:"approval_id"`
	ActorID    string `json:"actor_id"`
	Decision   string `json:"decision"`
}

// SetMemberRequest represents the arguments for approval_set_member.
type SetMemberRequest struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id,omitempty"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// Handler implementations

// HandleImportSignals handles the signals_import tool call.
func (h *Handlers) HandleImportSignals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportSignalsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ImportSignals(ctx, h.deps, ops.ImportSignalsInput{
		ProjectID: input.ProjectID,
		Signals:   input.Signals,
		Replace:   input.Replace,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSetApplicability handles the signals_set_applicability tool call.
func (h *Handlers) HandleSetApplicability(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetApplicabilityRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetApplicability(ctx, h.deps, ops.SetApplicabilityInput{
		ProjectID: input.ProjectID,
		Pillar:    input.Pillar,
		Status:    input.Status,
		Reasons:   input.Reasons,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSetLiveField handles the signals_set_live_field tool call.
func (h *Handlers) HandleSetLiveField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetLiveFieldRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetLiveField(ctx, h.deps, ops.SetLiveFieldInput{
		Target: input.target(),
		Value:  input.Value,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleComputeScore handles the score_compute tool call.
func (h *Handlers) HandleComputeScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ComputeScore(ctx, h.deps, ops.ScoreInput{ProjectID: input.ProjectID, Entity: input.Entity})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetScore handles the score_get tool call.
func (h *Handlers) HandleGetScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetScore(ctx, h.deps, ops.ScoreInput{ProjectID: input.ProjectID, Entity: input.Entity})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleIssues handles the score_issues tool call.
func (h *Handlers) HandleIssues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IssuesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeriveIssues(ctx, h.deps, ops.DeriveIssuesInput{
		ProjectID:   input.ProjectID,
		MinSeverity: input.MinSeverity,
		Limit:       input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGenerateDraft handles the draft_generate tool call.
func (h *Handlers) HandleGenerateDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateDraftRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GenerateDraft(ctx, h.deps, h.cache, h.gen, ops.GenerateDraftInput{
		Target:  input.target(),
		FixType: input.FixType,
		Refresh: input.Refresh,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSaveDraft handles the draft_save tool call.
func (h *Handlers) HandleSaveDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveDraftRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SaveDraft(ctx, h.deps, ops.SaveDraftInput{
		Target:          input.target(),
		FinalSuggestion: input.FinalSuggestion,
		ExpectedVersion: input.ExpectedVersion,
		ConfirmClear:    input.ConfirmClear,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetDraft handles the draft_get tool call.
func (h *Handlers) HandleGetDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TargetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetDraft(ctx, h.deps, ops.GetDraftInput{Target: input.target()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleApplyDraft handles the draft_apply tool call.
func (h *Handlers) HandleApplyDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ApplyDraftRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ApplyDraft(ctx, h.deps, ops.ApplyDraftInput{
		Target:          input.target(),
		ActorID:         input.ActorID,
		ExpectedVersion: input.ExpectedVersion,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleResetDraft handles the draft_reset tool call.
func (h *Handlers) HandleResetDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResetDraftRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ResetDraft(ctx, h.deps, ops.ResetDraftInput{
		Target:          input.target(),
		ExpectedVersion: input.ExpectedVersion,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGovernance handles the draft_governance tool call.
func (h *Handlers) HandleGovernance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ActorTargetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetGovernance(ctx, h.deps, ops.GovernanceInput{Target: input.target(), ActorID: input.ActorID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRequestApproval handles the approval_request tool call.
func (h *Handlers) HandleRequestApproval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ActorTargetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RequestApproval(ctx, h.deps, ops.RequestApprovalInput{Target: input.target(), ActorID: input.ActorID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDecideApproval handles the approval_decide tool call.
func (h *Handlers) HandleDecideApproval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DecideApprovalRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DecideApproval(ctx, h.deps, ops.DecideApprovalInput{
		ProjectID:  input.ProjectID,
		ApprovalID: input.ApprovalID,
		ActorID:    input.ActorID,
		Decision:   input.Decision,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListApprovals handles the approval_list tool call.
func (h *Handlers) HandleListApprovals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TargetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListApprovals(ctx, h.deps, ops.ListApprovalsInput{Target: input.target()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSetMember handles the approval_set_member tool call.
func (h *Handlers) HandleSetMember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetMemberRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetMember(ctx, h.deps, ops.SetMemberInput{
		ProjectID: input.ProjectID,
		ActorID:   input.ActorID,
		UserID:    input.UserID,
		Role:      input.Role,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.SightlineError
	if stderrors.As(err, &sErr) {
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": sErr.Message,
			"status":  sErr.Status,
		}
		if sErr.NextStep != "" {
			errorObj["next_step"] = sErr.NextStep
		}
		if sErr != err && sErr.Code != errors.ErrInternal {
			errorObj["message"] = err.Error()
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		if sErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
