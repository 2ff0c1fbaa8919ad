package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Shared target parameters.

func targetOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		mcp.WithString("entity", mcp.Description("Entity as kind:id (e.g. product:sku-1). Defaults to the project entity")),
		mcp.WithString("field_group", mcp.Required(), mcp.Description("Field group the draft targets (e.g. seo_title)")),
	}
}

func withTarget(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(targetOptions(), opts...)
}

var signalsImportToolDef = mcp.NewTool("signals_import",
	mcp.WithDescription("Import normalized signals for a project. Values are expected in [0,1]; out-of-range values are clamped at use. A null value marks the key as not measured and clears any stored value. An invalid signal rejects the whole batch."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithArray("signals", mcp.Required(),
		mcp.Description("Signals to import"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity": map[string]any{"type": "string", "description": "kind:id; empty for the project entity"},
				"key":    map[string]any{"type": "string", "description": "Signal key, type or type:instance"},
				"value":  map[string]any{"type": []string{"number", "null"}},
			},
			"required": []string{"key", "value"},
		}),
	),
	mcp.WithBoolean("replace", mcp.Description("Replace each listed entity's existing signals instead of merging")),
)

var signalsSetApplicabilityToolDef = mcp.NewTool("signals_set_applicability",
	mcp.WithDescription("Declare whether a pillar applies to a project. Not-applicable pillars are excluded from scores and issues."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithString("pillar", mcp.Required(), mcp.Description("Pillar id"),
		mcp.Enum("metadata", "content", "entities", "technical", "local_discovery", "visibility")),
	mcp.WithString("status", mcp.Required(), mcp.Enum("applicable", "not_applicable", "unknown")),
	mcp.WithArray("reasons", mcp.Description("Reason codes"), mcp.WithStringItems()),
)

var signalsSetLiveFieldToolDef = mcp.NewTool("signals_set_live_field",
	append(withTarget(
		mcp.WithString("value", mcp.Description("Current live value of the field group")),
	), mcp.WithDescription("Record the current live value of a field group as synced from the catalog."))...,
)

var scoreComputeToolDef = mcp.NewTool("score_compute",
	mcp.WithDescription("Compute and store the score of an entity from its current signals. Unmeasured components are null, never zero."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithString("entity", mcp.Description("Entity as kind:id. Defaults to the project entity")),
)

var scoreGetToolDef = mcp.NewTool("score_get",
	mcp.WithDescription("Return the last stored score of an entity."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithString("entity", mcp.Description("Entity as kind:id. Defaults to the project entity")),
)

var scoreIssuesToolDef = mcp.NewTool("score_issues",
	mcp.WithDescription("Derive the project's issues from current signals, most severe first."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithString("min_severity", mcp.Description("Lowest severity to include"), mcp.Enum("info", "warning", "critical")),
	mcp.WithNumber("limit", mcp.Description("Maximum issues to return (0 = all)")),
)

var draftGenerateToolDef = mcp.NewTool("draft_generate",
	append(withTarget(
		mcp.WithString("fix_type", mcp.Required(), mcp.Description("Kind of fix to generate (e.g. rewrite)")),
		mcp.WithBoolean("refresh", mcp.Description("Generate anew even if identical content was generated before")),
	), mcp.WithDescription("Generate a suggestion for a field group into an unsaved draft. Identical requests reuse an earlier result at no quota cost. Never changes live content."))...,
)

var draftSaveToolDef = mcp.NewTool("draft_save",
	append(withTarget(
		mcp.WithString("final_suggestion", mcp.Description("The content to save")),
		mcp.WithNumber("expected_version", mcp.Description("Draft version the edit was based on")),
		mcp.WithBoolean("confirm_clear", mcp.Description("Confirm that saving empty content clears the live value on apply")),
	), mcp.WithDescription("Save the final suggestion of a draft. Creates a manual draft if none exists."))...,
)

var draftGetToolDef = mcp.NewTool("draft_get",
	append(withTarget(), mcp.WithDescription("Return the current draft of a field group with a preview of what apply would change."))...,
)

var draftApplyToolDef = mcp.NewTool("draft_apply",
	append(withTarget(
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User applying the draft")),
		mcp.WithNumber("expected_version", mcp.Description("Draft version the actor reviewed")),
	), mcp.WithDescription("Apply a saved draft to the live field. Blocked unless governance is CAN_APPLY."))...,
)

var draftResetToolDef = mcp.NewTool("draft_reset",
	append(withTarget(
		mcp.WithNumber("expected_version", mcp.Description("Draft version to discard")),
	), mcp.WithDescription("Discard the current draft of a field group."))...,
)

var draftGovernanceToolDef = mcp.NewTool("draft_governance",
	append(withTarget(
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User whose permissions are evaluated")),
	), mcp.WithDescription("Report whether the actor can apply the current draft, and if not, why and what to do next."))...,
)

var approvalRequestToolDef = mcp.NewTool("approval_request",
	append(withTarget(
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User requesting approval")),
	), mcp.WithDescription("Request approval for the current saved draft version."))...,
)

var approvalDecideToolDef = mcp.NewTool("approval_decide",
	mcp.WithDescription("Approve or reject a pending approval request."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithString("approval_id", mcp.Required(), mcp.Description("Approval request id")),
	mcp.WithString("actor_id", mcp.Required(), mcp.Description("Deciding user")),
	mcp.WithString("decision", mcp.Required(), mcp.Enum("approve", "reject")),
)

var approvalListToolDef = mcp.NewTool("approval_list",
	append(withTarget(), mcp.WithDescription("List the approval requests of a field group's current draft."))...,
)

var approvalSetMemberToolDef = mcp.NewTool("approval_set_member",
	mcp.WithDescription("Assign a project role. The first member must be an OWNER."),
	mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
	mcp.WithString("actor_id", mcp.Description("User making the change (not needed for the first member)")),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("User whose role is set")),
	mcp.WithString("role", mcp.Required(), mcp.Enum("OWNER", "EDITOR", "VIEWER")),
)
