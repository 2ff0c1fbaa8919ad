package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/sightline/internal/fixcache"
	"github.com/hpungsan/sightline/internal/generate"
	"github.com/hpungsan/sightline/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"signals", "score", "draft", "approval"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"signals_import": {
		def:     signalsImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImportSignals },
	},
	"signals_set_applicability": {
		def:     signalsSetApplicabilityToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetApplicability },
	},
	"signals_set_live_field": {
		def:     signalsSetLiveFieldToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetLiveField },
	},
	"score_compute": {
		def:     scoreComputeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleComputeScore },
	},
	"score_get": {
		def:     scoreGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetScore },
	},
	"score_issues": {
		def:     scoreIssuesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIssues },
	},
	"draft_generate": {
		def:     draftGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerateDraft },
	},
	"draft_save": {
		def:     draftSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSaveDraft },
	},
	"draft_get": {
		def:     draftGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetDraft },
	},
	"draft_apply": {
		def:     draftApplyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleApplyDraft },
	},
	"draft_reset": {
		def:     draftResetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResetDraft },
	},
	"draft_governance": {
		def:     draftGovernanceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGovernance },
	},
	"approval_request": {
		def:     approvalRequestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRequestApproval },
	},
	"approval_decide": {
		def:     approvalDecideToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecideApproval },
	},
	"approval_list": {
		def:     approvalListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListApprovals },
	},
	"approval_set_member": {
		def:     approvalSetMemberToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetMember },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "draft_apply" → "draft").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	// Build set of types for O(1) lookup
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	// Collect tools belonging to disabled types
	tools := make([]string, 0)
	for name := range toolRegistry {
		typ := GetTypeForTool(name)
		if typeSet[typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Sightline tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(deps *ops.Deps, cache *fixcache.Cache, gen generate.Generator, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sightline",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(deps, cache, gen)
	cfg := deps.Config

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps *ops.Deps, cache *fixcache.Cache, gen generate.Generator, version string) error {
	s := NewServer(deps, cache, gen, version)
	return server.ServeStdio(s)
}
