package governance

import (
	"fmt"
	"strings"

	"github.com/hpungsan/sightline/internal/errors"
)

// Role is a project membership role.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return r, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("role must be one of: OWNER, EDITOR, VIEWER; got %q", s))
	}
}

// RoleCapabilities is what a role may do in a project.
type RoleCapabilities struct {
	CanApply           bool `json:"can_apply"`
	CanRequestApproval bool `json:"can_request_approval"`
	CanManageMembers   bool `json:"can_manage_members"`
}

// Capabilities derives capabilities from a role. Unknown roles get none.
func Capabilities(r Role) RoleCapabilities {
	switch r {
	case RoleOwner:
		return RoleCapabilities{CanApply: true, CanRequestApproval: true, CanManageMembers: true}
	case RoleEditor:
		return RoleCapabilities{CanRequestApproval: true}
	case RoleViewer:
		return RoleCapabilities{}
	default:
		return RoleCapabilities{}
	}
}
