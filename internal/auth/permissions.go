package auth

import (
	"context"
	"strings"
)

// Permission codenames for the reporting domain, in the reporting app's
// "app.codename" form.
const (
	PermContractView   = "contracts.view_contract"
	PermContractAdd    = "contracts.add_contract"
	PermContractChange = "contracts.change_contract"
	PermContractDelete = "contracts.delete_contract"

	PermReportView    = "reports.view_report"
	PermReportAdd     = "reports.add_report"
	PermReportChange  = "reports.change_report"
	PermReportApprove = "reports.approve_report"

	PermAttachmentView   = "attachments.view_attachment"
	PermAttachmentAdd    = "attachments.add_attachment"
	PermAttachmentDelete = "attachments.delete_attachment"

	PermUserManage    = "accounts.manage_users"
	PermSessionRevoke = "accounts.revoke_sessions"
)

// PermissionCatalogue lists every permission the reporting app defines.
func PermissionCatalogue() []string {
	return []string{
		PermContractView, PermContractAdd, PermContractChange, PermContractDelete,
		PermReportView, PermReportAdd, PermReportChange, PermReportApprove,
		PermAttachmentView, PermAttachmentAdd, PermAttachmentDelete,
		PermUserManage, PermSessionRevoke,
	}
}

// Role name markers that raise the admin/board flags.
const (
	adminMarker = "admin"
	boardMarker = "board"
)

// RoleDirectory reads a user's role assignments and the permissions bound
// to each role.
type RoleDirectory interface {
	// ListAssignments returns assignments in a stable order without
	// permissions filled in.
	ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)
	RolePermissions(ctx context.Context, roleID string) ([]string, error)
}

// Resolution is the resolved authorisation snapshot for one user.
type Resolution struct {
	Roles          []RoleAssignment
	AllPermissions []string
	IsAdmin        bool
	IsBoard        bool

	// Degraded is set when the role graph could not be read. The other
	// fields are then empty.
	Degraded bool
}

// PermissionResolver walks the role graph for a user.
type PermissionResolver struct {
	roles  RoleDirectory
	logger Logger
}

// NewPermissionResolver creates a resolver over roles.
func NewPermissionResolver(roles RoleDirectory, logger Logger) *PermissionResolver {
	return &PermissionResolver{roles: roles, logger: logger}
}

// Resolve never fails. If any lookup errors it logs a warning and returns
// an empty Resolution with Degraded set, so sign-in still succeeds with no
// permissions.
func (r *PermissionResolver) Resolve(ctx context.Context, user *User) Resolution {
	assignments, err := r.roles.ListAssignments(ctx, user.ID)
	if err != nil {
		r.logger.Warn("permission lookup failed, issuing empty permissions",
			"user_id", user.ID, "stage", "assignments", "error", err)
		return Resolution{Degraded: true}
	}

	res := Resolution{Roles: make([]RoleAssignment, 0, len(assignments))}
	seen := make(map[string]struct{})

	for _, a := range assignments {
		perms, err := r.roles.RolePermissions(ctx, a.RoleID)
		if err != nil {
			r.logger.Warn("permission lookup failed, issuing empty permissions",
				"user_id", user.ID, "role_id", a.RoleID, "stage", "role_permissions", "error", err)
			return Resolution{Degraded: true}
		}
		a.Permissions = dedupe(perms)

		for _, p := range a.Permissions {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				res.AllPermissions = append(res.AllPermissions, p)
			}
		}

		name := strings.ToLower(a.RoleName)
		res.IsAdmin = res.IsAdmin || strings.Contains(name, adminMarker)
		res.IsBoard = res.IsBoard || strings.Contains(name, boardMarker)
		res.Roles = append(res.Roles, a)
	}

	if res.AllPermissions == nil {
		res.AllPermissions = []string{}
	}
	return res
}

// dedupe keeps the first occurrence of each value.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
