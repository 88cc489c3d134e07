package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// fakeRoles is an in-memory RoleDirectory.
type fakeRoles struct {
	assignments    []RoleAssignment
	perms          map[string][]string
	assignmentsErr error
	permsErr       error
}

func (f *fakeRoles) ListAssignments(context.Context, string) ([]RoleAssignment, error) {
	if f.assignmentsErr != nil {
		return nil, f.assignmentsErr
	}
	return slices.Clone(f.assignments), nil
}

func (f *fakeRoles) RolePermissions(_ context.Context, roleID string) ([]string, error) {
	if f.permsErr != nil {
		return nil, f.permsErr
	}
	return f.perms[roleID], nil
}

func TestPermissionResolver_UnionAndFlags(t *testing.T) {
	roles := &fakeRoles{
		assignments: []RoleAssignment{
			{RoleID: "r1", RoleName: "Site Admin"},
			{RoleID: "r2", RoleName: "Board Member"},
		},
		perms: map[string][]string{
			"r1": {"A", "B"},
			"r2": {"B", "C"},
		},
	}
	logger := &recordLogger{}

	res := NewPermissionResolver(roles, logger).Resolve(context.Background(), &User{ID: "usr-1"})

	if !slices.Equal(res.AllPermissions, []string{"A", "B", "C"}) {
		t.Errorf("AllPermissions = %v, want [A B C]", res.AllPermissions)
	}
	if !res.IsAdmin || !res.IsBoard {
		t.Errorf("IsAdmin = %v, IsBoard = %v, want both true", res.IsAdmin, res.IsBoard)
	}
	if res.Degraded {
		t.Error("Degraded should be false")
	}
	if len(res.Roles) != 2 || res.Roles[0].RoleName != "Site Admin" || res.Roles[1].RoleName != "Board Member" {
		t.Errorf("Roles = %+v, want assignment order", res.Roles)
	}
	if !slices.Equal(res.Roles[1].Permissions, []string{"B", "C"}) {
		t.Errorf("Board Member permissions = %v", res.Roles[1].Permissions)
	}
	if logger.count("WARN") != 0 {
		t.Error("healthy resolve should not warn")
	}
}

func TestPermissionResolver_Flags(t *testing.T) {
	tests := []struct {
		name      string
		roleNames []string
		wantAdmin bool
		wantBoard bool
	}{
		{"none", nil, false, false},
		{"plain role", []string{"Site Engineer"}, false, false},
		{"admin lower case", []string{"contract admin"}, true, false},
		{"admin upper case", []string{"ADMINISTRATOR"}, true, false},
		{"board substring", []string{"Clipboard Reviewer"}, false, true},
		{"board and admin", []string{"Board", "Sysadmin"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := &fakeRoles{perms: map[string][]string{}}
			for i, name := range tt.roleNames {
				roles.assignments = append(roles.assignments, RoleAssignment{RoleID: string(rune('a' + i)), RoleName: name})
			}

			res := NewPermissionResolver(roles, &recordLogger{}).Resolve(context.Background(), &User{ID: "usr-1"})
			if res.IsAdmin != tt.wantAdmin || res.IsBoard != tt.wantBoard {
				t.Errorf("IsAdmin = %v, IsBoard = %v, want %v, %v", res.IsAdmin, res.IsBoard, tt.wantAdmin, tt.wantBoard)
			}
		})
	}
}

func TestPermissionResolver_DedupesPerRole(t *testing.T) {
	roles := &fakeRoles{
		assignments: []RoleAssignment{{RoleID: "r1", RoleName: "Engineer"}},
		perms:       map[string][]string{"r1": {"X", "Y", "X", "Y", "Z"}},
	}

	res := NewPermissionResolver(roles, &recordLogger{}).Resolve(context.Background(), &User{ID: "usr-1"})

	if !slices.Equal(res.Roles[0].Permissions, []string{"X", "Y", "Z"}) {
		t.Errorf("role permissions = %v, want [X Y Z]", res.Roles[0].Permissions)
	}
	if !slices.Equal(res.AllPermissions, []string{"X", "Y", "Z"}) {
		t.Errorf("AllPermissions = %v, want [X Y Z]", res.AllPermissions)
	}
}

func TestPermissionResolver_NoRolesIsEmptyNotNil(t *testing.T) {
	res := NewPermissionResolver(&fakeRoles{}, &recordLogger{}).Resolve(context.Background(), &User{ID: "usr-1"})

	if res.AllPermissions == nil || len(res.AllPermissions) != 0 {
		t.Errorf("AllPermissions = %#v, want empty slice", res.AllPermissions)
	}
	if res.Degraded {
		t.Error("a user without roles is not degraded")
	}
}

func TestResilience_PermissionResolver_LookupFailureDegrades(t *testing.T) {
	boom := errors.New("role table locked")

	tests := []struct {
		name  string
		roles *fakeRoles
	}{
		{"assignments", &fakeRoles{assignmentsErr: boom}},
		{"role permissions", &fakeRoles{
			assignments: []RoleAssignment{{RoleID: "r1", RoleName: "Site Admin"}},
			permsErr:    boom,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordLogger{}
			res := NewPermissionResolver(tt.roles, logger).Resolve(context.Background(), &User{ID: "usr-1"})

			if !res.Degraded {
				t.Error("Degraded should be true")
			}
			if len(res.Roles) != 0 || len(res.AllPermissions) != 0 || res.IsAdmin || res.IsBoard {
				t.Errorf("degraded result should be empty, got %+v", res)
			}
			if logger.count("WARN") != 1 {
				t.Errorf("WARN count = %d, want 1", logger.count("WARN"))
			}
		})
	}
}

func TestPermissionCatalogue_Unique(t *testing.T) {
	cat := PermissionCatalogue()
	if !slices.Equal(dedupe(cat), cat) {
		t.Errorf("PermissionCatalogue() has duplicates: %v", cat)
	}
}
