package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteRoleRepository stores roles, their permissions and user role
// assignments. It implements RoleDirectory.
type SQLiteRoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new SQLite-backed role repository.
func NewRoleRepository(db *sql.DB) *SQLiteRoleRepository {
	return &SQLiteRoleRepository{db: db}
}

// CreateRole inserts a role. The ID is generated if empty.
func (r *SQLiteRoleRepository) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = "role-" + uuid.NewString()[:8]
	}
	now := time.Now()
	role.CreatedAt = parseTime(formatTime(now))

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO roles (id, name, description, created_at) VALUES (?, ?, ?, ?)",
		role.ID, role.Name, role.Description, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleExists
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// GetRoleByName looks a role up by its exact name.
func (r *SQLiteRoleRepository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM roles WHERE name = ?", name,
	).Scan(&role.ID, &role.Name, &role.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting role: %w", err)
	}
	role.CreatedAt = parseTime(createdAt)
	return &role, nil
}

// GrantPermissions binds codes to a role, registering unknown codes in the
// permission table. Codes already granted keep their original position.
func (r *SQLiteRoleRepository) GrantPermissions(ctx context.Context, roleID string, codes ...string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles WHERE id = ?", roleID).Scan(&exists); err != nil {
		return fmt.Errorf("checking role: %w", err)
	}
	if exists == 0 {
		return ErrRoleNotFound
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position) + 1, 0) FROM role_permissions WHERE role_id = ?", roleID,
	).Scan(&next); err != nil {
		return fmt.Errorf("reading permission position: %w", err)
	}

	for _, code := range codes {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO permissions (code) VALUES (?)", code); err != nil {
			return fmt.Errorf("registering permission %s: %w", code, err)
		}
		result, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO role_permissions (role_id, permission_code, position) VALUES (?, ?, ?)",
			roleID, code, next)
		if err != nil {
			return fmt.Errorf("granting permission %s: %w", code, err)
		}
		if n, _ := result.RowsAffected(); n > 0 { //nolint:errcheck // always succeeds on SQLite
			next++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing grants: %w", err)
	}
	return nil
}

// CreateProject inserts a project that role assignments can be scoped to.
func (r *SQLiteRoleRepository) CreateProject(ctx context.Context, id, name string) error {
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO projects (id, name) VALUES (?, ?)", id, name); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// AssignRole binds a role to a user. projectID scopes the assignment to one
// project; allProjects widens it to every project. Neither means unscoped.
func (r *SQLiteRoleRepository) AssignRole(ctx context.Context, userID, roleID string, projectID *string, allProjects bool) error {
	var project sql.NullString
	if projectID != nil {
		project = sql.NullString{String: *projectID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, project_id, all_projects, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, roleID, project, boolToInt(allProjects), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

// ListAssignments implements RoleDirectory, in assignment order.
func (r *SQLiteRoleRepository) ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ur.role_id, r.name, ur.project_id, ur.all_projects
		 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ?
		 ORDER BY ur.seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing role assignments: %w", err)
	}
	defer rows.Close()

	assignments := []RoleAssignment{}
	for rows.Next() {
		var a RoleAssignment
		var project sql.NullString
		var allProjects int
		if err := rows.Scan(&a.RoleID, &a.RoleName, &project, &allProjects); err != nil {
			return nil, fmt.Errorf("scanning role assignment: %w", err)
		}
		if project.Valid {
			a.ProjectScope = &project.String
		}
		a.AllProjects = allProjects != 0
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role assignments: %w", err)
	}
	return assignments, nil
}

// RolePermissions implements RoleDirectory, in grant order.
func (r *SQLiteRoleRepository) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT permission_code FROM role_permissions WHERE role_id = ? ORDER BY position ASC", roleID)
	if err != nil {
		return nil, fmt.Errorf("listing role permissions: %w", err)
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role permissions: %w", err)
	}
	return perms, nil
}
