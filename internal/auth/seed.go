package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdminRole is the role created for the seed admin. Its name raises the
// is_admin flag.
const SeedAdminRole = "System Admin"

// RoleWriter is the part of the role repository SeedAdmin needs.
type RoleWriter interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	GrantPermissions(ctx context.Context, roleID string, codes ...string) error
	AssignRole(ctx context.Context, userID, roleID string, projectID *string, allProjects bool) error
}

// SeedAdmin creates an admin account on first boot if no users exist. The
// account holds SeedAdminRole across all projects with every permission in
// the catalogue. The generated password is logged once and returned; it
// must be changed immediately. An empty password means seeding was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, roles RoleWriter, username string, logger Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}
	if username == "" {
		username = "admin"
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	role, err := roles.GetRoleByName(ctx, SeedAdminRole)
	if errors.Is(err, ErrRoleNotFound) {
		role = &Role{Name: SeedAdminRole, Description: "Full access to every project"}
		err = roles.CreateRole(ctx, role)
	}
	if err != nil {
		return "", fmt.Errorf("preparing admin role: %w", err)
	}
	if err := roles.GrantPermissions(ctx, role.ID, PermissionCatalogue()...); err != nil {
		return "", fmt.Errorf("granting admin permissions: %w", err)
	}

	admin := &User{
		Username:     username,
		FirstName:    "System",
		LastName:     "Administrator",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}
	if err := roles.AssignRole(ctx, admin.ID, role.ID, nil, true); err != nil {
		return "", fmt.Errorf("assigning admin role: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", username,
		"generated_password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
