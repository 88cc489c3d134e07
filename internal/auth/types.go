package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// usernamePattern allows alphanumerics plus . _ - @ and +, 1-150 characters,
// matching the reporting app's account names.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9.@+_-]{1,150}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// User is a person who can sign in. Owned by the reporting app; read-only
// to the token lifecycle.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	PersonnelCode string    `json:"personnel_code"`
	PasswordHash  string    `json:"-"` // never serialised
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FullName joins first and last name, falling back to the username.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Role is a named bundle of permissions.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleAssignment is one of a user's role bindings with the permissions it
// grants, resolved at token issuance. A nil ProjectScope with AllProjects
// false is an unscoped role.
type RoleAssignment struct {
	RoleID       string   `json:"role_id"`
	RoleName     string   `json:"role_name"`
	ProjectScope *string  `json:"project_scope"`
	AllProjects  bool     `json:"all_projects"`
	Permissions  []string `json:"permissions"`
}

// ClientInfo describes the device a session was opened from.
type ClientInfo struct {
	DeviceInfo string `json:"device_info,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// Sentinel errors for auth operations. Match with errors.Is.
var (
	// ErrInvalidCredentials is returned for an unknown username and for a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")

	// ErrInvalidToken covers malformed, unsigned, expired and wrong-type tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenRevoked is returned for a well-formed token whose session has
	// been revoked or has expired from the store.
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrLogoutMisuse is returned by Logout when neither a refresh token nor
	// logoutAll is given.
	ErrLogoutMisuse = errors.New("logout requires a refresh token or logout_all")

	// ErrStoreUnavailable wraps session store I/O failures.
	ErrStoreUnavailable = errors.New("session store unavailable")

	ErrMissingSigningKey = errors.New("signing key is not configured")
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameExists    = errors.New("username already exists")
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleExists        = errors.New("role already exists")
)

// Logger is the subset of logging.Logger the auth package uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
