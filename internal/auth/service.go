package auth

import (
	"context"
	"errors"
	"time"
)

// Config holds the token settings of a Service.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Deps are the collaborators a Service is built over. Events and Logger
// are optional.
type Deps struct {
	Users  UserDirectory
	Roles  RoleDirectory
	Store  SessionStore
	Events EventSink
	Logger Logger
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User             *User        `json:"user"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	Claims           *TokenClaims `json:"claims"`

	// PermissionsDegraded is set when the role graph could not be read
	// and the tokens carry no permissions.
	PermissionsDegraded bool `json:"permissions_degraded"`
}

// Service is the entry point for login, refresh and logout. It holds no
// mutable state of its own; all coordination happens in the SessionStore.
type Service struct {
	users    UserDirectory
	signer   *Signer
	store    SessionStore
	verifier *CredentialVerifier
	resolver *PermissionResolver
	issuer   *Issuer
	rotation *RotationEngine
	events   EventSink
	logger   Logger
}

// NewService builds a Service. It fails with ErrMissingSigningKey when no
// secret is configured.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Users == nil || deps.Roles == nil || deps.Store == nil {
		return nil, errors.New("auth: users, roles and store are required")
	}
	signer, err := NewSigner(cfg.Secret, cfg.Issuer)
	if err != nil {
		return nil, err
	}
	if deps.Events == nil {
		deps.Events = NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	resolver := NewPermissionResolver(deps.Roles, deps.Logger)
	issuer := NewIssuer(signer, deps.Store, cfg.AccessTTL, cfg.RefreshTTL)

	return &Service{
		users:    deps.Users,
		signer:   signer,
		store:    deps.Store,
		verifier: NewCredentialVerifier(deps.Users),
		resolver: resolver,
		issuer:   issuer,
		rotation: NewRotationEngine(signer, deps.Store, deps.Users, resolver, issuer),
		events:   deps.Events,
		logger:   deps.Logger,
	}, nil
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, username, password string, client ClientInfo) (*LoginResult, error) {
	user, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		// The attempted name is left out: it is unverified input and is
		// sometimes a mistyped password.
		s.emit(ctx, SessionEvent{
			Type:   EventLoginFailed,
			Reason: ReasonFor(err),
			Source: client.IPAddress,
		})
		return nil, err
	}
	s.upgradeHash(ctx, user, password)

	res := s.resolver.Resolve(ctx, user)
	pair, err := s.issuer.Issue(ctx, user, res, client)
	if err != nil {
		s.logger.Error("issuing tokens failed", "user_id", user.ID, "error", err)
		s.emit(ctx, SessionEvent{
			Type:     EventLoginFailed,
			UserID:   user.ID,
			Username: user.Username,
			Reason:   ReasonFor(err),
			Source:   client.IPAddress,
		})
		return nil, err
	}

	s.emit(ctx, SessionEvent{
		Type:     EventLogin,
		UserID:   user.ID,
		Username: user.Username,
		TokenID:  pair.SessionID,
		Source:   client.IPAddress,
	})
	s.logger.Info("user logged in", "user_id", user.ID, "degraded", res.Degraded)

	return &LoginResult{
		User:                user,
		AccessToken:         pair.AccessToken,
		RefreshToken:        pair.RefreshToken,
		AccessExpiresAt:     pair.AccessExpiresAt,
		RefreshExpiresAt:    pair.RefreshExpiresAt,
		Claims:              pair.Claims,
		PermissionsDegraded: res.Degraded,
	}, nil
}

// PasswordUpdater is implemented by user directories that can store a new
// password hash.
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// upgradeHash replaces a legacy or under-cost hash with a fresh argon2id
// hash once the plaintext is known to be right. Failure leaves the old
// hash in place and never fails the login.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	up, ok := s.users.(PasswordUpdater)
	if !ok || !NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := HashPassword(password)
	if err == nil {
		err = up.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("upgrading password hash failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	s.logger.Info("password hash upgraded to argon2id", "user_id", user.ID)
}

// Refresh rotates a refresh token. See RotationEngine.Refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*TokenPair, error) {
	pair, err := s.rotation.Refresh(ctx, refreshToken, client)
	if err != nil {
		s.emit(ctx, SessionEvent{
			Type:   EventRefreshRejected,
			Reason: ReasonFor(err),
			Source: client.IPAddress,
		})
		return nil, err
	}

	s.emit(ctx, SessionEvent{
		Type:     EventRefresh,
		UserID:   pair.Claims.UserID,
		Username: pair.Claims.Username,
		TokenID:  pair.SessionID,
		Source:   client.IPAddress,
	})
	return pair, nil
}

// Logout revokes one session, or all of them when logoutAll is set.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string, logoutAll bool) (LogoutResult, error) {
	result, err := s.rotation.Logout(ctx, userID, refreshToken, logoutAll)
	if err != nil {
		return result, err
	}

	evt := SessionEvent{Type: EventLogout, UserID: userID, Revoked: result.Revoked}
	if logoutAll {
		evt.Type = EventRevokeAll
	}
	s.emit(ctx, evt)
	return result, nil
}

// RevokeAllForUser revokes every live session of userID, for example after
// a password change or when an account is disabled.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := s.rotation.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, SessionEvent{Type: EventRevokeAll, UserID: userID, Revoked: n})
	s.logger.Info("revoked all sessions", "user_id", userID, "count", n)
	return n, nil
}

// VerifyAccessToken checks an access token's signature, issuer and expiry.
// It does not consult the session store.
func (s *Service) VerifyAccessToken(token string) (*TokenClaims, error) {
	return s.signer.Parse(token, TokenTypeAccess)
}

// ListSessions returns the user's live sessions, newest first. Signed
// refresh tokens are stripped from the result.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]SessionRecord, error) {
	records, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, asStoreError(err)
	}
	for i := range records {
		records[i].RefreshToken = ""
	}
	return records, nil
}

func (s *Service) emit(ctx context.Context, evt SessionEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}
	s.events.Emit(ctx, evt)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
