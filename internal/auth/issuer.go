package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	MaxAccessTTL      = time.Hour
	DefaultRefreshTTL = DefaultSessionTTL
)

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	Claims           *TokenClaims `json:"-"`

	// SessionID is the refresh token's jti, the session store key.
	SessionID string `json:"-"`
}

// Issuer builds, signs and records token pairs.
type Issuer struct {
	signer     *Signer
	store      SessionStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an issuer. Non-positive TTLs fall back to the defaults;
// the access TTL is capped at MaxAccessTTL and at the refresh TTL.
func NewIssuer(signer *Signer, store SessionStore, accessTTL, refreshTTL time.Duration) *Issuer {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	accessTTL = min(accessTTL, MaxAccessTTL, refreshTTL)

	return &Issuer{
		signer:     signer,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a refresh token and an access token from the same claims
// snapshot, then records the session. The session write is the last step:
// if it fails no tokens are returned and the error wraps ErrStoreUnavailable.
func (i *Issuer) Issue(ctx context.Context, user *User, res Resolution, client ClientInfo) (*TokenPair, error) {
	return i.issue(ctx, user, res, client, time.Time{})
}

// issue is Issue with the session's original creation time carried over
// across a rotation. A zero sessionStart means a new session.
func (i *Issuer) issue(ctx context.Context, user *User, res Resolution, client ClientInfo, sessionStart time.Time) (*TokenPair, error) {
	now := i.now().UTC().Truncate(time.Second)
	refreshExp := now.Add(i.refreshTTL)
	accessExp := now.Add(i.accessTTL)

	refreshClaims := i.buildClaims(user, res, TokenTypeRefresh, now, refreshExp)
	refreshToken, err := i.signer.Sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	accessClaims := *refreshClaims
	accessClaims.TokenType = TokenTypeAccess
	accessClaims.ID = uuid.NewString()
	accessClaims.ExpiresAt = jwt.NewNumericDate(accessExp)
	accessToken, err := i.signer.Sign(&accessClaims)
	if err != nil {
		return nil, err
	}

	if sessionStart.IsZero() {
		sessionStart = now
	}
	record := SessionRecord{
		UserID:       user.ID,
		TokenID:      refreshClaims.ID,
		RefreshToken: refreshToken,
		DeviceInfo:   client.DeviceInfo,
		IPAddress:    client.IPAddress,
		CreatedAt:    sessionStart,
		LastUsedAt:   now,
		ExpiresAt:    refreshExp,
	}
	// Remaining lifetime, not refreshTTL: the record must not outlive exp.
	if err := i.store.Put(ctx, record, refreshExp.Sub(i.now())); err != nil {
		return nil, fmt.Errorf("recording session: %w", asStoreError(err))
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Claims:           &accessClaims,
		SessionID:        refreshClaims.ID,
	}, nil
}

func (i *Issuer) buildClaims(user *User, res Resolution, typ TokenType, now, exp time.Time) *TokenClaims {
	roles := res.Roles
	if roles == nil {
		roles = []RoleAssignment{}
	}
	perms := res.AllPermissions
	if perms == nil {
		perms = []string{}
	}

	return &TokenClaims{
		UserID:         user.ID,
		Username:       user.Username,
		Email:          user.Email,
		FullName:       user.FullName(),
		PersonnelCode:  user.PersonnelCode,
		Roles:          roles,
		AllPermissions: perms,
		IsAdmin:        res.IsAdmin,
		IsBoard:        res.IsBoard,
		TokenType:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
}
