package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access from refresh tokens signed with the same key.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims is the signed payload of both token types. The registered
// claims carry sub (= user id), iat, exp, jti and iss.
type TokenClaims struct {
	UserID         string           `json:"user_id"`
	Username       string           `json:"username"`
	Email          string           `json:"email"`
	FullName       string           `json:"full_name"`
	PersonnelCode  string           `json:"personnel_code"`
	Roles          []RoleAssignment `json:"roles"`
	AllPermissions []string         `json:"all_permissions"`
	IsAdmin        bool             `json:"is_admin"`
	IsBoard        bool             `json:"is_board"`
	TokenType      TokenType        `json:"token_type"`

	jwt.RegisteredClaims
}

// TokenID returns the jti, which is the session key for refresh tokens.
func (c *TokenClaims) TokenID() string {
	return c.ID
}

// HasPermission reports whether perm is in the snapshot.
func (c *TokenClaims) HasPermission(perm string) bool {
	return slices.Contains(c.AllPermissions, perm)
}

// Validate is run by the jwt parser after the registered claims checks.
func (c *TokenClaims) Validate() error {
	switch {
	case c.UserID == "":
		return errors.New("missing user_id")
	case c.Subject != c.UserID:
		return errors.New("subject does not match user_id")
	case c.ID == "":
		return errors.New("missing jti")
	case c.TokenType != TokenTypeAccess && c.TokenType != TokenTypeRefresh:
		return fmt.Errorf("unknown token_type %q", c.TokenType)
	}
	return nil
}

// Signer signs and verifies HS256 tokens.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner returns ErrMissingSigningKey for an empty secret.
func NewSigner(secret, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Sign stamps the issuer and signs claims.
func (s *Signer) Sign(claims *TokenClaims) (string, error) {
	claims.Issuer = s.issuer
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry and checks the token is of
// type want. Every failure wraps ErrInvalidToken.
func (s *Signer) Parse(token string, want TokenType) (*TokenClaims, error) {
	return s.parse(token, want,
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
	)
}

// ParseAllowExpired is Parse without the expiry and issued-at checks.
// Logout uses it so an expired refresh token can still name its session.
func (s *Signer) ParseAllowExpired(token string, want TokenType) (*TokenClaims, error) {
	claims, err := s.parse(token, want, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if err := claims.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

func (s *Signer) parse(token string, want TokenType, opts ...jwt.ParserOption) (*TokenClaims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, want, claims.TokenType)
	}
	return claims, nil
}
