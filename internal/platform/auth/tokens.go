package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const (
	tokenKindSession = "session"
	tokenKindReset   = "password_reset"
)

var (
	// ErrTokenExpired signals that the presented token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the presented token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Kind  string `json:"kind"`
}

// ResetToken describes an issued password-reset token. The JTI is persisted so
// redemption can be restricted to a single use.
type ResetToken struct {
	Token     string
	JTI       string
	UserID    string
	ExpiresAt time.Time
}

// TokenManagerDeps lists the inputs required to build a TokenManager.
type TokenManagerDeps struct {
	Secret      string
	Issuer      string
	AccessTTL   time.Duration
	ResetTTL    time.Duration
	Clock       func() time.Time
	IDGenerator func() string
}

// TokenManager signs and verifies the HMAC session and reset tokens used by
// the API.
type TokenManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	resetTTL  time.Duration
	clock     func() time.Time
	idgen     func() string
}

// NewTokenManager validates deps and constructs a TokenManager.
func NewTokenManager(deps TokenManagerDeps) (*TokenManager, error) {
	secret := strings.TrimSpace(deps.Secret)
	if secret == "" {
		return nil, errors.New("token manager requires a signing secret")
	}
	if deps.AccessTTL <= 0 {
		return nil, errors.New("token manager requires a positive access token ttl")
	}
	if deps.ResetTTL <= 0 {
		return nil, errors.New("token manager requires a positive reset token ttl")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idgen := deps.IDGenerator
	if idgen == nil {
		idgen = func() string { return ulid.Make().String() }
	}
	issuer := strings.TrimSpace(deps.Issuer)
	if issuer == "" {
		issuer = "fashion-shop"
	}
	return &TokenManager{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: deps.AccessTTL,
		resetTTL:  deps.ResetTTL,
		clock:     clock,
		idgen:     idgen,
	}, nil
}

// IssueAccessToken creates a signed session token for the given principal.
func (m *TokenManager) IssueAccessToken(uid, email, role string) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("token manager not initialised")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", time.Time{}, errors.New("access token requires a subject")
	}
	now := m.clock().UTC()
	expiresAt := now.Add(m.accessTTL)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        m.idgen(),
			Subject:   uid,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: strings.TrimSpace(email),
		Role:  strings.ToLower(strings.TrimSpace(role)),
		Kind:  tokenKindSession,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken validates the signature and expiry of a session token and
// returns the embedded identity.
func (m *TokenManager) VerifyAccessToken(tokenStr string) (*Identity, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokenKindSession {
		return nil, fmt.Errorf("%w: unexpected token kind", ErrTokenInvalid)
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return &Identity{
		UID:   claims.Subject,
		Email: claims.Email,
		Roles: []string{role},
	}, nil
}

// IssueResetToken creates a short-lived single-use password-reset token.
func (m *TokenManager) IssueResetToken(uid string) (ResetToken, error) {
	if m == nil {
		return ResetToken{}, errors.New("token manager not initialised")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ResetToken{}, errors.New("reset token requires a subject")
	}
	now := m.clock().UTC()
	expiresAt := now.Add(m.resetTTL)
	jti := m.idgen()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   uid,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind: tokenKindReset,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return ResetToken{}, fmt.Errorf("sign reset token: %w", err)
	}
	return ResetToken{
		Token:     signed,
		JTI:       jti,
		UserID:    uid,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyResetToken validates a reset token and returns the subject and jti for
// single-use bookkeeping.
func (m *TokenManager) VerifyResetToken(tokenStr string) (userID, jti string, err error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return "", "", err
	}
	if claims.Kind != tokenKindReset {
		return "", "", fmt.Errorf("%w: unexpected token kind", ErrTokenInvalid)
	}
	if claims.ID == "" {
		return "", "", fmt.Errorf("%w: reset token missing jti", ErrTokenInvalid)
	}
	return claims.Subject, claims.ID, nil
}

func (m *TokenManager) parse(tokenStr string) (*sessionClaims, error) {
	if m == nil {
		return nil, errors.New("token manager not initialised")
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	// Claims validation is disabled on the parser so expiry can be checked
	// against the injected clock instead of the package-level time source.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &sessionClaims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	now := m.clock().UTC()
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("%w: not yet valid", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
