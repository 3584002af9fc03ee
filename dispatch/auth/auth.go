// Package auth resolves the AuthUser contract §4.9 of spec.md depends on:
// bearer tokens are signed JWTs carrying {sub, role, companyId, exp} (see
// SPEC_FULL.md §7's resolution of the token-format Non-goal), verified with
// golang-jwt/jwt/v5 HMAC-SHA256. A second, independent signer built on
// gorilla/securecookie issues the short-lived public ETA tokens of
// `POST /eta/token` / `GET /eta/:token`, since those need to be verified
// without a database round trip and with a much shorter lifetime than a
// session token.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/schema"
)

// AuthUser is resolved from a bearer token by dispatch/web on every
// authenticated request and threaded through to dispatch/tenant.
type AuthUser struct {
	UserID    string
	Role      string
	CompanyID string // empty for platform
}

// IsPlatform reports whether this user carries platform-wide authority
// (spec.md §4.9: "platform role sees everything").
func (u AuthUser) IsPlatform() bool { return u.Role == schema.RolePlatform }

type claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
}

// TokenIssuer signs and verifies bearer tokens with a single HMAC key,
// loaded once at startup from config.Common.JWTSigningKeyPath.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer builds a TokenIssuer with the given signing key and
// token lifetime (24h is the default dispatch-server wires in).
func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, ttl: ttl}
}

// Issue mints a bearer token for u, valid for the issuer's TTL.
func (t *TokenIssuer) Issue(u AuthUser) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Role:      u.Role,
		CompanyID: u.CompanyID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(t.key)
}

// Verify parses and validates a bearer token, returning the AuthUser it
// carries. Any parse/signature/expiry failure is an apperr.Auth.
func (t *TokenIssuer) Verify(tokenString string) (AuthUser, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(tokenString, &c, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Auth("unexpected signing method %v", tok.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !tok.Valid {
		return AuthUser{}, apperr.Auth("invalid or expired token")
	}
	return AuthUser{UserID: c.Subject, Role: c.Role, CompanyID: c.CompanyID}, nil
}

// ETASigner signs and verifies the short-lived, tamper-evident tokens
// handed out by POST /eta/token and consumed by the public GET /eta/:token
// route, without needing a database round trip to validate one.
type ETASigner struct {
	codec *securecookie.SecureCookie
	ttl   time.Duration
}

// etaPayload is what gets encoded into the ETA token.
type etaPayload struct {
	JobID     string
	ExpiresAt time.Time
}

// NewETASigner builds an ETASigner from a securecookie hash key (32 or 64
// bytes) and AES block key (16, 24 or 32 bytes), with the given token
// lifetime.
func NewETASigner(hashKey, blockKey []byte, ttl time.Duration) *ETASigner {
	return &ETASigner{codec: securecookie.New(hashKey, blockKey), ttl: ttl}
}

// Issue mints an opaque token encoding jobID, expiring after the signer's
// TTL.
func (s *ETASigner) Issue(jobID string) (string, error) {
	return s.codec.Encode("eta", etaPayload{JobID: jobID, ExpiresAt: time.Now().Add(s.ttl)})
}

// Verify decodes token and returns the jobID it names, rejecting tampered
// or expired tokens.
func (s *ETASigner) Verify(token string) (string, error) {
	var p etaPayload
	if err := s.codec.Decode("eta", token, &p); err != nil {
		return "", apperr.Auth("invalid eta token")
	}
	if time.Now().After(p.ExpiresAt) {
		return "", apperr.Auth("expired eta token")
	}
	return p.JobID, nil
}
