// Package token mints and verifies the signed access/refresh token payloads
// that anchor every authenticated request to a server-side session.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is the single signal for any verification failure:
	// bad signature, wrong type, expired, malformed. Callers must not be able
	// to distinguish which check failed.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Type discriminates access from refresh tokens inside the signed payload.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims is the signed payload shared by access and refresh tokens.
// TenantID is the current tenant context; TenantAccess lists every tenant the
// user belongs to at issuance time.
type Claims struct {
	jwt.RegisteredClaims
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	TenantID     string   `json:"tenant_id"`
	TenantAccess []string `json:"tenant_access"`
	SessionID    string   `json:"session_id"`
	TokenType    Type     `json:"type"`
}

// Identity carries the claim inputs for issuance.
type Identity struct {
	UserID       string
	Email        string
	Role         string
	TenantID     string
	TenantAccess []string
	SessionID    string
}

// Issuer signs and verifies JWT access and refresh tokens using RS256 or
// ES256 (private/public key). It is stateless; revocation checks live in the
// token lifecycle service.
type Issuer struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer returns an Issuer that signs with the given private key (RS256 or
// ES256). Both TTLs must be positive; a non-positive TTL is a configuration
// integrity failure and is rejected here rather than degraded at issue time.
func NewIssuer(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token: access and refresh TTLs must be positive")
	}
	return &Issuer{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (p *Issuer) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *Issuer) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for the given identity.
// Returns the token string, its jti, and expiration time.
func (p *Issuer) IssueAccess(id Identity) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(id, TypeAccess, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT for the given identity.
// The caller persists the token's hash for revocation checks.
func (p *Issuer) IssueRefresh(id Identity) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(id, TypeRefresh, p.refreshTTL)
}

func (p *Issuer) issue(id Identity, typ Type, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:        id.Email,
		Role:         id.Role,
		TenantID:     id.TenantID,
		TenantAccess: id.TenantAccess,
		SessionID:    id.SessionID,
		TokenType:    typ,
	}
	signed, err := p.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

func (p *Issuer) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses and verifies the token (signature, exp, iss, aud) and checks
// that its embedded type matches expected. Every failure collapses to
// ErrInvalidToken.
func (p *Issuer) Validate(tokenString string, expected Type) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expected {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
