// Package auth issues and verifies the JWT access/refresh tokens, hashes
// passwords and fingerprints refresh tokens for storage.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tells access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims are the registered JWT claims plus the fields this service adds.
// Role is set on access tokens only, Family on refresh tokens only.
type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"uid"`
	Role   models.Role `json:"role,omitempty"`
	Kind   Kind        `json:"kind"`
	Family string      `json:"fam,omitempty"`
}

// Issuer signs and verifies tokens with a KeySet. It is safe for
// concurrent use.
type Issuer struct {
	keys       *KeySet
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(keys *KeySet, issuer string, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		keys:       keys,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AccessTTL is the lifetime of access tokens; clients get it as expires_in.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccessToken returns a short-lived token carrying the user id and role.
func (i *Issuer) IssueAccessToken(userID string, role models.Role) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(userID, i.accessTTL),
		UserID:           userID,
		Role:             role,
		Kind:             KindAccess,
	})
}

// IssueRefreshToken returns a long-lived token bound to a session family.
func (i *Issuer) IssueRefreshToken(userID, family string) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(userID, i.refreshTTL),
		UserID:           userID,
		Kind:             KindRefresh,
		Family:           family,
	})
}

func (i *Issuer) registered(userID string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) sign(c Claims) (string, error) {
	kid, key := i.keys.signing()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	token.Header["kid"] = kid

	s, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify checks the signature, then expiry, then that the token is of the
// expected kind. A token presented exactly at its expiry instant is expired.
func (i *Issuer) Verify(tokenString string, expected Kind) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrTokenSignatureInvalid, err)
	}

	if claims.Kind != expected {
		return nil, common.ErrTokenKindMismatch
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing uid", common.ErrTokenSignatureInvalid)
	}

	return claims, nil
}

func (i *Issuer) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	key, ok := i.keys.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}
