package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"bazaar/internal/app/identity"
	"bazaar/internal/domain/shared/errs"
)

var ErrInvalidToken = errs.New(errs.Forbidden, "security: invalid token")

// Claims carries the caller id in sub and the roles granted by the identity provider.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens issued by the identity provider.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("security: jwt secret is required")
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Principal parses raw and returns the caller it identifies.
func (v *TokenVerifier) Principal(raw string) (identity.Principal, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return identity.Principal{}, identity.ErrUnauthenticated
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return v.secret, nil })
	if err != nil {
		return identity.Principal{}, errs.Wrap(errs.Forbidden, "security: invalid token", err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return identity.Principal{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return identity.Principal{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return identity.Principal{UserID: claims.Subject, Roles: claims.Roles}, nil
}

// Issue signs a token for p valid for ttl. Used by the dev token command and tests.
func (v *TokenVerifier) Issue(p identity.Principal, ttl time.Duration) (string, error) {
	now := v.now().UTC()
	claims := Claims{
		Roles: p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
