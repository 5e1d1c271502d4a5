package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/identity"
	"bazaar/internal/domain/shared/errs"
)

func TestIssueAndVerify(t *testing.T) {
	v, err := NewTokenVerifier("s3cret", "bazaar-idp")
	require.NoError(t, err)

	token, err := v.Issue(identity.Principal{UserID: "mod", Roles: []string{identity.RoleModerator}}, time.Hour)
	require.NoError(t, err)

	p, err := v.Principal("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "mod", p.UserID)
	assert.True(t, p.CanModerate())
}

func TestRejectsBadTokens(t *testing.T) {
	v, err := NewTokenVerifier("s3cret", "bazaar-idp")
	require.NoError(t, err)
	other, err := NewTokenVerifier("other", "bazaar-idp")
	require.NoError(t, err)
	foreign, err := NewTokenVerifier("s3cret", "someone-else")
	require.NoError(t, err)

	wrongKey, err := other.Issue(identity.Principal{UserID: "alice"}, time.Hour)
	require.NoError(t, err)
	expired, err := v.Issue(identity.Principal{UserID: "alice"}, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue(identity.Principal{UserID: "alice"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue(identity.Principal{}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong key":    wrongKey,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not-a-token",
	} {
		_, err := v.Principal(token)
		assert.True(t, errs.Is(err, errs.Forbidden), name)
	}

	_, err = v.Principal("")
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestVerifierNeedsSecret(t *testing.T) {
	_, err := NewTokenVerifier(" ", "")
	require.Error(t, err)
}
