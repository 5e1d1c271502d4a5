package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/identity"
)

type userMsg struct{ p identity.Principal }

func (m userMsg) ActingPrincipal() identity.Principal { return m.p }

type modMsg struct{ userMsg }

func (modMsg) RequiresModerator() bool { return true }

func TestAuthorizerRequiresUser(t *testing.T) {
	a := identity.Authorizer{}
	require.ErrorIs(t, a.Authorize(context.Background(), userMsg{}), identity.ErrUnauthenticated)
	require.NoError(t, a.Authorize(context.Background(), userMsg{p: identity.Principal{UserID: "u1"}}))
	require.NoError(t, a.Authorize(context.Background(), struct{}{}))
}

func TestAuthorizerRequiresModerator(t *testing.T) {
	a := identity.Authorizer{}
	err := a.Authorize(context.Background(), modMsg{userMsg{p: identity.Principal{UserID: "u1", Roles: []string{"user"}}}})
	require.ErrorIs(t, err, identity.ErrForbidden)

	err = a.Authorize(context.Background(), modMsg{userMsg{p: identity.Principal{UserID: "m1", Roles: []string{"Moderator"}}}})
	require.NoError(t, err)
	assert.True(t, identity.Principal{Roles: []string{"admin"}}.CanModerate())
}
