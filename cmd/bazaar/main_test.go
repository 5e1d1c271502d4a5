package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/identity"
	"bazaar/internal/infra/security"
)

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "bazaar-cli")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "alice", "--role", identity.RoleModerator, "--env-file", "missing.env"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	verifier, err := security.NewTokenVerifier("cli-secret", "bazaar-cli")
	require.NoError(t, err)
	p, err := verifier.Principal(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.CanModerate())
}

func TestRelayRefusesMemoryStore(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORE", "memory")

	root := newRootCommand()
	root.SetArgs([]string{"relay", "--env-file", "missing.env"})
	assert.ErrorIs(t, root.ExecuteContext(context.Background()), errRelayNeedsMongoAndKafka)
}
