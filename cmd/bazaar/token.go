package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bazaar/internal/app/identity"
	"bazaar/internal/infra/security"
)

// devSecret signs tokens when JWT_SECRET is unset, which config only allows in dev.
const devSecret = "bazaar-dev-secret"

func newTokenCommand(load configLoader) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			secret := cfg.JWTSecret
			if secret == "" {
				secret = devSecret
			}
			verifier, err := security.NewTokenVerifier(secret, cfg.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(identity.Principal{UserID: args[0], Roles: roles}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role granted to the token (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
