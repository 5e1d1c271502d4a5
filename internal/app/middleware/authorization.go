package middleware

import (
	"context"
	"log/slog"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/queries"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// Authorization rejects commands whose principal may not issue them before any store is touched.
func Authorization(a Authorizer, logger *slog.Logger) CommandMiddleware {
	check := authorize(a, logger)
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := check(ctx, cmd.Key(), cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer, logger *slog.Logger) QueryMiddleware {
	check := authorize(a, logger)
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := check(ctx, q.Key(), q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}

func authorize(a Authorizer, logger *slog.Logger) func(context.Context, string, identity.Acting) error {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(ctx context.Context, key string, msg identity.Acting) error {
		err := a.Authorize(ctx, msg)
		if err != nil && logger != nil {
			logger.Debug("request denied", "key", key, "user_id", msg.ActingPrincipal().UserID, "error", err)
		}
		return err
	}
}
