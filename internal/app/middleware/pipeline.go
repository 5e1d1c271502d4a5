package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/queries"
	"bazaar/internal/domain/shared/errs"
)

// CommandMiddleware decorates a command bus.
type CommandMiddleware func(next commands.Bus) commands.Bus

type QueryMiddleware func(next queries.Bus) queries.Bus

// ChainCommands wraps base with mws; the first middleware runs outermost.
func ChainCommands(base commands.Bus, mws ...CommandMiddleware) commands.Bus {
	return chain(base, mws)
}

func ChainQueries(base queries.Bus, mws ...QueryMiddleware) queries.Bus {
	return chain(base, mws)
}

func chain[B any, M ~func(B) B](base B, mws []M) B {
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

type commandFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f commandFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	return f(ctx, cmd)
}

type queryFunc func(ctx context.Context, query queries.Query) (any, error)

func (f queryFunc) Ask(ctx context.Context, q queries.Query) (any, error) {
	return f(ctx, q)
}

// ErrHandlerPanic is returned in place of a handler that panicked.
var ErrHandlerPanic = errors.New("middleware: handler panicked")

// Recover turns handler panics into ErrHandlerPanic and logs the stack.
func Recover(logger *slog.Logger) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (res any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("command handler panicked", "command", cmd.Key(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
					res, err = nil, ErrHandlerPanic
				}
			}()
			return next.Dispatch(ctx, cmd)
		})
	}
}

// Logging records every command outcome with its duration and error kind.
func Logging(logger *slog.Logger) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			attrs := []slog.Attr{
				slog.String("command", cmd.Key()),
				slog.String("actor_id", cmd.ActingPrincipal().UserID),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case err == nil:
				logger.LogAttrs(ctx, slog.LevelDebug, "command handled", attrs...)
			case errs.KindOf(err) == errs.Transport:
				logger.LogAttrs(ctx, slog.LevelWarn, "command failed", append(attrs, slog.Any("error", err))...)
			default:
				logger.LogAttrs(ctx, slog.LevelDebug, "command rejected", append(attrs, slog.String("kind", string(errs.KindOf(err))), slog.Any("error", err))...)
			}
			return res, err
		})
	}
}
