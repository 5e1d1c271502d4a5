package middleware

import (
	"context"
	"log/slog"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/outbox"
)

// OutboxFlush relays committed records once the inner chain returns, whatever its outcome: a
// handler that manages its own units may have committed part of its work before failing. A
// failed flush is only logged; the records stay stored for the next flush or the relay worker.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			defer func() {
				if err := box.Flush(ctx); err != nil && logger != nil {
					logger.Warn("outbox flush failed", "command", cmd.Key(), "error", err)
				}
			}()
			return next.Dispatch(ctx, cmd)
		})
	}
}
