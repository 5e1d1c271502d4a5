package middleware

import (
	"context"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// UnitManager is implemented by commands whose handler opens its own units, usually because part
// of the work (stream appends, summary refreshes) must not roll back with the rest.
type UnitManager interface {
	ManagesUnits() bool
}

// Transaction runs the command inside a unit of work stored in the context and commits it when
// the handler succeeds.
func Transaction(factory uow.UoWFactory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	if optsProvider == nil {
		optsProvider = func(commands.Command) uow.TxOptions { return uow.TxOptions{} }
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if m, ok := cmd.(UnitManager); ok && m.ManagesUnits() {
				return next.Dispatch(ctx, cmd)
			}
			return inUnit(ctx, factory, optsProvider(cmd), func(ctx context.Context) (any, error) {
				return next.Dispatch(ctx, cmd)
			})
		})
	}
}

func inUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions, fn func(context.Context) (any, error)) (res any, err error) {
	unit, execCtx, err := uow.Begin(ctx, factory, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = unit.Rollback(execCtx)
		}
	}()
	if res, err = fn(execCtx); err != nil {
		return nil, err
	}
	if err = unit.Commit(execCtx); err != nil {
		return nil, err
	}
	return res, nil
}
