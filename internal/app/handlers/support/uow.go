package support

import (
	"context"

	"bazaar/internal/app/uow"
	"bazaar/internal/domain/shared/errs"
)

// Unit is the unit of work a handler runs in: the one from the context when the transaction
// middleware opened it, otherwise one the handler manages itself.
type Unit struct {
	uow.UnitOfWork
	Ctx       context.Context
	managed   bool
	committed bool
}

// OpenUnit reuses the context unit or begins a managed one.
func OpenUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions) (*Unit, error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return &Unit{UnitOfWork: unit, Ctx: ctx}, nil
	}
	unit, execCtx, err := uow.Begin(ctx, factory, opts)
	if err != nil {
		return nil, err
	}
	return &Unit{UnitOfWork: unit, Ctx: execCtx, managed: true}, nil
}

// BeginUnit always begins a fresh managed unit, ignoring any unit already in ctx.
func BeginUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions) (*Unit, error) {
	unit, execCtx, err := uow.Begin(ctx, factory, opts)
	if err != nil {
		return nil, err
	}
	return &Unit{UnitOfWork: unit, Ctx: execCtx, managed: true}, nil
}

// Commit commits managed units; context units are committed by the middleware.
func (u *Unit) Commit() error {
	if !u.managed || u.committed {
		return nil
	}
	if err := u.UnitOfWork.Commit(u.Ctx); err != nil {
		return err
	}
	u.committed = true
	return nil
}

// Close rolls back a managed unit that was not committed.
func (u *Unit) Close() {
	if u.managed && !u.committed {
		_ = u.UnitOfWork.Rollback(u.Ctx)
	}
}

func BeginReadOnlyUnit(ctx context.Context, factory uow.UoWFactory) (*Unit, error) {
	return OpenUnit(ctx, factory, uow.TxOptions{ReadOnly: true})
}

// IsStale reports whether err is an optimistic concurrency conflict.
func IsStale(err error) bool {
	return errs.Is(err, errs.StaleState)
}
