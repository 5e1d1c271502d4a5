package middleware

import (
	"context"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/queries"
	"bazaar/internal/domain/shared/errs"
)

type Validator interface {
	Validate(ctx context.Context, message any) error
}

// SelfValidating messages check their own fields before any handler runs.
type SelfValidating interface {
	Validate() error
}

// SelfValidator runs Validate on messages that implement SelfValidating.
type SelfValidator struct{}

func (SelfValidator) Validate(_ context.Context, message any) error {
	if v, ok := message.(SelfValidating); ok {
		return v.Validate()
	}
	return nil
}

// Validation rejects malformed commands. Unclassified validator errors are reported as
// validation failures.
func Validation(v Validator) CommandMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := classifyInvalid(v.Validate(ctx, cmd)); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryValidation(v Validator) QueryMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := classifyInvalid(v.Validate(ctx, q)); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}

func classifyInvalid(err error) error {
	if err == nil || errs.KindOf(err) != "" {
		return err
	}
	return errs.Wrap(errs.Validation, "", err)
}
