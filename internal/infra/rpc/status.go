package rpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bazaar/internal/app/identity"
	"bazaar/internal/domain/shared/errs"
)

func codeFor(err error) codes.Code {
	if errors.Is(err, identity.ErrUnauthenticated) {
		return codes.Unauthenticated
	}
	switch errs.KindOf(err) {
	case errs.Validation:
		return codes.InvalidArgument
	case errs.Blocked, errs.Forbidden:
		return codes.PermissionDenied
	case errs.IllegalTransition:
		return codes.FailedPrecondition
	case errs.StaleState:
		return codes.Aborted
	case errs.NotFound:
		return codes.NotFound
	case errs.Transport:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatus converts an engine error into a gRPC status. Internal errors keep their message out of
// the response.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeFor(err)
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}
