package mongo

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"

	"bazaar/internal/domain/shared/errs"
)

var ErrConcurrentUpdate = errs.New(errs.StaleState, "mongo: concurrent update detected")

// classify maps driver failures onto the error taxonomy. notFound is returned for missing
// documents when set.
func classify(err error, op string, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments) && notFound != nil:
		return notFound
	case mongo.IsDuplicateKeyError(err), writeConflict(err):
		return errs.Wrap(errs.StaleState, op, ErrConcurrentUpdate)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return errs.Wrap(errs.Transport, op, err)
	default:
		return errors.Wrap(err, op)
	}
}

// saveResult turns a version-guarded upsert outcome into ErrConcurrentUpdate when nothing matched.
func saveResult(res *mongo.UpdateResult, err error, op string) error {
	if err != nil {
		return classify(err, op, nil)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return errs.Wrap(errs.StaleState, op, ErrConcurrentUpdate)
	}
	return nil
}

// writeConflict reports transaction conflicts; they surface like a version mismatch.
func writeConflict(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(112) || se.HasErrorLabel("TransientTransactionError")
}
