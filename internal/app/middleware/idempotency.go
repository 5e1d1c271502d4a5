package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bazaar/internal/app/commands"
	"bazaar/internal/domain/shared/errs"
)

// IdempotentCommand is implemented by commands that carry a client idempotency key.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	ResultPrototype() any
}

type IdempotencyRecord struct {
	Key        string
	Payload    []byte
	Error      string
	ErrorKind  string
	OccurredAt time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")

// Idempotency replays the stored outcome of a command key. Retryable failures (stale state,
// transport) are not stored so that a retry with the same key runs again.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			r := recorder{store: store, codec: codec, key: cmd.Key() + ":" + idCmd.IdempotencyKey()}
			rec, found, err := store.Get(ctx, r.key)
			if err != nil {
				return nil, errs.Wrap(errs.Transport, "idempotency lookup", err)
			}
			if found {
				return replay(rec, idCmd, codec)
			}
			result, err := next.Dispatch(ctx, cmd)
			return r.remember(ctx, result, err)
		})
	}
}

type recorder struct {
	store IdempotencyStore
	codec ResultCodec
	key   string
}

// remember stores the outcome and hands it back unchanged unless storing fails.
func (r recorder) remember(ctx context.Context, result any, err error) (any, error) {
	if err != nil && errs.Retryable(err) {
		return nil, err
	}
	rec := IdempotencyRecord{Key: r.key, OccurredAt: time.Now().UTC()}
	switch {
	case err != nil:
		rec.Error = err.Error()
		rec.ErrorKind = string(errs.KindOf(err))
	case result != nil:
		payload, encErr := r.codec.Encode(result)
		if encErr != nil {
			return nil, encErr
		}
		rec.Payload = payload
	}
	if saveErr := r.store.Save(ctx, rec); saveErr != nil {
		if err != nil {
			return nil, errors.Join(err, saveErr)
		}
		return nil, saveErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func replay(rec IdempotencyRecord, cmd IdempotentCommand, codec ResultCodec) (any, error) {
	if rec.Error != "" {
		if rec.ErrorKind != "" {
			return nil, errs.New(errs.Kind(rec.ErrorKind), rec.Error)
		}
		return nil, errors.New(rec.Error)
	}
	proto := cmd.ResultPrototype()
	if proto == nil {
		return nil, errMissingPrototype
	}
	if len(rec.Payload) == 0 {
		return nil, nil
	}
	if err := codec.Decode(rec.Payload, proto); err != nil {
		return nil, err
	}
	return proto, nil
}
