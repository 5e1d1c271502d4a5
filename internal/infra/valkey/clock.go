package valkey

import (
	"context"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"bazaar/internal/app/policies"
	"bazaar/internal/domain/shared/errs"
)

// nextScript stores the last issued millisecond per conversation and returns max(now, last+1).
var nextScript = valkey.NewLuaScript(`
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(ARGV[1])
if now <= last then now = last + 1 end
redis.call('SET', KEYS[1], now, 'PX', ARGV[2])
return now
`)

// Clock issues per-conversation timestamps shared by every engine instance.
type Clock struct {
	client valkey.Client
	prefix string
	keep   time.Duration
}

func NewClient(addrs []string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: addrs})
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "valkey: connect", err)
	}
	return client, nil
}

// NewClock keeps each conversation's marker for keep after its last message; a conversation
// silent for longer falls back to the wall clock, which is already past the marker.
func NewClock(client valkey.Client, keep time.Duration) *Clock {
	if keep <= 0 {
		keep = 24 * time.Hour
	}
	return &Clock{client: client, prefix: "bazaar:clock:", keep: keep}
}

func (c *Clock) Next(ctx context.Context, conversationID string, now time.Time) (time.Time, error) {
	ms := now.UTC().UnixMilli()
	args := []string{strconv.FormatInt(ms, 10), strconv.FormatInt(c.keep.Milliseconds(), 10)}
	issued, err := nextScript.Exec(ctx, c.client, []string{c.prefix + conversationID}, args).AsInt64()
	if err != nil {
		return time.Time{}, errs.Wrap(errs.Transport, "valkey: next timestamp", err)
	}
	return time.UnixMilli(issued).UTC(), nil
}

// Ping reports whether the server answers.
func (c *Clock) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

var _ policies.MessageClock = (*Clock)(nil)
