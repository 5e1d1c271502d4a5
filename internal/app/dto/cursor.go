package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bazaar/internal/domain/shared/errs"
)

var ErrInvalidCursor = errs.New(errs.Validation, "invalid cursor")

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}

// ActivityCursor encodes a position in an activity-ordered list as "<unix nanos>|<id>".
func ActivityCursor(at time.Time, id string) string {
	return fmt.Sprintf("%d|%s", at.UTC().UnixNano(), id)
}

func ParseActivityCursor(raw string) (time.Time, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, "", nil
	}
	parts := strings.SplitN(trimmed, "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}

// MessageCursor encodes the timestamp of the oldest message of a page in unix milliseconds;
// message timestamps are unique within a conversation.
func MessageCursor(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

func ParseMessageCursor(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, ErrInvalidCursor
	}
	return time.UnixMilli(ms).UTC(), nil
}
