package feed

import "bazaar/internal/domain/shared/errs"

var ErrWatchClosed = errs.New(errs.Transport, "feed: watch closed")
