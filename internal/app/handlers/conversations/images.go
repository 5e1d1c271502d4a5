package conversations

import (
	"context"
	"log/slog"
	"time"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/policies"
)

var timeZero time.Time

// resolveImage fills the display URL of image messages. Resolution failures leave the URL empty.
func resolveImage(ctx context.Context, images policies.ImageResolver, logger *slog.Logger, m *dto.Message) {
	if images == nil || m.ImageRef == "" {
		return
	}
	url, err := images.ResolveImage(ctx, m.ImageRef)
	if err != nil {
		if logger != nil {
			logger.Warn("image reference not resolved", "message_id", m.ID, "error", err)
		}
		return
	}
	m.ImageURL = url
}
