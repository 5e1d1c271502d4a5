package conversations

import (
	"context"
	"log/slog"
	"strings"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/policies"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/shared/errs"
)

const SendMessageKey = "conversations.send_message"

var ErrBodyShape = errs.New(errs.Validation, "conversations: send either text or an image reference")

// SendMessageCommand appends a text or image message. ClientMessageID makes retries safe: the
// same id always yields the same stored message.
type SendMessageCommand struct {
	Actor           identity.Principal
	ConversationID  string
	Text            string
	ImageRef        string
	ClientMessageID string
}

func (c SendMessageCommand) Key() string                         { return SendMessageKey }
func (c SendMessageCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c SendMessageCommand) ManagesUnits() bool                  { return true }

func (c SendMessageCommand) Validate() error {
	if strings.TrimSpace(c.ConversationID) == "" {
		return errs.New(errs.Validation, "conversations: conversation_id required")
	}
	if strings.TrimSpace(c.Text) == "" && strings.TrimSpace(c.ImageRef) == "" {
		return ErrBodyShape
	}
	return nil
}

func (c SendMessageCommand) body() message.Body {
	if ref := strings.TrimSpace(c.ImageRef); ref != "" {
		return message.Image{Ref: ref, Caption: strings.TrimSpace(c.Text)}
	}
	return message.Text{Text: c.Text}
}

type SendMessageHandler struct {
	Stream *support.Stream
	Images policies.ImageResolver
	Logger *slog.Logger
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (dto.Message, error) {
	m, err := h.Stream.Append(ctx, support.AppendParams{
		ConversationID: conversation.ID(strings.TrimSpace(cmd.ConversationID)),
		SenderID:       cmd.Actor.UserID,
		Body:           cmd.body(),
		Key:            strings.TrimSpace(cmd.ClientMessageID),
	})
	if err != nil {
		return dto.Message{}, err
	}
	out := dto.MapMessage(m, timeZero)
	resolveImage(ctx, h.Images, h.Logger, &out)
	return out, nil
}

var _ commands.Handler[SendMessageCommand, dto.Message] = (*SendMessageHandler)(nil)
