package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	conversationsapp "bazaar/internal/app/handlers/conversations"
	"bazaar/internal/app/queries"
)

type ConversationHTTP interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Messages(c *gin.Context)
	Send(c *gin.Context)
	MarkRead(c *gin.Context)
}

type ConversationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createConversationRequest struct {
	ListingID    string `json:"listing_id"`
	FirstMessage string `json:"first_message"`
}

// Create resolves the caller's conversation with the listing's seller, creating it when needed.
func (h ConversationHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := conversationsapp.CreateConversationCommand{
		Actor:           user,
		ListingID:       req.ListingID,
		FirstMessage:    req.FirstMessage,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[conversationsapp.CreateConversationCommand, *dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "create conversation")
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ConversationHandler) List(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := conversationsapp.ListConversationsQuery{
		Actor:  user,
		Cursor: c.Query("cursor"),
		Limit:  parsePositiveInt(c.Query("limit"), 0),
	}
	result, err := queries.Ask[conversationsapp.ListConversationsQuery, dto.ConversationList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "list conversations")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ConversationHandler) Get(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := conversationsapp.GetConversationQuery{Actor: user, ConversationID: c.Param("id")}
	result, err := queries.Ask[conversationsapp.GetConversationQuery, dto.Conversation](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "get conversation")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ConversationHandler) Messages(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := conversationsapp.ListMessagesQuery{
		Actor:          user,
		ConversationID: c.Param("id"),
		Before:         c.Query("cursor"),
		Limit:          parsePositiveInt(c.Query("limit"), 0),
	}
	result, err := queries.Ask[conversationsapp.ListMessagesQuery, dto.MessageList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, result)
}

type sendMessageRequest struct {
	Text            string `json:"text"`
	ImageRef        string `json:"image_ref"`
	ClientMessageID string `json:"client_message_id"`
}

func (h ConversationHandler) Send(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	clientID := strings.TrimSpace(req.ClientMessageID)
	if clientID == "" {
		clientID = c.GetHeader("Idempotency-Key")
	}
	cmd := conversationsapp.SendMessageCommand{
		Actor:           user,
		ConversationID:  c.Param("id"),
		Text:            req.Text,
		ImageRef:        req.ImageRef,
		ClientMessageID: clientID,
	}
	result, err := commands.Dispatch[conversationsapp.SendMessageCommand, dto.Message](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, result)
}

type markReadRequest struct {
	Upto *time.Time `json:"upto"`
}

func (h ConversationHandler) MarkRead(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	cmd := conversationsapp.MarkConversationReadCommand{Actor: user, ConversationID: c.Param("id")}
	if req.Upto != nil {
		cmd.Upto = *req.Upto
	}
	result, err := commands.Dispatch[conversationsapp.MarkConversationReadCommand, dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "mark read")
		return
	}
	c.JSON(http.StatusOK, result)
}

func parsePositiveInt(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

var _ ConversationHTTP = ConversationHandler{}
