package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	blocksapp "bazaar/internal/app/handlers/blocks"
	reportsapp "bazaar/internal/app/handlers/reports"
	"bazaar/internal/app/queries"
)

type ModerationHTTP interface {
	Block(c *gin.Context)
	Unblock(c *gin.Context)
	ListBlocked(c *gin.Context)
	FileReport(c *gin.Context)
	ListReports(c *gin.Context)
	ResolveReport(c *gin.Context)
	DismissReport(c *gin.Context)
}

type ModerationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h ModerationHandler) Block(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := blocksapp.BlockUserCommand{Actor: user, TargetID: c.Param("user_id")}
	result, err := commands.Dispatch[blocksapp.BlockUserCommand, dto.BlockEntry](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "block user")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ModerationHandler) Unblock(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := blocksapp.UnblockUserCommand{Actor: user, TargetID: c.Param("user_id")}
	result, err := commands.Dispatch[blocksapp.UnblockUserCommand, dto.BlockEntry](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "unblock user")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ModerationHandler) ListBlocked(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	result, err := queries.Ask[blocksapp.ListBlockedQuery, dto.BlockList](c.Request.Context(), h.Queries, blocksapp.ListBlockedQuery{Actor: user})
	if err != nil {
		respondError(c, h.Logger, err, "list blocked")
		return
	}
	c.JSON(http.StatusOK, result)
}

type fileReportRequest struct {
	ConversationID string `json:"conversation_id"`
	ItemID         string `json:"item_id"`
	Category       string `json:"category"`
	Description    string `json:"description"`
}

func (h ModerationHandler) FileReport(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req fileReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := reportsapp.FileReportCommand{
		Actor:           user,
		ConversationID:  req.ConversationID,
		ItemID:          req.ItemID,
		Category:        req.Category,
		Description:     req.Description,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[reportsapp.FileReportCommand, *dto.Report](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "file report")
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ModerationHandler) ListReports(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := reportsapp.ListReportsQuery{Actor: user, Status: c.Query("status")}
	result, err := queries.Ask[reportsapp.ListReportsQuery, dto.ReportList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "list reports")
		return
	}
	c.JSON(http.StatusOK, result)
}

type closeReportRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (h ModerationHandler) ResolveReport(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req closeReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := reportsapp.ResolveReportCommand{Actor: user, ReportID: c.Param("id"), Action: req.Action, Notes: req.Notes}
	result, err := commands.Dispatch[reportsapp.ResolveReportCommand, dto.Report](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "resolve report")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ModerationHandler) DismissReport(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req closeReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	cmd := reportsapp.DismissReportCommand{Actor: user, ReportID: c.Param("id"), Notes: req.Notes}
	result, err := commands.Dispatch[reportsapp.DismissReportCommand, dto.Report](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "dismiss report")
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ ModerationHTTP = ModerationHandler{}
