package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	offersapp "bazaar/internal/app/handlers/offers"
	"bazaar/internal/app/queries"
)

type OfferHTTP interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Accept(c *gin.Context)
	Reject(c *gin.Context)
	Counter(c *gin.Context)
}

type OfferHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type priceRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Note     string `json:"note"`
}

type createOfferRequest struct {
	ListingID string `json:"listing_id"`
	priceRequest
}

func (h OfferHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := offersapp.CreateOfferCommand{
		Actor:           user,
		ConversationID:  c.Param("id"),
		ListingID:       req.ListingID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Note:            req.Note,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[offersapp.CreateOfferCommand, *dto.Offer](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "create offer")
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h OfferHandler) List(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := offersapp.ListOffersQuery{Actor: user, ConversationID: c.Param("id")}
	result, err := queries.Ask[offersapp.ListOffersQuery, dto.OfferList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "list offers")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OfferHandler) Get(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := offersapp.GetOfferQuery{Actor: user, OfferID: c.Param("id")}
	result, err := queries.Ask[offersapp.GetOfferQuery, dto.Offer](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err, "get offer")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OfferHandler) Accept(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := offersapp.AcceptOfferCommand{Actor: user, OfferID: c.Param("id")}
	result, err := commands.Dispatch[offersapp.AcceptOfferCommand, dto.Offer](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "accept offer")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OfferHandler) Reject(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := offersapp.RejectOfferCommand{Actor: user, OfferID: c.Param("id")}
	result, err := commands.Dispatch[offersapp.RejectOfferCommand, dto.Offer](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "reject offer")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OfferHandler) Counter(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := offersapp.CounterOfferCommand{Actor: user, OfferID: c.Param("id"), Amount: req.Amount, Currency: req.Currency, Note: req.Note}
	result, err := commands.Dispatch[offersapp.CounterOfferCommand, dto.CounterResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "counter offer")
		return
	}
	c.JSON(http.StatusCreated, result)
}

var _ OfferHTTP = OfferHandler{}
