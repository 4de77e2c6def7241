package api

import (
	"net/http"

	"booking-checkout/internal/domain/cart"
	reqdto "booking-checkout/internal/handler/dto/request"
	resdto "booking-checkout/internal/handler/dto/response"
	"booking-checkout/internal/handler/middleware"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/commands"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const idempotencyHeader = "Idempotency-Key"

var (
	errMissingBuyer           = errs.New("no authenticated buyer in context")
	errIdempotencyKeyRequired = errs.New("idempotency-key header required")
	errInvalidIdempotencyKey  = errs.New("idempotency-key must be a uuid")
	errInvalidReservationID   = errs.New("invalid reservation id")
)

type CheckoutHandler struct {
	cmds commands.CheckoutCommands
}

func NewCheckoutHandler(cmds commands.CheckoutCommands) *CheckoutHandler {
	return &CheckoutHandler{cmds: cmds}
}

// @Summary Checkout
// @Description Validate, price, reserve and charge a cart in one call
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string true "UUID; retries with the same key never charge twice"
// @Param request body reqdto.CheckoutRequest true "Checkout request"
// @Success 200 {object} resdto.CheckoutResponse "approved, declined or waiting for an async payment"
// @Failure 400 {object} httperr.Response
// @Failure 401 {object} httperr.Response
// @Failure 409 {object} httperr.Response "sold out, or the key is in use"
// @Failure 500 {object} httperr.Response
// @Router /reservations/checkout [post]
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		abortUnauthorized(c)
		return
	}
	key, err := getIdempotencyKey(c)
	if err != nil {
		abortBadRequest(c, err)
		return
	}

	var req reqdto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	email, _ := middleware.GetBuyerContact(c)
	in, err := req.ToInput(buyerID, email, key)
	if err != nil {
		abortBadRequest(c, err)
		return
	}

	result, err := h.cmds.Checkout(c.Request.Context(), in)
	if result != nil && result.Reservation != nil {
		middleware.SetReservationID(c, result.Reservation.ID())
	}
	if err != nil {
		// sold out and gateway outages still leave a reservation the client can follow
		var detail any
		if result != nil && result.Reservation != nil {
			detail = resdto.FromCheckoutResult(result)
		}
		abortWithUseCaseError(c, err, detail)
		return
	}

	c.JSON(http.StatusOK, resdto.FromCheckoutResult(result))
}

// @Summary Quote
// @Description Validate and price a cart without reserving anything
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.QuoteRequest true "Quote request"
// @Success 200 {object} resdto.QuoteResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /reservations/quote [post]
func (h *CheckoutHandler) Quote(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		abortUnauthorized(c)
		return
	}
	var req reqdto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	email, _ := middleware.GetBuyerContact(c)

	result, err := h.cmds.Quote(c.Request.Context(), req.ToInput(cart.Buyer{ID: buyerID, Contact: email}))
	if err != nil {
		abortWithUseCaseError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, resdto.FromQuoteResult(result))
}

func getIdempotencyKey(c *gin.Context) (uuid.UUID, error) {
	keyStr := c.GetHeader(idempotencyHeader)
	if keyStr == "" {
		return uuid.Nil, errIdempotencyKeyRequired
	}

	key, err := uuid.Parse(keyStr)
	if err != nil || key == uuid.Nil {
		return uuid.Nil, errInvalidIdempotencyKey
	}

	return key, nil
}
