package api

import (
	"net/http"
	"strconv"

	resdto "booking-checkout/internal/handler/dto/response"
	"booking-checkout/internal/handler/middleware"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReservationHandler struct {
	q         queries.ReservationQueries
	reconcile commands.ReconcileCommands
}

func NewReservationHandler(q queries.ReservationQueries, reconcile commands.ReconcileCommands) *ReservationHandler {
	return &ReservationHandler{q: q, reconcile: reconcile}
}

// @Summary Get reservation
// @Description Get one of the caller's reservations
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} resdto.ReservationResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		abortUnauthorized(c)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortBadRequest(c, errInvalidReservationID)
		return
	}

	view, err := h.q.GetByID(c.Request.Context(), buyerID, id)
	if err != nil {
		abortWithUseCaseError(c, err, nil)
		return
	}
	resp, err := resdto.FromReservationView(view)
	if err != nil {
		abortWithUseCaseError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List reservations
// @Description List the caller's reservations, newest first
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 50)"
// @Param offset query int false "Offset"
// @Success 200 {array} resdto.ReservationListResponse
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		abortUnauthorized(c)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.q.ListByBuyer(c.Request.Context(), buyerID, limit, offset)
	if err != nil {
		abortWithUseCaseError(c, err, nil)
		return
	}
	resp, err := resdto.FromReservationList(items)
	if err != nil {
		abortWithUseCaseError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Poll reservation status
// @Description Ask the gateway for the payment status of a reservation still waiting for payment
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} resdto.ReservationStatusResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Router /reservations/{id}/status [get]
func (h *ReservationHandler) Status(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		abortUnauthorized(c)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortBadRequest(c, errInvalidReservationID)
		return
	}

	res, err := h.reconcile.PollStatus(c.Request.Context(), buyerID, id)
	if err != nil {
		abortWithUseCaseError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, resdto.FromReservationStatus(res))
}
