package api

import (
	"net/http"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/handler/httperr"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type violationDetail struct {
	Code         string     `json:"code"`
	TicketTypeID *uuid.UUID `json:"ticketTypeId,omitempty"`
}

type validationDetail struct {
	Violations []violationDetail `json:"violations"`
}

// abortWithUseCaseError maps use-case errors to responses. detail is sent as
// is unless the error carries cart violations.
func abortWithUseCaseError(c *gin.Context, err error, detail any) {
	var verr *cart.ValidationError
	if errs.As(err, &verr) {
		vd := validationDetail{Violations: make([]violationDetail, len(verr.Violations))}
		for i, v := range verr.Violations {
			vd.Violations[i] = violationDetail{Code: string(v.Code), TicketTypeID: v.TicketTypeID}
		}
		if detail == nil {
			detail = vd
		}
		if soldOutViolation(verr) {
			httperr.AbortWithError(c, http.StatusConflict, err, httperr.CodeSoldOut, detail)
			return
		}
		httperr.AbortWithError(c, http.StatusBadRequest, err, httperr.CodeInvalidRequest, detail)
		return
	}

	switch {
	case errs.Is(err, commands.ErrCapacityExhausted):
		httperr.AbortWithError(c, http.StatusConflict, err, httperr.CodeSoldOut, detail)
	case errs.Is(err, commands.ErrInvalidRequest),
		errs.Is(err, commands.ErrCartValidation),
		errs.Is(err, commands.ErrInvalidCoupon),
		errs.Is(err, commands.ErrInstrument):
		httperr.AbortWithError(c, http.StatusBadRequest, err, httperr.CodeInvalidRequest, detail)
	case errs.Is(err, commands.ErrIdempotencyInProgress),
		errs.Is(err, commands.ErrIdempotencyMismatch):
		httperr.AbortWithError(c, http.StatusConflict, err, httperr.CodeConflict, detail)
	case errs.Is(err, commands.ErrListingNotFound),
		errs.Is(err, commands.ErrReservationNotFound),
		errs.Is(err, queries.ErrReservationNotVisible),
		infra.IsKind(err, infra.KindNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, httperr.CodeNotFound, detail)
	default:
		httperr.AbortWithError(c, http.StatusInternalServerError, err, httperr.CodeInternal, detail)
	}
}

// soldOutViolation reports carts rejected only because the date has no room left.
func soldOutViolation(verr *cart.ValidationError) bool {
	for _, v := range verr.Violations {
		if v.Code != cart.CodeCapacityExceeded && v.Code != cart.CodeStockExceeded {
			return false
		}
	}
	return len(verr.Violations) > 0
}

func abortBadRequest(c *gin.Context, err error) {
	httperr.AbortWithError(c, http.StatusBadRequest, err, httperr.CodeInvalidRequest, nil)
}

func abortUnauthorized(c *gin.Context) {
	httperr.AbortWithError(c, http.StatusUnauthorized, errMissingBuyer, httperr.CodeUnauthorized, nil)
}
