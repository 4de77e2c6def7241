package api

import (
	"io"
	"log/slog"
	"net/http"

	"booking-checkout/internal/handler/httperr"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	reconcile commands.ReconcileCommands
}

func NewWebhookHandler(reconcile commands.ReconcileCommands) *WebhookHandler {
	return &WebhookHandler{reconcile: reconcile}
}

// @Summary Stripe webhook
// @Description Signature-verified payment notifications from Stripe
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} httperr.Response
// @Failure 413 {object} httperr.Response
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errs.As(err, &tooLarge) {
			slog.Warn("webhook body over limit", slog.Int64("limit", tooLarge.Limit))
			httperr.AbortWithError(c, http.StatusRequestEntityTooLarge, err, httperr.CodePayloadTooLarge, nil)
			return
		}
		abortBadRequest(c, err)
		return
	}

	err = h.reconcile.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errs.Is(err, commands.ErrInvalidWebhook):
		slog.Warn("rejected webhook", slog.String("error", err.Error()))
		abortBadRequest(c, err)
	default:
		// non-2xx makes Stripe redeliver
		httperr.AbortWithError(c, http.StatusInternalServerError, err, httperr.CodeInternal, nil)
	}
}
