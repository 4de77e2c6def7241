package response

import (
	"log/slog"
	"sort"
	"time"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/pricing"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra/qr"
	"booking-checkout/internal/pkg/patch"
	"booking-checkout/internal/usecase/commands"

	"github.com/google/uuid"
)

type PricingResponse struct {
	GrossCents    int64   `json:"grossCents"`
	DiscountCents int64   `json:"discountCents"`
	NetCents      int64   `json:"netCents"`
	CouponCode    *string `json:"couponCode,omitempty"`
}

type QRCodeResponse struct {
	Payload   string     `json:"payload"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	HostedURL string     `json:"hostedUrl,omitempty"`
	// ImageDataURI is a PNG rendering of Payload.
	ImageDataURI string `json:"imageDataUri,omitempty"`
}

type GatewayOutcomeDetail struct {
	DeclineReason string          `json:"declineReason,omitempty"`
	Message       string          `json:"message,omitempty"`
	QRCode        *QRCodeResponse `json:"qrCode,omitempty"`
}

type WarningResponse struct {
	Code         string     `json:"code"`
	TicketTypeID *uuid.UUID `json:"ticketTypeId,omitempty"`
	Message      string     `json:"message"`
}

type CheckoutResponse struct {
	Status               string                `json:"status"`
	ReservationID        uuid.UUID             `json:"reservationId"`
	GatewayOutcomeDetail *GatewayOutcomeDetail `json:"gatewayOutcomeDetail,omitempty"`
	Pricing              PricingResponse       `json:"pricing"`
	HoldExpiresAt        *time.Time            `json:"holdExpiresAt,omitempty"`
	Warnings             []WarningResponse     `json:"warnings,omitempty"`
	Replayed             bool                  `json:"replayed,omitempty"`
}

type ReservationStatusResponse struct {
	ReservationID        uuid.UUID             `json:"reservationId"`
	Status               string                `json:"status"`
	GatewayOutcomeDetail *GatewayOutcomeDetail `json:"gatewayOutcomeDetail,omitempty"`
	HoldExpiresAt        *time.Time            `json:"holdExpiresAt,omitempty"`
}

type QuoteLineResponse struct {
	TicketTypeID   uuid.UUID `json:"ticketTypeId"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	PriceSource    string    `json:"priceSource"`
	TotalCents     int64     `json:"totalCents"`
}

type RemainingResponse struct {
	TicketTypeID uuid.UUID `json:"ticketTypeId"`
	Remaining    int       `json:"remaining"`
}

type QuoteResponse struct {
	Lines     []QuoteLineResponse `json:"lines"`
	Pricing   PricingResponse     `json:"pricing"`
	Warnings  []WarningResponse   `json:"warnings,omitempty"`
	Remaining []RemainingResponse `json:"remaining"`
}

func FromCheckoutResult(result *commands.CheckoutResult) *CheckoutResponse {
	res := result.Reservation
	return &CheckoutResponse{
		Status:               res.Status().String(),
		ReservationID:        res.ID(),
		GatewayOutcomeDetail: fromPaymentDetail(res.PaymentDetail()),
		Pricing:              fromPricing(res.Pricing(), res.CouponCode()),
		HoldExpiresAt:        res.HoldExpiresAt(),
		Warnings:             fromWarnings(result.Warnings),
		Replayed:             result.Replayed,
	}
}

func FromReservationStatus(res *reservation.Reservation) *ReservationStatusResponse {
	return &ReservationStatusResponse{
		ReservationID:        res.ID(),
		Status:               res.Status().String(),
		GatewayOutcomeDetail: fromPaymentDetail(res.PaymentDetail()),
		HoldExpiresAt:        res.HoldExpiresAt(),
	}
}

func FromQuoteResult(result *commands.QuoteResult) *QuoteResponse {
	b := result.Breakdown
	lines := make([]QuoteLineResponse, len(b.Lines))
	for i, l := range b.Lines {
		lines[i] = QuoteLineResponse{
			TicketTypeID:   l.TicketTypeID,
			Name:           l.Name,
			Category:       l.Category.String(),
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPrice.Cents(),
			PriceSource:    string(l.Source),
			TotalCents:     l.Total.Cents(),
		}
	}

	remaining := make([]RemainingResponse, 0, len(result.Remaining))
	for id, n := range result.Remaining {
		remaining = append(remaining, RemainingResponse{TicketTypeID: id, Remaining: n})
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].TicketTypeID.String() < remaining[j].TicketTypeID.String()
	})

	return &QuoteResponse{
		Lines:     lines,
		Pricing:   fromBreakdown(b),
		Warnings:  fromWarnings(result.Warnings),
		Remaining: remaining,
	}
}

func fromPricing(p reservation.Pricing, couponCode *string) PricingResponse {
	return PricingResponse{
		GrossCents:    p.GrossCents,
		DiscountCents: p.DiscountCents,
		NetCents:      p.NetCents,
		CouponCode:    couponCode,
	}
}

func fromBreakdown(b pricing.Breakdown) PricingResponse {
	return PricingResponse{
		GrossCents:    b.Gross.Cents(),
		DiscountCents: b.Discount.Cents(),
		NetCents:      b.Net.Cents(),
		CouponCode:    patch.NilIfZero(b.CouponCode),
	}
}

func fromPaymentDetail(d *payment.Detail) *GatewayOutcomeDetail {
	if d == nil {
		return nil
	}
	out := &GatewayOutcomeDetail{
		DeclineReason: string(d.DeclineReason),
		Message:       d.Message,
	}
	if d.QRCode != nil {
		out.QRCode = fromQRCode(d.QRCode.Payload, d.QRCode.ExpiresAt, d.QRCode.HostedURL)
	}
	return out
}

// fromQRCode leaves the image out when the payload cannot be rendered; the
// raw payload is still usable as copy-and-paste.
func fromQRCode(payload string, expiresAt *time.Time, hostedURL string) *QRCodeResponse {
	out := &QRCodeResponse{Payload: payload, ExpiresAt: expiresAt, HostedURL: hostedURL}
	if payload == "" {
		return out
	}
	uri, err := qr.DataURI(payload)
	if err != nil {
		slog.Warn("failed to render qr code", slog.String("error", err.Error()))
		return out
	}
	out.ImageDataURI = uri
	return out
}

func fromWarnings(ws []cart.Warning) []WarningResponse {
	if len(ws) == 0 {
		return nil
	}
	out := make([]WarningResponse, len(ws))
	for i, w := range ws {
		out[i] = WarningResponse{Code: string(w.Code), TicketTypeID: w.TicketTypeID, Message: w.Message}
	}
	return out
}
