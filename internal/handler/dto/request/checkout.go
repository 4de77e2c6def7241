package request

import (
	"strings"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/pkg/patch"
	"booking-checkout/internal/usecase/commands"

	"github.com/google/uuid"
)

type CartItemRequest struct {
	TicketTypeID        uuid.UUID  `json:"ticketTypeId" binding:"required"`
	Quantity            int        `json:"quantity"`
	LinkedReservationID *uuid.UUID `json:"linkedReservationId,omitempty"`
}

type PaymentRequest struct {
	Method string `json:"method" binding:"required,oneof=card qr"`
	// Token is the client-side card token. Unused for qr.
	Token      string `json:"token,omitempty"`
	PayerName  string `json:"payerName,omitempty"`
	PayerEmail string `json:"payerEmail,omitempty" binding:"omitempty,email"`
	PayerTaxID string `json:"payerTaxId,omitempty"`
}

type QuoteRequest struct {
	ListingID   uuid.UUID         `json:"listingId" binding:"required"`
	ServiceDate string            `json:"serviceDate" binding:"required" example:"2030-01-01"`
	Items       []CartItemRequest `json:"items" binding:"dive"`
	CouponCode  *string           `json:"couponCode,omitempty"`
}

type CheckoutRequest struct {
	QuoteRequest
	Payment PaymentRequest `json:"payment" binding:"required"`
	// BuyerContact overrides the email carried by the access token.
	BuyerContact string `json:"buyerContact,omitempty"`
}

func (r QuoteRequest) GetCouponCode() *string {
	if r.CouponCode == nil {
		return nil
	}
	return patch.NilIfZero(strings.TrimSpace(*r.CouponCode))
}

func (r QuoteRequest) cartItems() []cart.Item {
	items := make([]cart.Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = cart.Item{
			TicketTypeID:        it.TicketTypeID,
			Quantity:            it.Quantity,
			LinkedReservationID: it.LinkedReservationID,
		}
	}
	return items
}

func (r QuoteRequest) ToInput(buyer cart.Buyer) commands.QuoteInput {
	return commands.QuoteInput{
		ListingID:   r.ListingID,
		ServiceDate: strings.TrimSpace(r.ServiceDate),
		Items:       r.cartItems(),
		CouponCode:  r.GetCouponCode(),
		Buyer:       buyer,
	}
}

// ToInput builds the checkout command. tokenEmail is used when the body
// carries no buyer contact.
func (r CheckoutRequest) ToInput(buyerID uuid.UUID, tokenEmail string, key uuid.UUID) (commands.CheckoutInput, error) {
	method, err := payment.ParseMethod(r.Payment.Method)
	if err != nil {
		return commands.CheckoutInput{}, err
	}
	contact := strings.TrimSpace(r.BuyerContact)
	if contact == "" {
		contact = tokenEmail
	}
	payerEmail := strings.TrimSpace(r.Payment.PayerEmail)
	if payerEmail == "" {
		payerEmail = contact
	}

	return commands.CheckoutInput{
		ListingID:   r.ListingID,
		ServiceDate: strings.TrimSpace(r.ServiceDate),
		Items:       r.cartItems(),
		CouponCode:  r.GetCouponCode(),
		Instrument: payment.Instrument{
			Method:     method,
			Token:      strings.TrimSpace(r.Payment.Token),
			PayerName:  strings.TrimSpace(r.Payment.PayerName),
			PayerEmail: payerEmail,
			PayerTaxID: strings.TrimSpace(r.Payment.PayerTaxID),
		},
		Buyer:          cart.Buyer{ID: buyerID, Contact: contact},
		IdempotencyKey: key,
	}, nil
}
