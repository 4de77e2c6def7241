package queries

import (
	"time"

	"github.com/google/uuid"
)

// ReservationView is the buyer-facing read model of a reservation.
type ReservationView struct {
	ID               uuid.UUID   `json:"id"`
	ListingID        uuid.UUID   `json:"listingId"`
	ListingName      string      `json:"listingName"`
	BuyerID          uuid.UUID   `json:"buyerId"`
	ServiceDate      string      `json:"serviceDate"`
	Status           string      `json:"status"`
	PaymentMethod    string      `json:"paymentMethod"`
	Lines            []LineView  `json:"lines"`
	GrossCents       int64       `json:"grossCents"`
	DiscountCents    int64       `json:"discountCents"`
	NetCents         int64       `json:"netCents"`
	CommissionCents  int64       `json:"commissionCents"`
	CouponCode       *string     `json:"couponCode,omitempty"`
	GatewayPaymentID *string     `json:"gatewayPaymentId,omitempty"`
	FailureReason    *string     `json:"failureReason,omitempty"`
	DeclineReason    string      `json:"declineReason,omitempty"`
	QRCode           *QRCodeView `json:"qrCode,omitempty"`
	HoldExpiresAt    *time.Time  `json:"holdExpiresAt,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type LineView struct {
	TicketTypeID        uuid.UUID  `json:"ticketTypeId"`
	Name                string     `json:"name"`
	Category            string     `json:"category"`
	Quantity            int        `json:"quantity"`
	UnitPriceCents      int64      `json:"unitPriceCents"`
	TotalCents          int64      `json:"totalCents"`
	LinkedReservationID *uuid.UUID `json:"linkedReservationId,omitempty"`
}

type QRCodeView struct {
	Payload   string     `json:"payload"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	HostedURL string     `json:"hostedUrl,omitempty"`
}

type ReservationListItem struct {
	ID          uuid.UUID `json:"id"`
	ListingID   uuid.UUID `json:"listingId"`
	ListingName string    `json:"listingName"`
	ServiceDate string    `json:"serviceDate"`
	Status      string    `json:"status"`
	NetCents    int64     `json:"netCents"`
	CreatedAt   time.Time `json:"createdAt"`
}
