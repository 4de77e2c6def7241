package response

import (
	"time"

	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type LineResponse struct {
	TicketTypeID        uuid.UUID  `json:"ticketTypeId"`
	Name                string     `json:"name"`
	Category            string     `json:"category"`
	Quantity            int        `json:"quantity"`
	UnitPriceCents      int64      `json:"unitPriceCents"`
	TotalCents          int64      `json:"totalCents"`
	LinkedReservationID *uuid.UUID `json:"linkedReservationId,omitempty"`
}

type ReservationResponse struct {
	ID               uuid.UUID       `json:"id"`
	ListingID        uuid.UUID       `json:"listingId"`
	ListingName      string          `json:"listingName"`
	ServiceDate      string          `json:"serviceDate"`
	Status           string          `json:"status"`
	PaymentMethod    string          `json:"paymentMethod"`
	Lines            []LineResponse  `json:"lines"`
	GrossCents       int64           `json:"grossCents"`
	DiscountCents    int64           `json:"discountCents"`
	NetCents         int64           `json:"netCents"`
	CouponCode       *string         `json:"couponCode,omitempty"`
	GatewayPaymentID *string         `json:"gatewayPaymentId,omitempty"`
	FailureReason    *string         `json:"failureReason,omitempty"`
	DeclineReason    string          `json:"declineReason,omitempty"`
	QRCode           *QRCodeResponse `json:"qrCode,omitempty" copier:"-"`
	HoldExpiresAt    *time.Time      `json:"holdExpiresAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type ReservationListResponse struct {
	ID          uuid.UUID `json:"id"`
	ListingID   uuid.UUID `json:"listingId"`
	ListingName string    `json:"listingName"`
	ServiceDate string    `json:"serviceDate"`
	Status      string    `json:"status"`
	NetCents    int64     `json:"netCents"`
	CreatedAt   time.Time `json:"createdAt"`
}

func FromReservationView(rm *queries.ReservationView) (*ReservationResponse, error) {
	var out ReservationResponse
	if err := copier.CopyWithOption(&out, rm, copier.Option{DeepCopy: true}); err != nil {
		return nil, errs.Wrap(err, "map reservation view")
	}
	if out.Lines == nil {
		out.Lines = []LineResponse{}
	}
	if rm.QRCode != nil {
		out.QRCode = fromQRCode(rm.QRCode.Payload, rm.QRCode.ExpiresAt, rm.QRCode.HostedURL)
	}
	return &out, nil
}

func FromReservationList(items []*queries.ReservationListItem) ([]ReservationListResponse, error) {
	out := make([]ReservationListResponse, 0, len(items))
	if len(items) == 0 {
		return out, nil
	}
	if err := copier.Copy(&out, items); err != nil {
		return nil, errs.Wrap(err, "map reservation list")
	}
	return out, nil
}
