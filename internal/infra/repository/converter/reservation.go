package converter

import (
	"encoding/json"
	"fmt"
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/pkg/pgconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ReservationRow mirrors the reservations table column by column.
type ReservationRow struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	BuyerID          uuid.UUID
	BuyerContact     string
	ServiceDate      string
	Lines            []byte
	GrossCents       int64
	DiscountCents    int64
	NetCents         int64
	CommissionCents  int64
	CouponID         pgtype.UUID
	CouponCode       pgtype.Text
	PaymentMethod    string
	Status           string
	GatewayPaymentID pgtype.Text
	InstrumentRef    pgtype.Text
	PaymentDetail    []byte
	CapacityHold     []byte
	HoldExpiresAt    pgtype.Timestamptz
	ChargeAttempts   int32
	FailureReason    pgtype.Text
	Version          int32
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type LineJSON struct {
	TicketTypeID        uuid.UUID  `json:"ticketTypeId"`
	Name                string     `json:"name"`
	Category            string     `json:"category"`
	Quantity            int        `json:"quantity"`
	UnitPriceCents      int64      `json:"unitPriceCents"`
	TotalCents          int64      `json:"totalCents"`
	CapacityRemaining   *int       `json:"capacityRemaining,omitempty"`
	LinkedReservationID *uuid.UUID `json:"linkedReservationId,omitempty"`
}

type holdJSON struct {
	Buckets []bucketJSON `json:"buckets"`
	Stock   []stockJSON  `json:"stock"`
}

type bucketJSON struct {
	Bucket string `json:"bucket"`
	Units  int    `json:"units"`
	Quota  int    `json:"quota"`
}

type stockJSON struct {
	TicketTypeID uuid.UUID `json:"ticketTypeId"`
	Units        int       `json:"units"`
	Stock        int       `json:"stock"`
}

// DetailJSON is also decoded by the read side.
type DetailJSON struct {
	DeclineReason string     `json:"declineReason,omitempty"`
	Message       string     `json:"message,omitempty"`
	QRPayload     string     `json:"qrPayload,omitempty"`
	QRExpiresAt   *time.Time `json:"qrExpiresAt,omitempty"`
	QRHostedURL   string     `json:"qrHostedUrl,omitempty"`
}

func ReservationToRow(res *reservation.Reservation) (ReservationRow, error) {
	lines := make([]LineJSON, 0, len(res.Lines()))
	for _, l := range res.Lines() {
		lines = append(lines, LineJSON{
			TicketTypeID:        l.TicketTypeID,
			Name:                l.Name,
			Category:            l.Category.String(),
			Quantity:            l.Quantity,
			UnitPriceCents:      l.UnitPriceCents,
			TotalCents:          l.TotalCents,
			CapacityRemaining:   l.CapacityRemaining,
			LinkedReservationID: l.LinkedReservationID,
		})
	}
	linesRaw, err := json.Marshal(lines)
	if err != nil {
		return ReservationRow{}, fmt.Errorf("encode lines: %w", err)
	}

	var detailRaw []byte
	if d := res.PaymentDetail(); d != nil {
		if detailRaw, err = json.Marshal(detailToJSON(*d)); err != nil {
			return ReservationRow{}, fmt.Errorf("encode payment detail: %w", err)
		}
	}

	var holdRaw []byte
	if h := res.CapacityHold(); h != nil {
		if holdRaw, err = json.Marshal(holdToJSON(*h)); err != nil {
			return ReservationRow{}, fmt.Errorf("encode capacity hold: %w", err)
		}
	}

	p := res.Pricing()
	return ReservationRow{
		ID:               res.ID(),
		ListingID:        res.ListingID(),
		BuyerID:          res.BuyerID(),
		BuyerContact:     res.BuyerContact(),
		ServiceDate:      res.ServiceDate().String(),
		Lines:            linesRaw,
		GrossCents:       p.GrossCents,
		DiscountCents:    p.DiscountCents,
		NetCents:         p.NetCents,
		CommissionCents:  p.CommissionCents,
		CouponID:         pgconv.UUIDPtrToPgtype(res.CouponID()),
		CouponCode:       pgconv.StringPtrToPgtype(res.CouponCode()),
		PaymentMethod:    res.PaymentMethod().String(),
		Status:           res.Status().String(),
		GatewayPaymentID: pgconv.StringPtrToPgtype(res.GatewayPaymentID()),
		InstrumentRef:    pgconv.StringPtrToPgtype(res.InstrumentRef()),
		PaymentDetail:    detailRaw,
		CapacityHold:     holdRaw,
		HoldExpiresAt:    pgconv.TimePtrToPgtype(res.HoldExpiresAt()),
		ChargeAttempts:   int32(res.ChargeAttempts()),
		FailureReason:    pgconv.StringPtrToPgtype(res.FailureReason()),
		Version:          int32(res.Version()),
		CreatedAt:        res.CreatedAt(),
		UpdatedAt:        res.UpdatedAt(),
	}, nil
}

func RowToReservation(row ReservationRow) (*reservation.Reservation, error) {
	date, err := listing.ParseServiceDate(row.ServiceDate)
	if err != nil {
		return nil, err
	}
	status, err := reservation.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	method, err := payment.ParseMethod(row.PaymentMethod)
	if err != nil {
		return nil, err
	}

	lines, err := DecodeLines(row.Lines)
	if err != nil {
		return nil, err
	}
	domainLines := make([]reservation.Line, 0, len(lines))
	for _, l := range lines {
		domainLines = append(domainLines, reservation.Line{
			TicketTypeID:        l.TicketTypeID,
			Name:                l.Name,
			Category:            listing.Category(l.Category),
			Quantity:            l.Quantity,
			UnitPriceCents:      l.UnitPriceCents,
			TotalCents:          l.TotalCents,
			CapacityRemaining:   l.CapacityRemaining,
			LinkedReservationID: l.LinkedReservationID,
		})
	}

	var detail *payment.Detail
	if len(row.PaymentDetail) > 0 {
		var dj DetailJSON
		if err := json.Unmarshal(row.PaymentDetail, &dj); err != nil {
			return nil, fmt.Errorf("decode payment detail: %w", err)
		}
		d := DetailFromJSON(dj)
		detail = &d
	}

	var hold *reservation.CapacityHold
	if len(row.CapacityHold) > 0 {
		var hj holdJSON
		if err := json.Unmarshal(row.CapacityHold, &hj); err != nil {
			return nil, fmt.Errorf("decode capacity hold: %w", err)
		}
		h := holdFromJSON(hj)
		hold = &h
	}

	return reservation.ReconstructReservation(reservation.ReconstructParams{
		ID:           row.ID,
		ListingID:    row.ListingID,
		BuyerID:      row.BuyerID,
		BuyerContact: row.BuyerContact,
		ServiceDate:  date,
		Lines:        domainLines,
		Pricing: reservation.Pricing{
			GrossCents:      row.GrossCents,
			DiscountCents:   row.DiscountCents,
			NetCents:        row.NetCents,
			CommissionCents: row.CommissionCents,
		},
		CouponID:         pgconv.UUIDPtrFromPgtype(row.CouponID),
		CouponCode:       pgconv.StringPtrFromPgtype(row.CouponCode),
		PaymentMethod:    method,
		Status:           status,
		GatewayPaymentID: pgconv.StringPtrFromPgtype(row.GatewayPaymentID),
		InstrumentRef:    pgconv.StringPtrFromPgtype(row.InstrumentRef),
		PaymentDetail:    detail,
		CapacityHold:     hold,
		HoldExpiresAt:    pgconv.TimePtrFromPgtype(row.HoldExpiresAt),
		ChargeAttempts:   int(row.ChargeAttempts),
		FailureReason:    pgconv.StringPtrFromPgtype(row.FailureReason),
		Version:          int(row.Version),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}), nil
}

func DecodeLines(raw []byte) ([]LineJSON, error) {
	var lines []LineJSON
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode lines: %w", err)
	}
	return lines, nil
}

func detailToJSON(d payment.Detail) DetailJSON {
	dj := DetailJSON{DeclineReason: string(d.DeclineReason), Message: d.Message}
	if d.QRCode != nil {
		dj.QRPayload = d.QRCode.Payload
		dj.QRExpiresAt = d.QRCode.ExpiresAt
		dj.QRHostedURL = d.QRCode.HostedURL
	}
	return dj
}

func DetailFromJSON(dj DetailJSON) payment.Detail {
	d := payment.Detail{DeclineReason: payment.DeclineReason(dj.DeclineReason), Message: dj.Message}
	if dj.QRPayload != "" {
		d.QRCode = &payment.QRCode{Payload: dj.QRPayload, ExpiresAt: dj.QRExpiresAt, HostedURL: dj.QRHostedURL}
	}
	return d
}

func holdToJSON(h reservation.CapacityHold) holdJSON {
	hj := holdJSON{Buckets: []bucketJSON{}, Stock: []stockJSON{}}
	for _, b := range h.Buckets {
		hj.Buckets = append(hj.Buckets, bucketJSON{Bucket: b.Bucket, Units: b.Units, Quota: b.Quota})
	}
	for _, s := range h.Stock {
		hj.Stock = append(hj.Stock, stockJSON{TicketTypeID: s.TicketTypeID, Units: s.Units, Stock: s.Stock})
	}
	return hj
}

func holdFromJSON(hj holdJSON) reservation.CapacityHold {
	var h reservation.CapacityHold
	for _, b := range hj.Buckets {
		h.Buckets = append(h.Buckets, reservation.BucketClaim{Bucket: b.Bucket, Units: b.Units, Quota: b.Quota})
	}
	for _, s := range hj.Stock {
		h.Stock = append(h.Stock, reservation.StockClaim{TicketTypeID: s.TicketTypeID, Units: s.Units, Stock: s.Stock})
	}
	return h
}
