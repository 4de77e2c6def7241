package readstore

import (
	"context"
	"encoding/json"
	"time"

	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/infra/repository/converter"
	"booking-checkout/internal/pkg/pgconv"
	"booking-checkout/internal/usecase/queries"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ReservationReadStore struct {
	db bun.IDB
}

func NewReservationReadStore(db bun.IDB) *ReservationReadStore {
	return &ReservationReadStore{db: db}
}

func (s *ReservationReadStore) FindView(ctx context.Context, id uuid.UUID) (*queries.ReservationView, error) {
	var m reservationModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.WrapRepoErr("reservation not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find reservation by ID", err)
	}

	names, err := s.listingNames(ctx, []uuid.UUID{m.ListingID})
	if err != nil {
		return nil, err
	}

	view, err := toReservationView(m, names[m.ListingID])
	if err != nil {
		return nil, infra.WrapRepoErr("failed to convert reservation row", err)
	}
	return view, nil
}

func (s *ReservationReadStore) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*queries.ReservationListItem, error) {
	var rows []reservationModel
	err := s.db.NewSelect().Model(&rows).
		Column("id", "listing_id", "service_date", "status", "net_cents", "created_at").
		Where("buyer_id = ?", buyerID).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list reservations by buyer", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ListingID)
	}
	names, err := s.listingNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]*queries.ReservationListItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, &queries.ReservationListItem{
			ID:          r.ID,
			ListingID:   r.ListingID,
			ListingName: names[r.ListingID],
			ServiceDate: r.ServiceDate,
			Status:      r.Status,
			NetCents:    r.NetCents,
			CreatedAt:   r.CreatedAt,
		})
	}
	return items, nil
}

// LinkedReservations returns whatever subset of ids exists; callers treat a
// missing id as an invalid link.
func (s *ReservationReadStore) LinkedReservations(ctx context.Context, ids []uuid.UUID) ([]shared.LinkedReservationSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []reservationModel
	err := s.db.NewSelect().Model(&rows).
		Column("id", "listing_id", "buyer_id", "service_date", "status").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to find linked reservations", err)
	}

	out := make([]shared.LinkedReservationSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, shared.LinkedReservationSnapshot{
			ID:          r.ID,
			ListingID:   r.ListingID,
			BuyerID:     r.BuyerID,
			ServiceDate: r.ServiceDate,
			Status:      r.Status,
		})
	}
	return out, nil
}

// ExpiredHolds lists waiting reservations whose hold deadline has passed.
func (s *ReservationReadStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.NewSelect().Model((*reservationModel)(nil)).
		Column("id").
		Where("status = ?", reservation.StatusWaitingPayment.String()).
		Where("hold_expires_at IS NOT NULL").
		Where("hold_expires_at <= ?", now).
		Order("hold_expires_at ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list expired holds", err)
	}
	return ids, nil
}

// PendingAsync lists held reservations untouched since updatedBefore: QR
// payments awaiting confirmation and charges that hit an unavailable gateway.
func (s *ReservationReadStore) PendingAsync(ctx context.Context, updatedBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.NewSelect().Model((*reservationModel)(nil)).
		Column("id").
		Where("status = ?", reservation.StatusWaitingPayment.String()).
		Where("capacity_hold IS NOT NULL").
		Where("updated_at <= ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list pending reservations", err)
	}
	return ids, nil
}

func (s *ReservationReadStore) listingNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var ls []listingModel
	if err := s.db.NewSelect().Model(&ls).Column("id", "name").Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, infra.WrapRepoErr("failed to find listing names", err)
	}
	for _, l := range ls {
		names[l.ID] = l.Name
	}
	return names, nil
}

func toReservationView(m reservationModel, listingName string) (*queries.ReservationView, error) {
	lines, err := converter.DecodeLines([]byte(m.Lines))
	if err != nil {
		return nil, err
	}

	view := &queries.ReservationView{
		ID:               m.ID,
		ListingID:        m.ListingID,
		ListingName:      listingName,
		BuyerID:          m.BuyerID,
		ServiceDate:      m.ServiceDate,
		Status:           m.Status,
		PaymentMethod:    m.PaymentMethod,
		Lines:            make([]queries.LineView, 0, len(lines)),
		GrossCents:       m.GrossCents,
		DiscountCents:    m.DiscountCents,
		NetCents:         m.NetCents,
		CommissionCents:  m.CommissionCents,
		CouponCode:       m.CouponCode,
		GatewayPaymentID: m.GatewayPaymentID,
		FailureReason:    m.FailureReason,
		HoldExpiresAt:    m.HoldExpiresAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	for _, l := range lines {
		view.Lines = append(view.Lines, queries.LineView{
			TicketTypeID:        l.TicketTypeID,
			Name:                l.Name,
			Category:            l.Category,
			Quantity:            l.Quantity,
			UnitPriceCents:      l.UnitPriceCents,
			TotalCents:          l.TotalCents,
			LinkedReservationID: l.LinkedReservationID,
		})
	}

	if m.PaymentDetail != nil && *m.PaymentDetail != "" {
		var dj converter.DetailJSON
		if err := json.Unmarshal([]byte(*m.PaymentDetail), &dj); err != nil {
			return nil, err
		}
		d := converter.DetailFromJSON(dj)
		view.DeclineReason = string(d.DeclineReason)
		// a QR payload is only useful while the payment can still complete
		if d.QRCode != nil && m.Status == reservation.StatusWaitingPayment.String() {
			view.QRCode = &queries.QRCodeView{
				Payload:   d.QRCode.Payload,
				ExpiresAt: d.QRCode.ExpiresAt,
				HostedURL: d.QRCode.HostedURL,
			}
		}
	}
	return view, nil
}
