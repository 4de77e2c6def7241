package readstore

import (
	"context"

	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/pgconv"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ListingReadStore struct {
	db bun.IDB
}

func NewListingReadStore(db bun.IDB) *ListingReadStore {
	return &ListingReadStore{db: db}
}

func (s *ListingReadStore) FindByID(ctx context.Context, id uuid.UUID) (*shared.ListingSnapshot, error) {
	var l listingModel
	if err := s.db.NewSelect().Model(&l).Where("id = ?", id).Scan(ctx); err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.WrapRepoErr("listing not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find listing by ID", err)
	}

	var tts []ticketTypeModel
	if err := s.db.NewSelect().Model(&tts).Where("listing_id = ?", id).Order("id ASC").Scan(ctx); err != nil {
		return nil, infra.WrapRepoErr("failed to find ticket types", err)
	}

	snap := &shared.ListingSnapshot{
		ID:                l.ID,
		Name:              l.Name,
		OwnerID:           l.OwnerID,
		OwnerContact:      l.OwnerContact,
		MerchantAccountID: l.MerchantAccountID,
		CommissionBps:     l.CommissionBps,
		DailyQuota:        l.DailyQuota,
		CategoryQuotas:    l.CategoryQuotas,
		TicketTypes:       make([]shared.TicketTypeSnapshot, 0, len(tts)),
	}
	for _, tt := range tts {
		snap.TicketTypes = append(snap.TicketTypes, shared.TicketTypeSnapshot{
			ID:               tt.ID,
			Name:             tt.Name,
			Category:         tt.Category,
			PriceCents:       tt.PriceCents,
			WeekdayPrices:    tt.WeekdayPrices,
			DatePrices:       tt.DatePrices,
			DateAvailability: tt.DateAvailability,
			Stock:            tt.Stock,
		})
	}
	return snap, nil
}
