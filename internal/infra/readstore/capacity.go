package readstore

import (
	"context"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CapacityReadStore reads ledger counters without locking them. The numbers
// feed the advisory cart check only; Reserve re-checks under the update.
type CapacityReadStore struct {
	db bun.IDB
}

func NewCapacityReadStore(db bun.IDB) *CapacityReadStore {
	return &CapacityReadStore{db: db}
}

func (s *CapacityReadStore) Usage(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, stockIDs []uuid.UUID) (*shared.CapacityUsage, error) {
	usage := &shared.CapacityUsage{
		ConsumedByBucket: map[string]int{},
		ReservedByStock:  map[uuid.UUID]int{},
	}

	var buckets []capacityLedgerModel
	err := s.db.NewSelect().Model(&buckets).
		Where("listing_id = ?", listingID).
		Where("service_date = ?", date.String()).
		Scan(ctx)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to read capacity ledger", err)
	}
	for _, b := range buckets {
		usage.ConsumedByBucket[b.Bucket] = b.Consumed
	}

	if len(stockIDs) == 0 {
		return usage, nil
	}
	var stock []inventoryLedgerModel
	if err := s.db.NewSelect().Model(&stock).Where("ticket_type_id IN (?)", bun.In(stockIDs)).Scan(ctx); err != nil {
		return nil, infra.WrapRepoErr("failed to read inventory ledger", err)
	}
	for _, st := range stock {
		usage.ReservedByStock[st.TicketTypeID] = st.Reserved
	}
	return usage, nil
}
