//go:build unit || e2e

package builder

import (
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

// ListingBuilder builds a listing with one ticket type per category. The
// guardian ticket costs 50.00 with a 40.00 Tuesday override.
type ListingBuilder struct {
	ID                uuid.UUID
	Name              string
	OwnerID           uuid.UUID
	OwnerContact      string
	MerchantAccountID string
	CommissionBps     int64
	DailyQuota        int
	CategoryQuotas    map[listing.Category]int

	GuardianID      uuid.UUID
	GuardianPrice   int64
	GuardianWeekday map[time.Weekday]int64
	GuardianDates   map[string]int64

	DependentID    uuid.UUID
	DependentPrice int64

	GoodID    uuid.UUID
	GoodPrice int64
	GoodStock *int

	Unavailable map[string]bool
}

func NewListingBuilder() *ListingBuilder {
	stock := 10
	return &ListingBuilder{
		ID:                uuid.New(),
		Name:              "Treetop Adventure Park",
		OwnerID:           uuid.New(),
		OwnerContact:      "owner@example.com",
		MerchantAccountID: "acct_owner123",
		CommissionBps:     1000,
		DailyQuota:        5,
		GuardianID:        uuid.New(),
		GuardianPrice:     5000,
		GuardianWeekday:   map[time.Weekday]int64{time.Tuesday: 4000},
		GuardianDates:     map[string]int64{},
		DependentID:       uuid.New(),
		DependentPrice:    2500,
		GoodID:            uuid.New(),
		GoodPrice:         1500,
		GoodStock:         &stock,
		Unavailable:       map[string]bool{},
	}
}

func (b *ListingBuilder) With(mutate func(*ListingBuilder)) *ListingBuilder {
	mutate(b)
	return b
}

func (b *ListingBuilder) Owner() listing.Owner {
	return listing.Owner{ID: b.OwnerID, Contact: b.OwnerContact, MerchantAccountID: b.MerchantAccountID}
}

func (b *ListingBuilder) TicketTypeParams() []listing.TicketTypeParams {
	return []listing.TicketTypeParams{
		{
			ID:            b.GuardianID,
			ListingID:     b.ID,
			Name:          "Adult",
			Category:      listing.CategoryGuardian,
			PriceCents:    b.GuardianPrice,
			WeekdayPrices: b.GuardianWeekday,
			DatePrices:    b.GuardianDates,
		},
		{
			ID:               b.DependentID,
			ListingID:        b.ID,
			Name:             "Child",
			Category:         listing.CategoryDependent,
			PriceCents:       b.DependentPrice,
			DateAvailability: b.Unavailable,
		},
		{
			ID:         b.GoodID,
			ListingID:  b.ID,
			Name:       "Souvenir T-shirt",
			Category:   listing.CategoryPhysicalGood,
			PriceCents: b.GoodPrice,
			Stock:      b.GoodStock,
		},
	}
}

func (b *ListingBuilder) BuildDomain() (*listing.Listing, error) {
	var types []*listing.TicketType
	for _, p := range b.TicketTypeParams() {
		tt, err := listing.NewTicketType(p)
		if err != nil {
			return nil, err
		}
		types = append(types, tt)
	}
	return listing.NewListing(
		b.ID,
		b.Name,
		b.Owner(),
		b.CommissionBps,
		listing.CapacityRule{DailyQuota: b.DailyQuota, CategoryQuotas: b.CategoryQuotas},
		types,
	)
}

// Snapshot is the write-side read model of the same listing.
func (b *ListingBuilder) Snapshot() *shared.ListingSnapshot {
	snap := &shared.ListingSnapshot{
		ID:                b.ID,
		Name:              b.Name,
		OwnerID:           b.OwnerID,
		OwnerContact:      b.OwnerContact,
		MerchantAccountID: b.MerchantAccountID,
		CommissionBps:     b.CommissionBps,
		DailyQuota:        b.DailyQuota,
		CategoryQuotas:    map[string]int{},
	}
	for c, q := range b.CategoryQuotas {
		snap.CategoryQuotas[c.String()] = q
	}
	for _, p := range b.TicketTypeParams() {
		weekday := map[int]int64{}
		for d, price := range p.WeekdayPrices {
			weekday[int(d)] = price
		}
		snap.TicketTypes = append(snap.TicketTypes, shared.TicketTypeSnapshot{
			ID:               p.ID,
			Name:             p.Name,
			Category:         p.Category.String(),
			PriceCents:       p.PriceCents,
			WeekdayPrices:    weekday,
			DatePrices:       p.DatePrices,
			DateAvailability: p.DateAvailability,
			Stock:            p.Stock,
		})
	}
	return snap
}

// Tuesday returns a Tuesday far enough ahead to never be in the past.
func Tuesday() listing.ServiceDate {
	return listing.NewServiceDate(2030, time.January, 1)
}

func Wednesday() listing.ServiceDate {
	return listing.NewServiceDate(2030, time.January, 2)
}
