package commands

import (
	"time"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/coupon"
	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

func listingFromSnapshot(s *shared.ListingSnapshot) (*listing.Listing, error) {
	types := make([]*listing.TicketType, 0, len(s.TicketTypes))
	for _, tts := range s.TicketTypes {
		category, err := listing.ParseCategory(tts.Category)
		if err != nil {
			return nil, errs.Wrapf(err, "ticket type %s", tts.ID)
		}
		var weekday map[time.Weekday]int64
		if len(tts.WeekdayPrices) > 0 {
			weekday = make(map[time.Weekday]int64, len(tts.WeekdayPrices))
			for d, p := range tts.WeekdayPrices {
				weekday[time.Weekday(d)] = p
			}
		}
		tt, err := listing.NewTicketType(listing.TicketTypeParams{
			ID:               tts.ID,
			ListingID:        s.ID,
			Name:             tts.Name,
			Category:         category,
			PriceCents:       tts.PriceCents,
			WeekdayPrices:    weekday,
			DatePrices:       tts.DatePrices,
			DateAvailability: tts.DateAvailability,
			Stock:            tts.Stock,
		})
		if err != nil {
			return nil, errs.Wrapf(err, "ticket type %s", tts.ID)
		}
		types = append(types, tt)
	}

	quotas := make(map[listing.Category]int, len(s.CategoryQuotas))
	for c, q := range s.CategoryQuotas {
		category, err := listing.ParseCategory(c)
		if err != nil {
			return nil, errs.Wrapf(err, "category quota %q", c)
		}
		quotas[category] = q
	}

	return listing.NewListing(
		s.ID,
		s.Name,
		listing.Owner{ID: s.OwnerID, Contact: s.OwnerContact, MerchantAccountID: s.MerchantAccountID},
		s.CommissionBps,
		listing.CapacityRule{DailyQuota: s.DailyQuota, CategoryQuotas: quotas},
		types,
	)
}

func couponFromSnapshot(s *shared.CouponSnapshot) (*coupon.Coupon, error) {
	return coupon.NewCoupon(coupon.Params{
		ID:          s.ID,
		ListingID:   s.ListingID,
		Code:        s.Code,
		Kind:        coupon.Kind(s.Kind),
		PercentBps:  s.PercentBps,
		AmountCents: s.AmountCents,
		ExpiresAt:   s.ExpiresAt,
		UsageLimit:  s.UsageLimit,
		UsageCount:  s.UsageCount,
		Active:      s.Active,
	})
}

// capacitySnapshot turns raw ledger usage into remaining units. Buckets that
// were never touched count as fully available.
func capacitySnapshot(l *listing.Listing, usage *shared.CapacityUsage, linked []shared.LinkedReservationSnapshot) cart.Snapshot {
	rule := l.Capacity()
	snap := cart.Snapshot{
		RemainingTotal:      rule.DailyQuota - usage.ConsumedByBucket[reservation.BucketTotal],
		RemainingByCategory: make(map[listing.Category]int, len(rule.CategoryQuotas)),
		RemainingStock:      make(map[uuid.UUID]int),
		LinkedReservations:  make(map[uuid.UUID]cart.LinkedReservation, len(linked)),
	}
	for c, q := range rule.CategoryQuotas {
		snap.RemainingByCategory[c] = q - usage.ConsumedByBucket[reservation.CategoryBucket(c)]
	}
	for _, tt := range l.TicketTypes() {
		if tt.HasFixedStock() {
			snap.RemainingStock[tt.ID()] = tt.Stock() - usage.ReservedByStock[tt.ID()]
		}
	}
	for _, lr := range linked {
		date, err := listing.ParseServiceDate(lr.ServiceDate)
		if err != nil {
			continue
		}
		snap.LinkedReservations[lr.ID] = cart.LinkedReservation{
			ID:        lr.ID,
			ListingID: lr.ListingID,
			BuyerID:   lr.BuyerID,
			Date:      date,
			Approved:  lr.Status == reservation.StatusApproved.String(),
		}
	}
	return snap
}

func stockedTicketTypes(l *listing.Listing) []uuid.UUID {
	var ids []uuid.UUID
	for _, tt := range l.TicketTypes() {
		if tt.HasFixedStock() {
			ids = append(ids, tt.ID())
		}
	}
	return ids
}

func linkedIDs(items []cart.Item) []uuid.UUID {
	var ids []uuid.UUID
	for _, it := range items {
		if it.LinkedReservationID != nil {
			ids = append(ids, *it.LinkedReservationID)
		}
	}
	return ids
}
