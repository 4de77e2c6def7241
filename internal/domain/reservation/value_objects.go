package reservation

import (
	"errors"
	"sort"

	"booking-checkout/internal/domain/listing"

	"github.com/google/uuid"
)

var ErrCapacityExhausted = errors.New("capacity exhausted")

// Line is a priced cart line frozen at creation. CapacityRemaining is the
// remaining capacity seen when the reservation was created, for low-stock UI.
type Line struct {
	TicketTypeID        uuid.UUID
	Name                string
	Category            listing.Category
	Quantity            int
	UnitPriceCents      int64
	TotalCents          int64
	CapacityRemaining   *int
	LinkedReservationID *uuid.UUID
}

type Pricing struct {
	GrossCents      int64
	DiscountCents   int64
	NetCents        int64
	CommissionCents int64
}

const BucketTotal = "all"

func CategoryBucket(c listing.Category) string {
	return "category:" + c.String()
}

// BucketClaim is a number of units taken from one (listing, date, bucket) counter.
type BucketClaim struct {
	Bucket string
	Units  int
	Quota  int
}

type StockClaim struct {
	TicketTypeID uuid.UUID
	Units        int
	Stock        int
}

// CapacityHold records exactly what a reservation reserved so that a release
// gives back the same units.
type CapacityHold struct {
	Buckets []BucketClaim
	Stock   []StockClaim
}

func (h CapacityHold) IsEmpty() bool {
	return len(h.Buckets) == 0 && len(h.Stock) == 0
}

func (h CapacityHold) TotalUnits() int {
	for _, b := range h.Buckets {
		if b.Bucket == BucketTotal {
			return b.Units
		}
	}
	return 0
}

// PlanCapacityHold derives the claims for a set of lines. Claims are sorted so
// concurrent reservers lock counters in the same order.
func PlanCapacityHold(l *listing.Listing, lines []Line) CapacityHold {
	rule := l.Capacity()
	var hold CapacityHold

	total := 0
	byCategory := make(map[listing.Category]int)
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if line.Category.ConsumesQuota() {
			total += line.Quantity
			byCategory[line.Category] += line.Quantity
			continue
		}
		tt, ok := l.TicketType(line.TicketTypeID)
		if ok && tt.HasFixedStock() {
			hold.Stock = append(hold.Stock, StockClaim{
				TicketTypeID: line.TicketTypeID,
				Units:        line.Quantity,
				Stock:        tt.Stock(),
			})
		}
	}

	if total > 0 {
		hold.Buckets = append(hold.Buckets, BucketClaim{Bucket: BucketTotal, Units: total, Quota: rule.DailyQuota})
	}
	for cat, units := range byCategory {
		if quota, ok := rule.CategoryQuota(cat); ok {
			hold.Buckets = append(hold.Buckets, BucketClaim{Bucket: CategoryBucket(cat), Units: units, Quota: quota})
		}
	}

	sort.Slice(hold.Buckets, func(i, j int) bool { return hold.Buckets[i].Bucket < hold.Buckets[j].Bucket })
	sort.Slice(hold.Stock, func(i, j int) bool {
		return hold.Stock[i].TicketTypeID.String() < hold.Stock[j].TicketTypeID.String()
	})
	return hold
}
