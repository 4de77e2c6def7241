package listing

import (
	"errors"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrInvalidCommission = errors.New("commission rate must be between 0 and 10000 basis points")
	ErrInvalidQuota      = errors.New("daily quota cannot be negative")
	ErrMissingMerchant   = errors.New("listing owner has no connected merchant account")
	ErrForeignTicketType = errors.New("ticket type belongs to another listing")
)

const MaxBasisPoints = 10000

// Owner is the merchant that receives the split payment.
type Owner struct {
	ID                uuid.UUID
	Contact           string
	MerchantAccountID string
}

// CapacityRule caps non-physical units per service date. CategoryQuotas, when
// present, adds a tighter bucket for the named categories on top of DailyQuota.
type CapacityRule struct {
	DailyQuota     int
	CategoryQuotas map[Category]int
}

func (r CapacityRule) CategoryQuota(c Category) (int, bool) {
	q, ok := r.CategoryQuotas[c]
	return q, ok
}

type Listing struct {
	id            uuid.UUID
	name          string
	owner         Owner
	commissionBps int64
	capacity      CapacityRule
	ticketTypes   map[uuid.UUID]*TicketType
}

func NewListing(
	id uuid.UUID,
	name string,
	owner Owner,
	commissionBps int64,
	capacity CapacityRule,
	ticketTypes []*TicketType,
) (*Listing, error) {
	if commissionBps < 0 || commissionBps > MaxBasisPoints {
		return nil, ErrInvalidCommission
	}
	if capacity.DailyQuota < 0 {
		return nil, ErrInvalidQuota
	}
	for _, q := range capacity.CategoryQuotas {
		if q < 0 {
			return nil, ErrInvalidQuota
		}
	}
	if owner.MerchantAccountID == "" {
		return nil, ErrMissingMerchant
	}

	types := make(map[uuid.UUID]*TicketType, len(ticketTypes))
	for _, tt := range ticketTypes {
		if tt.ListingID() != id {
			return nil, ErrForeignTicketType
		}
		types[tt.ID()] = tt
	}

	return &Listing{
		id:            id,
		name:          name,
		owner:         owner,
		commissionBps: commissionBps,
		capacity:      capacity,
		ticketTypes:   types,
	}, nil
}

func (l *Listing) ID() uuid.UUID          { return l.id }
func (l *Listing) Name() string           { return l.name }
func (l *Listing) Owner() Owner           { return l.owner }
func (l *Listing) CommissionBps() int64   { return l.commissionBps }
func (l *Listing) Capacity() CapacityRule { return l.capacity }
func (l *Listing) TicketTypeCount() int   { return len(l.ticketTypes) }

func (l *Listing) TicketType(id uuid.UUID) (*TicketType, bool) {
	tt, ok := l.ticketTypes[id]
	return tt, ok
}

// TicketTypes returns ticket types ordered by id for deterministic iteration.
func (l *Listing) TicketTypes() []*TicketType {
	out := make([]*TicketType, 0, len(l.ticketTypes))
	for _, tt := range l.ticketTypes {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}
