package listing

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNegativePrice    = errors.New("ticket price cannot be negative")
	ErrEmptyTicketName  = errors.New("ticket name cannot be empty")
	ErrInvalidStock     = errors.New("fixed stock cannot be negative")
	ErrStockNotPhysical = errors.New("fixed stock is only allowed for physical goods")
)

type TicketType struct {
	id               uuid.UUID
	listingID        uuid.UUID
	name             string
	category         Category
	priceCents       int64
	weekdayPrices    map[time.Weekday]int64
	datePrices       map[string]int64
	dateAvailability map[string]bool
	stock            *int
}

type TicketTypeParams struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	Name             string
	Category         Category
	PriceCents       int64
	WeekdayPrices    map[time.Weekday]int64
	DatePrices       map[string]int64
	DateAvailability map[string]bool
	Stock            *int
}

func NewTicketType(p TicketTypeParams) (*TicketType, error) {
	if !p.Category.IsValid() {
		return nil, ErrInvalidCategory
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, ErrEmptyTicketName
	}
	if p.PriceCents < 0 {
		return nil, ErrNegativePrice
	}
	for _, v := range p.WeekdayPrices {
		if v < 0 {
			return nil, ErrNegativePrice
		}
	}
	for _, v := range p.DatePrices {
		if v < 0 {
			return nil, ErrNegativePrice
		}
	}
	if p.Stock != nil {
		if *p.Stock < 0 {
			return nil, ErrInvalidStock
		}
		if p.Category != CategoryPhysicalGood {
			return nil, ErrStockNotPhysical
		}
	}

	return &TicketType{
		id:               p.ID,
		listingID:        p.ListingID,
		name:             name,
		category:         p.Category,
		priceCents:       p.PriceCents,
		weekdayPrices:    copyMap(p.WeekdayPrices),
		datePrices:       copyMap(p.DatePrices),
		dateAvailability: copyMap(p.DateAvailability),
		stock:            p.Stock,
	}, nil
}

func (t *TicketType) ID() uuid.UUID        { return t.id }
func (t *TicketType) ListingID() uuid.UUID { return t.listingID }
func (t *TicketType) Name() string         { return t.name }
func (t *TicketType) Category() Category   { return t.category }
func (t *TicketType) BasePriceCents() int64 {
	return t.priceCents
}

func (t *TicketType) WeekdayPrice(w time.Weekday) (int64, bool) {
	v, ok := t.weekdayPrices[w]
	return v, ok
}

func (t *TicketType) DatePrice(d ServiceDate) (int64, bool) {
	v, ok := t.datePrices[d.String()]
	return v, ok
}

// IsAvailableOn defaults to true unless a date override switches it off.
func (t *TicketType) IsAvailableOn(d ServiceDate) bool {
	if v, ok := t.dateAvailability[d.String()]; ok {
		return v
	}
	return true
}

func (t *TicketType) HasFixedStock() bool {
	return t.stock != nil
}

func (t *TicketType) Stock() int {
	if t.stock == nil {
		return 0
	}
	return *t.stock
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
