package shared

import (
	"time"

	"github.com/google/uuid"
)

const (
	IdempotencyProcessing = "processing"
	IdempotencyCompleted  = "completed"
)

const (
	JobQueued = "queued"
	JobSent   = "sent"
	JobFailed = "failed"
)

// ListingSnapshot is the write side's view of a listing and its ticket types.
type ListingSnapshot struct {
	ID                uuid.UUID
	Name              string
	OwnerID           uuid.UUID
	OwnerContact      string
	MerchantAccountID string
	CommissionBps     int64
	DailyQuota        int
	CategoryQuotas    map[string]int
	TicketTypes       []TicketTypeSnapshot
}

type TicketTypeSnapshot struct {
	ID               uuid.UUID
	Name             string
	Category         string
	PriceCents       int64
	WeekdayPrices    map[int]int64
	DatePrices       map[string]int64
	DateAvailability map[string]bool
	Stock            *int
}

type CouponSnapshot struct {
	ID          uuid.UUID
	ListingID   uuid.UUID
	Code        string
	Kind        string
	PercentBps  int64
	AmountCents int64
	ExpiresAt   *time.Time
	UsageLimit  *int
	UsageCount  int
	Active      bool
}

// CapacityUsage holds consumed units per ledger bucket and reserved units per
// stocked ticket type. Missing keys mean nothing is consumed yet.
type CapacityUsage struct {
	ConsumedByBucket map[string]int
	ReservedByStock  map[uuid.UUID]int
}

type LinkedReservationSnapshot struct {
	ID          uuid.UUID
	ListingID   uuid.UUID
	BuyerID     uuid.UUID
	ServiceDate string
	Status      string
}

type IdempotencyRecord struct {
	Key                 uuid.UUID
	BuyerID             uuid.UUID
	Status              string
	RequestHash         string
	ResultReservationID *uuid.UUID
	ResponseStatus      *int
	ExpiresAt           time.Time
}

type NewNotificationJob struct {
	Kind    string
	Topic   string
	Key     string
	Payload []byte
	RunAt   time.Time
}

type NotificationJob struct {
	ID       uuid.UUID
	Kind     string
	Topic    string
	Key      string
	Payload  []byte
	Attempts int
}
