package readstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type listingModel struct {
	bun.BaseModel `bun:"table:listings"`

	ID                uuid.UUID      `bun:"id,pk,type:uuid"`
	Name              string         `bun:"name,notnull"`
	OwnerID           uuid.UUID      `bun:"owner_id,type:uuid,notnull"`
	OwnerContact      string         `bun:"owner_contact,notnull"`
	MerchantAccountID string         `bun:"merchant_account_id,notnull"`
	CommissionBps     int64          `bun:"commission_bps,notnull"`
	DailyQuota        int            `bun:"daily_quota,notnull"`
	CategoryQuotas    map[string]int `bun:"category_quotas"`
	CreatedAt         time.Time      `bun:"created_at,notnull,default:current_timestamp"`
}

type ticketTypeModel struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID               uuid.UUID        `bun:"id,pk,type:uuid"`
	ListingID        uuid.UUID        `bun:"listing_id,type:uuid,notnull"`
	Name             string           `bun:"name,notnull"`
	Category         string           `bun:"category,notnull"`
	PriceCents       int64            `bun:"price_cents,notnull"`
	WeekdayPrices    map[int]int64    `bun:"weekday_prices"`
	DatePrices       map[string]int64 `bun:"date_prices"`
	DateAvailability map[string]bool  `bun:"date_availability"`
	Stock            *int             `bun:"stock"`
}

type couponModel struct {
	bun.BaseModel `bun:"table:coupons"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	ListingID   uuid.UUID  `bun:"listing_id,type:uuid,notnull"`
	Code        string     `bun:"code,notnull"`
	Kind        string     `bun:"kind,notnull"`
	PercentBps  int64      `bun:"percent_bps,notnull"`
	AmountCents int64      `bun:"amount_cents,notnull"`
	ExpiresAt   *time.Time `bun:"expires_at"`
	UsageLimit  *int       `bun:"usage_limit"`
	UsageCount  int        `bun:"usage_count,notnull"`
	Active      bool       `bun:"active,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

type capacityLedgerModel struct {
	bun.BaseModel `bun:"table:capacity_ledger"`

	ListingID   uuid.UUID `bun:"listing_id,pk,type:uuid"`
	ServiceDate string    `bun:"service_date,pk"`
	Bucket      string    `bun:"bucket,pk"`
	Consumed    int       `bun:"consumed,notnull"`
	Quota       int       `bun:"quota,notnull"`
	Version     int       `bun:"version,notnull"`
}

type inventoryLedgerModel struct {
	bun.BaseModel `bun:"table:inventory_ledger"`

	TicketTypeID uuid.UUID `bun:"ticket_type_id,pk,type:uuid"`
	Reserved     int       `bun:"reserved,notnull"`
	Stock        int       `bun:"stock,notnull"`
	Version      int       `bun:"version,notnull"`
}

// reservationModel keeps the jsonb columns raw; the shapes are owned by the
// write-side converter.
type reservationModel struct {
	bun.BaseModel `bun:"table:reservations"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid"`
	ListingID        uuid.UUID  `bun:"listing_id,type:uuid,notnull"`
	BuyerID          uuid.UUID  `bun:"buyer_id,type:uuid,notnull"`
	BuyerContact     string     `bun:"buyer_contact,notnull"`
	ServiceDate      string     `bun:"service_date,notnull"`
	Lines            string     `bun:"lines,notnull"`
	GrossCents       int64      `bun:"gross_cents,notnull"`
	DiscountCents    int64      `bun:"discount_cents,notnull"`
	NetCents         int64      `bun:"net_cents,notnull"`
	CommissionCents  int64      `bun:"commission_cents,notnull"`
	CouponID         *uuid.UUID `bun:"coupon_id,type:uuid"`
	CouponCode       *string    `bun:"coupon_code"`
	PaymentMethod    string     `bun:"payment_method,notnull"`
	Status           string     `bun:"status,notnull"`
	GatewayPaymentID *string    `bun:"gateway_payment_id"`
	InstrumentRef    *string    `bun:"instrument_ref"`
	PaymentDetail    *string    `bun:"payment_detail"`
	CapacityHold     *string    `bun:"capacity_hold"`
	HoldExpiresAt    *time.Time `bun:"hold_expires_at"`
	ChargeAttempts   int        `bun:"charge_attempts,notnull"`
	FailureReason    *string    `bun:"failure_reason"`
	Version          int        `bun:"version,notnull"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
}

type idempotencyKeyModel struct {
	bun.BaseModel `bun:"table:idempotency_keys"`

	Key                 uuid.UUID  `bun:"key,pk,type:uuid"`
	BuyerID             uuid.UUID  `bun:"buyer_id,pk,type:uuid"`
	Endpoint            string     `bun:"endpoint,notnull"`
	RequestHash         string     `bun:"request_hash,notnull"`
	Status              string     `bun:"status,notnull"`
	ResultReservationID *uuid.UUID `bun:"result_reservation_id,type:uuid"`
	ResponseStatus      *int       `bun:"response_status"`
	ExpiresAt           time.Time  `bun:"expires_at,notnull"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}
