package shared

import (
	"context"
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/reservation"

	"github.com/google/uuid"
)

type UnitOfWork interface {
	// Within runs fn in one read-committed transaction, retrying serialization failures and deadlocks
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// CommandReads: snapshot reads for validation outside transactions
	CommandReads() CommandReads
}

// Tx exposes repositories bound to a single transaction.
type Tx interface {
	Reservations() ReservationRepository
	Capacity() CapacityLedger
	Coupons() CouponRepository
	Idempotency() IdempotencyRepository
	Notifications() NotificationRepository
}

type CommandReads interface {
	ListingByID(ctx context.Context, id uuid.UUID) (*ListingSnapshot, error)
	CouponByCode(ctx context.Context, listingID uuid.UUID, code string) (*CouponSnapshot, error)
	CapacityUsage(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, stockIDs []uuid.UUID) (*CapacityUsage, error)
	LinkedReservations(ctx context.Context, ids []uuid.UUID) ([]LinkedReservationSnapshot, error)
	IdempotencyByKey(ctx context.Context, key, buyerID uuid.UUID) (*IdempotencyRecord, error)
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	PendingAsync(ctx context.Context, updatedBefore time.Time, limit int) ([]uuid.UUID, error)
}

// ReservationRepository persists the aggregate. Update is a compare-and-swap
// on version and fails with a CONFLICT repository error when the row moved.
type ReservationRepository interface {
	Create(ctx context.Context, res *reservation.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error)
	FindByGatewayPaymentID(ctx context.Context, externalID string) (*reservation.Reservation, error)
	Update(ctx context.Context, res *reservation.Reservation) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CapacityLedger guards the per-date quota and per-ticket-type stock.
// Reserve fails with reservation.ErrCapacityExhausted when any claim does not fit.
type CapacityLedger interface {
	Reserve(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, hold reservation.CapacityHold) error
	Release(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, hold reservation.CapacityHold) error
}

type CouponRepository interface {
	// IncrementUsage returns false when the usage limit was already reached.
	IncrementUsage(ctx context.Context, couponID uuid.UUID) (bool, error)
}

type IdempotencyRepository interface {
	TryInsert(ctx context.Context, key, buyerID uuid.UUID, endpoint, requestHash string, expiresAt time.Time) (bool, error)
	ClaimExpired(ctx context.Context, key, buyerID uuid.UUID, requestHash string, now, expiresAt time.Time) (bool, error)
	Complete(ctx context.Context, key, buyerID, reservationID uuid.UUID, responseStatus int) error
	Delete(ctx context.Context, key, buyerID uuid.UUID) error
}

type NotificationRepository interface {
	CreateJob(ctx context.Context, job NewNotificationJob) error
	FetchPending(ctx context.Context, now time.Time, limit int) ([]NotificationJob, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRunAt time.Time, terminal bool) error
}
