package uow

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/infra/readstore"
	"booking-checkout/internal/infra/repository"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
)

const (
	pgErrCodeSerializationFailure = "40001"
	pgErrCodeDeadlockDetected     = "40P01"
)

var (
	errTransactionBegin   = errs.New("failed to begin transaction")
	errTransactionCommit  = errs.New("failed to commit transaction")
	errMaxRetriesExceeded = errs.New("transaction failed after max retries")
)

// PostgresUoW runs writes on pgx transactions and snapshot reads on bun.
type PostgresUoW struct {
	pool  *pgxpool.Pool
	reads *bun.DB
}

func NewPostgresUoW(pool *pgxpool.Pool, reads *bun.DB) *PostgresUoW {
	return &PostgresUoW{
		pool:  pool,
		reads: reads,
	}
}

// ReadCommitted prevents dirty reads while allowing concurrent writes
func (u *PostgresUoW) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	return u.runInTxWithOptions(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (u *PostgresUoW) CommandReads() shared.CommandReads {
	return &commandReads{db: u.reads}
}

// ReservationViews backs the query side with the same read connection.
func (u *PostgresUoW) ReservationViews() *readstore.ReservationReadStore {
	return readstore.NewReservationReadStore(u.reads)
}

// Avoids defer accumulation in retry loops to prevent connection leaks
func (u *PostgresUoW) runInTxWithOptions(ctx context.Context, options pgx.TxOptions, fn func(ctx context.Context, tx shared.Tx) error) error {
	const maxRetries = 3
	base := 100 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		pgxTx, err := u.pool.BeginTx(ctx, options)
		if err != nil {
			return errs.Mark(err, errTransactionBegin)
		}

		tx := &pgTx{dbtx: pgxTx}

		err = fn(ctx, tx)
		if err == nil {
			if err = pgxTx.Commit(ctx); err == nil {
				return nil
			}
			err = errs.Mark(err, errTransactionCommit)
		}

		if rollbackErr := pgxTx.Rollback(ctx); rollbackErr != nil {
			if !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				slog.Warn("rollback failed", "attempt", attempt+1, "error", rollbackErr.Error())
			}
		}

		if !shouldRetry(err, attempt, maxRetries) {
			if attempt == maxRetries {
				slog.Error("transaction failed after max retries",
					"attempts", attempt+1,
					"error", err.Error())
				return errs.Mark(err, errMaxRetriesExceeded)
			}
			return err
		}

		waitTime := calculateBackoff(attempt, base)

		slog.Warn("retrying transaction due to retryable error",
			"attempt", attempt+1,
			"wait_ms", waitTime.Milliseconds(),
			"error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return errMaxRetriesExceeded
}

func shouldRetry(err error, attempt, maxRetries int) bool {
	return isRetryableError(err) && attempt < maxRetries
}

func calculateBackoff(attempt int, base time.Duration) time.Duration {
	waitTime := time.Duration(1<<attempt) * base
	jitter := cryptoRandInt63n(int64(waitTime / 5))
	return waitTime + time.Duration(jitter)
}

func cryptoRandInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fallback to a simple calculation if crypto/rand fails
		return 0
	}
	// Safe conversion: mask high bit to ensure positive int64
	uval := binary.BigEndian.Uint64(buf[:]) & 0x7FFFFFFFFFFFFFFF
	// #nosec G115 -- Intentionally safe conversion after masking
	return int64(uval) % n
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgErrCodeSerializationFailure, pgErrCodeDeadlockDetected:
		return true
	default:
		return false
	}
}

type pgTx struct {
	dbtx db.DBTX

	// Lazy-initialized repositories
	reservationRepo  shared.ReservationRepository
	capacityRepo     shared.CapacityLedger
	couponRepo       shared.CouponRepository
	idempotencyRepo  shared.IdempotencyRepository
	notificationRepo shared.NotificationRepository
}

func (t *pgTx) Reservations() shared.ReservationRepository {
	if t.reservationRepo == nil {
		t.reservationRepo = repository.NewReservationRepository(t.dbtx)
	}
	return t.reservationRepo
}

func (t *pgTx) Capacity() shared.CapacityLedger {
	if t.capacityRepo == nil {
		t.capacityRepo = repository.NewCapacityRepository(t.dbtx)
	}
	return t.capacityRepo
}

func (t *pgTx) Coupons() shared.CouponRepository {
	if t.couponRepo == nil {
		t.couponRepo = repository.NewCouponRepository(t.dbtx)
	}
	return t.couponRepo
}

func (t *pgTx) Idempotency() shared.IdempotencyRepository {
	if t.idempotencyRepo == nil {
		t.idempotencyRepo = repository.NewIdempotencyRepository(t.dbtx)
	}
	return t.idempotencyRepo
}

func (t *pgTx) Notifications() shared.NotificationRepository {
	if t.notificationRepo == nil {
		t.notificationRepo = repository.NewNotificationRepository(t.dbtx)
	}
	return t.notificationRepo
}

type commandReads struct {
	db bun.IDB

	// Lazy-initialized readstores
	listingStore     *readstore.ListingReadStore
	couponStore      *readstore.CouponReadStore
	capacityStore    *readstore.CapacityReadStore
	reservationStore *readstore.ReservationReadStore
	idempotencyStore *readstore.IdempotencyReadStore
}

func (r *commandReads) ListingByID(ctx context.Context, id uuid.UUID) (*shared.ListingSnapshot, error) {
	if r.listingStore == nil {
		r.listingStore = readstore.NewListingReadStore(r.db)
	}
	return r.listingStore.FindByID(ctx, id)
}

func (r *commandReads) CouponByCode(ctx context.Context, listingID uuid.UUID, code string) (*shared.CouponSnapshot, error) {
	if r.couponStore == nil {
		r.couponStore = readstore.NewCouponReadStore(r.db)
	}
	return r.couponStore.FindByCode(ctx, listingID, code)
}

func (r *commandReads) CapacityUsage(ctx context.Context, listingID uuid.UUID, date listing.ServiceDate, stockIDs []uuid.UUID) (*shared.CapacityUsage, error) {
	if r.capacityStore == nil {
		r.capacityStore = readstore.NewCapacityReadStore(r.db)
	}
	return r.capacityStore.Usage(ctx, listingID, date, stockIDs)
}

func (r *commandReads) reservations() *readstore.ReservationReadStore {
	if r.reservationStore == nil {
		r.reservationStore = readstore.NewReservationReadStore(r.db)
	}
	return r.reservationStore
}

func (r *commandReads) LinkedReservations(ctx context.Context, ids []uuid.UUID) ([]shared.LinkedReservationSnapshot, error) {
	return r.reservations().LinkedReservations(ctx, ids)
}

func (r *commandReads) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.reservations().ExpiredHolds(ctx, now, limit)
}

func (r *commandReads) PendingAsync(ctx context.Context, updatedBefore time.Time, limit int) ([]uuid.UUID, error) {
	return r.reservations().PendingAsync(ctx, updatedBefore, limit)
}

func (r *commandReads) IdempotencyByKey(ctx context.Context, key, buyerID uuid.UUID) (*shared.IdempotencyRecord, error) {
	if r.idempotencyStore == nil {
		r.idempotencyStore = readstore.NewIdempotencyReadStore(r.db)
	}
	return r.idempotencyStore.Get(ctx, key, buyerID)
}
