package repository

import (
	"context"

	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/infra/repository/converter"
	"booking-checkout/internal/pkg/pgconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `id, listing_id, buyer_id, buyer_contact, service_date, lines,
	gross_cents, discount_cents, net_cents, commission_cents, coupon_id, coupon_code,
	payment_method, status, gateway_payment_id, instrument_ref, payment_detail,
	capacity_hold, hold_expires_at, charge_attempts, failure_reason, version,
	created_at, updated_at`

type ReservationRepository struct {
	db db.DBTX
}

func NewReservationRepository(db db.DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	row, err := converter.ReservationToRow(res)
	if err != nil {
		return infra.WrapRepoErr("failed to convert reservation", err)
	}

	_, err = r.db.Exec(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		row.ID, row.ListingID, row.BuyerID, row.BuyerContact, row.ServiceDate, row.Lines,
		row.GrossCents, row.DiscountCents, row.NetCents, row.CommissionCents, row.CouponID, row.CouponCode,
		row.PaymentMethod, row.Status, row.GatewayPaymentID, row.InstrumentRef, row.PaymentDetail,
		row.CapacityHold, row.HoldExpiresAt, row.ChargeAttempts, row.FailureReason, row.Version,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to create reservation", err)
	}
	return nil
}

func (r *ReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	return r.findOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) FindByGatewayPaymentID(ctx context.Context, externalID string) (*reservation.Reservation, error) {
	return r.findOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE gateway_payment_id = $1 FOR UPDATE`, externalID)
}

func (r *ReservationRepository) findOne(ctx context.Context, query string, arg any) (*reservation.Reservation, error) {
	row, err := scanReservation(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.WrapRepoErr("reservation not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find reservation", err)
	}

	res, err := converter.RowToReservation(row)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to convert reservation row", err)
	}
	return res, nil
}

// Update writes every mutable column if the stored version still matches,
// then bumps the in-memory version.
func (r *ReservationRepository) Update(ctx context.Context, res *reservation.Reservation) error {
	row, err := converter.ReservationToRow(res)
	if err != nil {
		return infra.WrapRepoErr("failed to convert reservation", err)
	}

	tag, err := r.db.Exec(ctx, `UPDATE reservations SET
			status = $3,
			gateway_payment_id = $4,
			instrument_ref = $5,
			payment_detail = $6,
			capacity_hold = $7,
			hold_expires_at = $8,
			charge_attempts = $9,
			failure_reason = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		row.ID, row.Version, row.Status, row.GatewayPaymentID, row.InstrumentRef,
		row.PaymentDetail, row.CapacityHold, row.HoldExpiresAt, row.ChargeAttempts,
		row.FailureReason, row.UpdatedAt,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to update reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr("reservation version mismatch", nil, infra.KindConflict)
	}

	res.IncrementVersion()
	return nil
}

func (r *ReservationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return infra.WrapRepoErr("failed to delete reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	return nil
}

func scanReservation(row pgx.Row) (converter.ReservationRow, error) {
	var r converter.ReservationRow
	err := row.Scan(
		&r.ID, &r.ListingID, &r.BuyerID, &r.BuyerContact, &r.ServiceDate, &r.Lines,
		&r.GrossCents, &r.DiscountCents, &r.NetCents, &r.CommissionCents, &r.CouponID, &r.CouponCode,
		&r.PaymentMethod, &r.Status, &r.GatewayPaymentID, &r.InstrumentRef, &r.PaymentDetail,
		&r.CapacityHold, &r.HoldExpiresAt, &r.ChargeAttempts, &r.FailureReason, &r.Version,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}
