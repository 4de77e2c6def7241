//go:build unit || e2e

// Package fakeuow is an in-memory UnitOfWork. Transactions run one at a time
// against a copy of the state and are committed only when fn succeeds, so a
// failed Reserve leaves no partial claim behind.
package fakeuow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"booking-checkout/internal/domain/listing"
	"booking-checkout/internal/domain/reservation"
	"booking-checkout/internal/infra"
	"booking-checkout/internal/pkg/errs"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

type bucketKey struct {
	listingID uuid.UUID
	date      string
	bucket    string
}

type idemKey struct {
	key     uuid.UUID
	buyerID uuid.UUID
}

type Job struct {
	ID        uuid.UUID
	Job       shared.NewNotificationJob
	Status    string
	Attempts  int
	LastError string
	SentAt    *time.Time
}

type state struct {
	listings     map[uuid.UUID]*shared.ListingSnapshot
	coupons      map[uuid.UUID]*shared.CouponSnapshot
	reservations map[uuid.UUID]*reservation.Reservation
	consumed     map[bucketKey]int
	reserved     map[uuid.UUID]int
	idempotency  map[idemKey]shared.IdempotencyRecord
	jobs         []*Job
}

func (s *state) clone() *state {
	c := &state{
		listings:     s.listings,
		coupons:      make(map[uuid.UUID]*shared.CouponSnapshot, len(s.coupons)),
		reservations: make(map[uuid.UUID]*reservation.Reservation, len(s.reservations)),
		consumed:     make(map[bucketKey]int, len(s.consumed)),
		reserved:     make(map[uuid.UUID]int, len(s.reserved)),
		idempotency:  make(map[idemKey]shared.IdempotencyRecord, len(s.idempotency)),
		jobs:         make([]*Job, 0, len(s.jobs)),
	}
	for k, v := range s.coupons {
		cp := *v
		c.coupons[k] = &cp
	}
	for k, v := range s.reservations {
		c.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.consumed {
		c.consumed[k] = v
	}
	for k, v := range s.reserved {
		c.reserved[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for _, j := range s.jobs {
		cp := *j
		c.jobs = append(c.jobs, &cp)
	}
	return c
}

type UoW struct {
	txMu    sync.Mutex
	stateMu sync.RWMutex
	state   *state

	// Commits counts successful transactions.
	Commits int
	// ReserveErr, when set, is returned by every capacity reserve.
	ReserveErr error
}

func New() *UoW {
	return &UoW{state: &state{
		listings:     map[uuid.UUID]*shared.ListingSnapshot{},
		coupons:      map[uuid.UUID]*shared.CouponSnapshot{},
		reservations: map[uuid.UUID]*reservation.Reservation{},
		consumed:     map[bucketKey]int{},
		reserved:     map[uuid.UUID]int{},
		idempotency:  map[idemKey]shared.IdempotencyRecord{},
	}}
}

func (u *UoW) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()

	u.stateMu.RLock()
	work := u.state.clone()
	u.stateMu.RUnlock()

	if err := fn(ctx, &tx{s: work, reserveErr: u.ReserveErr}); err != nil {
		return err
	}

	u.stateMu.Lock()
	u.state = work
	u.Commits++
	u.stateMu.Unlock()
	return nil
}

func (u *UoW) CommandReads() shared.CommandReads {
	return &reads{u: u}
}

func (u *UoW) read(fn func(s *state)) {
	u.stateMu.RLock()
	defer u.stateMu.RUnlock()
	fn(u.state)
}

func (u *UoW) write(fn func(s *state)) {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()
	fn(u.state)
}

// Seeding and inspection helpers.

func (u *UoW) AddListing(snap *shared.ListingSnapshot) {
	u.write(func(s *state) {
		listings := make(map[uuid.UUID]*shared.ListingSnapshot, len(s.listings)+1)
		for k, v := range s.listings {
			listings[k] = v
		}
		listings[snap.ID] = snap
		s.listings = listings
	})
}

func (u *UoW) AddCoupon(snap *shared.CouponSnapshot) {
	u.write(func(s *state) { s.coupons[snap.ID] = snap })
}

func (u *UoW) AddReservation(res *reservation.Reservation) {
	u.write(func(s *state) { s.reservations[res.ID()] = cloneReservation(res) })
}

func (u *UoW) SetConsumed(listingID uuid.UUID, date listing.ServiceDate, bucket string, units int) {
	u.write(func(s *state) { s.consumed[bucketKey{listingID, date.String(), bucket}] = units })
}

func (u *UoW) Reservation(id uuid.UUID) *reservation.Reservation {
	var out *reservation.Reservation
	u.read(func(s *state) {
		if r, ok := s.reservations[id]; ok {
			out = cloneReservation(r)
		}
	})
	return out
}

func (u *UoW) ReservationCount() int {
	var n int
	u.read(func(s *state) { n = len(s.reservations) })
	return n
}

func (u *UoW) Consumed(listingID uuid.UUID, date listing.ServiceDate, bucket string) int {
	var n int
	u.read(func(s *state) { n = s.consumed[bucketKey{listingID, date.String(), bucket}] })
	return n
}

func (u *UoW) ReservedStock(ticketTypeID uuid.UUID) int {
	var n int
	u.read(func(s *state) { n = s.reserved[ticketTypeID] })
	return n
}

func (u *UoW) CouponUsage(id uuid.UUID) int {
	var n int
	u.read(func(s *state) {
		if c, ok := s.coupons[id]; ok {
			n = c.UsageCount
		}
	})
	return n
}

func (u *UoW) Idempotency(key, buyerID uuid.UUID) (shared.IdempotencyRecord, bool) {
	var rec shared.IdempotencyRecord
	var ok bool
	u.read(func(s *state) { rec, ok = s.idempotency[idemKey{key, buyerID}] })
	return rec, ok
}

func (u *UoW) Jobs() []Job {
	var out []Job
	u.read(func(s *state) {
		for _, j := range s.jobs {
			out = append(out, *j)
		}
	})
	return out
}

type tx struct {
	s          *state
	reserveErr error
}

func (t *tx) Reservations() shared.ReservationRepository   { return &reservationRepo{s: t.s} }
func (t *tx) Capacity() shared.CapacityLedger              { return &capacityLedger{s: t.s, err: t.reserveErr} }
func (t *tx) Coupons() shared.CouponRepository             { return &couponRepo{s: t.s} }
func (t *tx) Idempotency() shared.IdempotencyRepository    { return &idempotencyRepo{s: t.s} }
func (t *tx) Notifications() shared.NotificationRepository { return &notificationRepo{s: t.s} }

type reservationRepo struct{ s *state }

func (r *reservationRepo) Create(_ context.Context, res *reservation.Reservation) error {
	if _, ok := r.s.reservations[res.ID()]; ok {
		return infra.WrapRepoErr("reservation already exists", nil, infra.KindDuplicateKey)
	}
	r.s.reservations[res.ID()] = cloneReservation(res)
	return nil
}

func (r *reservationRepo) FindByID(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	return cloneReservation(res), nil
}

func (r *reservationRepo) FindByGatewayPaymentID(_ context.Context, externalID string) (*reservation.Reservation, error) {
	for _, res := range r.s.reservations {
		if gp := res.GatewayPaymentID(); gp != nil && *gp == externalID {
			return cloneReservation(res), nil
		}
	}
	return nil, infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
}

func (r *reservationRepo) Update(_ context.Context, res *reservation.Reservation) error {
	stored, ok := r.s.reservations[res.ID()]
	if !ok || stored.Version() != res.Version() {
		return infra.WrapRepoErr("reservation version mismatch", nil, infra.KindConflict)
	}
	res.IncrementVersion()
	r.s.reservations[res.ID()] = cloneReservation(res)
	return nil
}

func (r *reservationRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.s.reservations[id]; !ok {
		return infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	delete(r.s.reservations, id)
	return nil
}

type capacityLedger struct {
	s   *state
	err error
}

func (l *capacityLedger) Reserve(_ context.Context, listingID uuid.UUID, date listing.ServiceDate, hold reservation.CapacityHold) error {
	if l.err != nil {
		return l.err
	}
	for _, b := range hold.Buckets {
		k := bucketKey{listingID, date.String(), b.Bucket}
		if l.s.consumed[k]+b.Units > b.Quota {
			return errs.Mark(errs.Newf("bucket %s exhausted", b.Bucket), reservation.ErrCapacityExhausted)
		}
		l.s.consumed[k] += b.Units
	}
	for _, st := range hold.Stock {
		if l.s.reserved[st.TicketTypeID]+st.Units > st.Stock {
			return errs.Mark(errs.Newf("stock %s exhausted", st.TicketTypeID), reservation.ErrCapacityExhausted)
		}
		l.s.reserved[st.TicketTypeID] += st.Units
	}
	return nil
}

func (l *capacityLedger) Release(_ context.Context, listingID uuid.UUID, date listing.ServiceDate, hold reservation.CapacityHold) error {
	for _, b := range hold.Buckets {
		k := bucketKey{listingID, date.String(), b.Bucket}
		l.s.consumed[k] = max(l.s.consumed[k]-b.Units, 0)
	}
	for _, st := range hold.Stock {
		l.s.reserved[st.TicketTypeID] = max(l.s.reserved[st.TicketTypeID]-st.Units, 0)
	}
	return nil
}

type couponRepo struct{ s *state }

func (r *couponRepo) IncrementUsage(_ context.Context, id uuid.UUID) (bool, error) {
	c, ok := r.s.coupons[id]
	if !ok {
		return false, infra.WrapRepoErr("coupon not found", nil, infra.KindNotFound)
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return false, nil
	}
	c.UsageCount++
	return true, nil
}

type idempotencyRepo struct{ s *state }

func (r *idempotencyRepo) TryInsert(_ context.Context, key, buyerID uuid.UUID, _ string, requestHash string, expiresAt time.Time) (bool, error) {
	k := idemKey{key, buyerID}
	if _, ok := r.s.idempotency[k]; ok {
		return false, nil
	}
	r.s.idempotency[k] = shared.IdempotencyRecord{
		Key:         key,
		BuyerID:     buyerID,
		Status:      shared.IdempotencyProcessing,
		RequestHash: requestHash,
		ExpiresAt:   expiresAt,
	}
	return true, nil
}

func (r *idempotencyRepo) ClaimExpired(_ context.Context, key, buyerID uuid.UUID, requestHash string, now, expiresAt time.Time) (bool, error) {
	k := idemKey{key, buyerID}
	rec, ok := r.s.idempotency[k]
	if !ok || rec.ExpiresAt.After(now) {
		return false, nil
	}
	r.s.idempotency[k] = shared.IdempotencyRecord{
		Key:         key,
		BuyerID:     buyerID,
		Status:      shared.IdempotencyProcessing,
		RequestHash: requestHash,
		ExpiresAt:   expiresAt,
	}
	return true, nil
}

func (r *idempotencyRepo) Complete(_ context.Context, key, buyerID, reservationID uuid.UUID, responseStatus int) error {
	k := idemKey{key, buyerID}
	rec, ok := r.s.idempotency[k]
	if !ok {
		return infra.WrapRepoErr("idempotency key not found", nil, infra.KindNotFound)
	}
	rec.Status = shared.IdempotencyCompleted
	rec.ResultReservationID = &reservationID
	rec.ResponseStatus = &responseStatus
	r.s.idempotency[k] = rec
	return nil
}

func (r *idempotencyRepo) Delete(_ context.Context, key, buyerID uuid.UUID) error {
	delete(r.s.idempotency, idemKey{key, buyerID})
	return nil
}

type notificationRepo struct{ s *state }

func (r *notificationRepo) CreateJob(_ context.Context, job shared.NewNotificationJob) error {
	r.s.jobs = append(r.s.jobs, &Job{ID: uuid.New(), Job: job, Status: shared.JobQueued})
	return nil
}

func (r *notificationRepo) FetchPending(_ context.Context, now time.Time, limit int) ([]shared.NotificationJob, error) {
	var due []*Job
	for _, j := range r.s.jobs {
		if j.Status == shared.JobQueued && !j.Job.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.SliceStable(due, func(a, b int) bool { return due[a].Job.RunAt.Before(due[b].Job.RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]shared.NotificationJob, 0, len(due))
	for _, j := range due {
		out = append(out, shared.NotificationJob{
			ID:       j.ID,
			Kind:     j.Job.Kind,
			Topic:    j.Job.Topic,
			Key:      j.Job.Key,
			Payload:  j.Job.Payload,
			Attempts: j.Attempts,
		})
	}
	return out, nil
}

func (r *notificationRepo) find(id uuid.UUID) (*Job, error) {
	for _, j := range r.s.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, infra.WrapRepoErr("notification job not found", nil, infra.KindNotFound)
}

func (r *notificationRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	j, err := r.find(id)
	if err != nil {
		return err
	}
	j.Status = shared.JobSent
	j.SentAt = &at
	j.Attempts++
	return nil
}

func (r *notificationRepo) MarkFailed(_ context.Context, id uuid.UUID, lastError string, nextRunAt time.Time, terminal bool) error {
	j, err := r.find(id)
	if err != nil {
		return err
	}
	j.Attempts++
	j.LastError = lastError
	j.Job.RunAt = nextRunAt
	if terminal {
		j.Status = shared.JobFailed
	}
	return nil
}

type reads struct{ u *UoW }

func (r *reads) ListingByID(_ context.Context, id uuid.UUID) (*shared.ListingSnapshot, error) {
	var snap *shared.ListingSnapshot
	r.u.read(func(s *state) { snap = s.listings[id] })
	if snap == nil {
		return nil, infra.WrapRepoErr("listing not found", nil, infra.KindNotFound)
	}
	return snap, nil
}

func (r *reads) CouponByCode(_ context.Context, listingID uuid.UUID, code string) (*shared.CouponSnapshot, error) {
	var found *shared.CouponSnapshot
	r.u.read(func(s *state) {
		for _, c := range s.coupons {
			if c.ListingID == listingID && strings.EqualFold(c.Code, strings.TrimSpace(code)) {
				cp := *c
				found = &cp
				return
			}
		}
	})
	if found == nil {
		return nil, infra.WrapRepoErr("coupon not found", nil, infra.KindNotFound)
	}
	return found, nil
}

func (r *reads) CapacityUsage(_ context.Context, listingID uuid.UUID, date listing.ServiceDate, stockIDs []uuid.UUID) (*shared.CapacityUsage, error) {
	usage := &shared.CapacityUsage{ConsumedByBucket: map[string]int{}, ReservedByStock: map[uuid.UUID]int{}}
	r.u.read(func(s *state) {
		for k, v := range s.consumed {
			if k.listingID == listingID && k.date == date.String() {
				usage.ConsumedByBucket[k.bucket] = v
			}
		}
		for _, id := range stockIDs {
			if v, ok := s.reserved[id]; ok {
				usage.ReservedByStock[id] = v
			}
		}
	})
	return usage, nil
}

func (r *reads) LinkedReservations(_ context.Context, ids []uuid.UUID) ([]shared.LinkedReservationSnapshot, error) {
	var out []shared.LinkedReservationSnapshot
	r.u.read(func(s *state) {
		for _, id := range ids {
			if res, ok := s.reservations[id]; ok {
				out = append(out, shared.LinkedReservationSnapshot{
					ID:          res.ID(),
					ListingID:   res.ListingID(),
					BuyerID:     res.BuyerID(),
					ServiceDate: res.ServiceDate().String(),
					Status:      res.Status().String(),
				})
			}
		}
	})
	return out, nil
}

func (r *reads) IdempotencyByKey(_ context.Context, key, buyerID uuid.UUID) (*shared.IdempotencyRecord, error) {
	rec, ok := r.u.Idempotency(key, buyerID)
	if !ok {
		return nil, infra.WrapRepoErr("idempotency key not found", nil, infra.KindNotFound)
	}
	return &rec, nil
}

func (r *reads) ExpiredHolds(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.selectIDs(limit, func(res *reservation.Reservation) bool {
		return res.IsHoldExpired(now)
	}), nil
}

func (r *reads) PendingAsync(_ context.Context, updatedBefore time.Time, limit int) ([]uuid.UUID, error) {
	return r.selectIDs(limit, func(res *reservation.Reservation) bool {
		return res.Status() == reservation.StatusWaitingPayment &&
			res.IsCapacityHeld() &&
			!res.UpdatedAt().After(updatedBefore)
	}), nil
}

func (r *reads) selectIDs(limit int, match func(*reservation.Reservation) bool) []uuid.UUID {
	var ids []uuid.UUID
	r.u.read(func(s *state) {
		for id, res := range s.reservations {
			if match(res) {
				ids = append(ids, id)
			}
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func cloneReservation(r *reservation.Reservation) *reservation.Reservation {
	return reservation.ReconstructReservation(reservation.ReconstructParams{
		ID:               r.ID(),
		ListingID:        r.ListingID(),
		BuyerID:          r.BuyerID(),
		BuyerContact:     r.BuyerContact(),
		ServiceDate:      r.ServiceDate(),
		Lines:            r.Lines(),
		Pricing:          r.Pricing(),
		CouponID:         r.CouponID(),
		CouponCode:       r.CouponCode(),
		PaymentMethod:    r.PaymentMethod(),
		Status:           r.Status(),
		GatewayPaymentID: r.GatewayPaymentID(),
		InstrumentRef:    r.InstrumentRef(),
		PaymentDetail:    r.PaymentDetail(),
		CapacityHold:     r.CapacityHold(),
		HoldExpiresAt:    r.HoldExpiresAt(),
		ChargeAttempts:   r.ChargeAttempts(),
		FailureReason:    r.FailureReason(),
		Version:          r.Version(),
		CreatedAt:        r.CreatedAt(),
		UpdatedAt:        r.UpdatedAt(),
	})
}
