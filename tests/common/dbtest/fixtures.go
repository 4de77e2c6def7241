//go:build unit || e2e

package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// DBLike is satisfied by *pgxpool.Pool and pgx.Tx.
type DBLike interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ListingParams struct {
	Name              string
	MerchantAccountID string
	CommissionBps     int
	DailyQuota        int
	// CategoryQuotas is stored as-is, e.g. `{"dependent": 3}`.
	CategoryQuotas string
}

func CreateTestListing(t *testing.T, db DBLike, p ListingParams) uuid.UUID {
	t.Helper()

	if p.Name == "" {
		p.Name = "Treetop Adventure Park"
	}
	if p.MerchantAccountID == "" {
		p.MerchantAccountID = "acct_test"
	}
	if p.CategoryQuotas == "" {
		p.CategoryQuotas = "{}"
	}

	id := uuid.New()
	_, err := db.Exec(context.Background(), `INSERT INTO listings
		(id, name, owner_id, owner_contact, merchant_account_id, commission_bps, daily_quota, category_quotas)
		VALUES ($1, $2, $3, 'owner@example.com', $4, $5, $6, $7::jsonb)`,
		id, p.Name, uuid.New(), p.MerchantAccountID, p.CommissionBps, p.DailyQuota, p.CategoryQuotas)
	require.NoError(t, err)
	return id
}

func CreateTestTicketType(t *testing.T, db DBLike, listingID uuid.UUID, name, category string, priceCents int64, stock *int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(context.Background(), `INSERT INTO ticket_types
		(id, listing_id, name, category, price_cents, stock)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, listingID, name, category, priceCents, stock)
	require.NoError(t, err)
	return id
}

func CreateTestCoupon(t *testing.T, db DBLike, listingID uuid.UUID, code string, percentBps int, usageLimit *int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(context.Background(), `INSERT INTO coupons
		(id, listing_id, code, kind, percent_bps, usage_limit)
		VALUES ($1, $2, $3, 'percentage', $4, $5)`,
		id, listingID, code, percentBps, usageLimit)
	require.NoError(t, err)
	return id
}

// ConsumedCapacity returns 0 when the bucket row was never created.
func ConsumedCapacity(t *testing.T, db DBLike, listingID uuid.UUID, date, bucket string) int {
	t.Helper()

	var consumed int
	err := db.QueryRow(context.Background(), `SELECT COALESCE(
		(SELECT consumed FROM capacity_ledger WHERE listing_id = $1 AND service_date = $2 AND bucket = $3), 0)`,
		listingID, date, bucket).Scan(&consumed)
	require.NoError(t, err)
	return consumed
}

func CountReservations(t *testing.T, db DBLike, listingID uuid.UUID, status string) int {
	t.Helper()

	var n int
	err := db.QueryRow(context.Background(),
		"SELECT count(*) FROM reservations WHERE listing_id = $1 AND status = $2", listingID, status).Scan(&n)
	require.NoError(t, err)
	return n
}

func CountOutboxJobs(t *testing.T, db DBLike, kind string) int {
	t.Helper()

	var n int
	err := db.QueryRow(context.Background(),
		"SELECT count(*) FROM notification_jobs WHERE kind = $1", kind).Scan(&n)
	require.NoError(t, err)
	return n
}

var (
	buildTruncateOnce sync.Once
	truncateSQL       atomic.Value // string
)

// truncates all tables except the migration bookkeeping
func ResetDB(pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buildTruncateOnce.Do(func() {
		rows, err := pool.Query(ctx, `
		  SELECT 'public.' || quote_ident(tablename)
		  FROM pg_tables
		  WHERE schemaname = 'public'
		    AND tablename NOT IN ('schema_migrations')`)
		if err != nil {
			truncateSQL.Store("")
			return
		}
		defer rows.Close()
		var tables []string
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				truncateSQL.Store("")
				return
			}
			tables = append(tables, t)
		}
		if rows.Err() != nil {
			truncateSQL.Store("")
			return
		}
		if len(tables) == 0 {
			truncateSQL.Store("SELECT 1")
			return
		}
		truncateSQL.Store("TRUNCATE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE;")
	})
	sqlAny := truncateSQL.Load()
	if sqlAny == nil || sqlAny.(string) == "" {
		return fmt.Errorf("failed to build TRUNCATE SQL")
	}
	_, err := pool.Exec(ctx, sqlAny.(string))
	return err
}
