//go:build integration

package database_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campus-canteen/api/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("canteen_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	applied, err := database.RunMigrations(connStr)
	require.NoError(t, err)
	require.True(t, applied, "first run should apply the schema")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, connStr
}

func numeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	require.NoError(t, n.Scan(s))
	return n
}

func TestMigrations_Idempotent(t *testing.T) {
	_, connStr := setupDB(t)

	applied, err := database.RunMigrations(connStr)
	require.NoError(t, err)
	assert.False(t, applied, "second run should be a no-op")
}

func TestSettings_SeededAndMerged(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	q := database.New(pool)

	s, err := q.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "College Canteen", s.CanteenName)
	assert.Equal(t, "canteen@oksbi", s.UpiID)

	s, err = q.UpsertSettings(ctx, database.UpsertSettingsParams{
		ContactPhone: pgtype.Text{String: "0801234567", Valid: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "canteen@oksbi", s.UpiID, "omitted fields keep their value")
	assert.Equal(t, "0801234567", s.ContactPhone)
}

func TestNextOrderSequence_ConcurrentTransactions(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	day := pgtype.Date{Time: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), Valid: true}

	const n = 15
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int32]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := pool.Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback(ctx) //nolint:errcheck

			seq, err := database.New(pool).WithTx(tx).NextOrderSequence(ctx, database.NextOrderSequenceParams{
				OrderDate: day,
				Prefix:    "ORD20261014",
			})
			if !assert.NoError(t, err) {
				return
			}
			if !assert.NoError(t, tx.Commit(ctx)) {
				return
			}
			mu.Lock()
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for i := int32(1); i <= n; i++ {
		assert.True(t, seen[i], "sequence %d missing", i)
	}
}

func TestNextOrderSequence_RespectsExistingOrders(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	q := database.New(pool)

	_, err := q.CreateOrder(ctx, database.CreateOrderParams{
		OrderID:      "ORD20261015041",
		StudentName:  "Asha",
		StudentPhone: "9876543210",
		TotalAmount:  numeric(t, "10"),
	})
	require.NoError(t, err)

	seq, err := q.NextOrderSequence(ctx, database.NextOrderSequenceParams{
		OrderDate: pgtype.Date{Time: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), Valid: true},
		Prefix:    "ORD20261015",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(42), seq)
}

func TestTransitionOrder_CompareAndSet(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	q := database.New(pool)

	created, err := q.CreateOrder(ctx, database.CreateOrderParams{
		OrderID:      "ORD20261014001",
		StudentName:  "Asha",
		StudentPhone: "9876543210",
		TotalAmount:  numeric(t, "80"),
		UpiID:        "canteen@oksbi",
	})
	require.NoError(t, err)
	assert.Equal(t, database.OrderStatusPendingPayment, created.Status)

	submitted, err := q.TransitionOrder(ctx, database.TransitionOrderParams{
		OrderID:      created.OrderID,
		Status:       database.OrderStatusPaymentSubmitted,
		FromStatuses: []string{"pending_payment"},
		PaymentProof: pgtype.Text{String: "UTR 1234", Valid: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "UTR 1234", submitted.PaymentProof)
	assert.False(t, submitted.VerificationTime.Valid)

	_, err = q.TransitionOrder(ctx, database.TransitionOrderParams{
		OrderID:      created.OrderID,
		Status:       database.OrderStatusPaymentSubmitted,
		FromStatuses: []string{"pending_payment"},
	})
	assert.True(t, errors.Is(err, pgx.ErrNoRows), "second submit must miss, got %v", err)

	// Racing reviewers: exactly one wins.
	targets := []database.OrderStatus{database.OrderStatusVerified, database.OrderStatusRejected}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, target := range targets {
		wg.Add(1)
		go func(target database.OrderStatus) {
			defer wg.Done()
			_, err := q.TransitionOrder(ctx, database.TransitionOrderParams{
				OrderID:          created.OrderID,
				Status:           target,
				FromStatuses:     []string{"payment_submitted"},
				VerifiedBy:       pgtype.Text{String: "admin", Valid: true},
				VerificationTime: pgtype.Timestamptz{Time: time.Now(), Valid: true},
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, pgx.ErrNoRows), "loser error: %v", err)
		}(target)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	final, err := q.GetOrderByOrderID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "UTR 1234", final.PaymentProof, "unset stamps keep their value")
	assert.Equal(t, "admin", final.VerifiedBy)
	assert.True(t, final.VerificationTime.Valid)
}

func TestOrderItems_SurviveMenuDeletion(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	q := database.New(pool)

	item, err := q.CreateMenuItem(ctx, database.CreateMenuItemParams{
		Name:        "Samosa",
		Category:    "Snacks",
		Price:       numeric(t, "15"),
		IsAvailable: true,
	})
	require.NoError(t, err)

	order, err := q.CreateOrder(ctx, database.CreateOrderParams{
		OrderID:      "ORD20261014001",
		StudentName:  "Asha",
		StudentPhone: "9876543210",
		TotalAmount:  numeric(t, "30"),
	})
	require.NoError(t, err)
	_, err = q.CreateOrderItem(ctx, database.CreateOrderItemParams{
		OrderID:    order.ID,
		MenuItemID: item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Quantity:   2,
		Position:   0,
	})
	require.NoError(t, err)

	require.NoError(t, q.DeleteMenuItem(ctx, item.ID))
	assert.True(t, errors.Is(q.DeleteMenuItem(ctx, item.ID), pgx.ErrNoRows))

	items, err := q.ListOrderItemsByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Samosa", items[0].Name)
	assert.Equal(t, int32(2), items[0].Quantity)
}

func TestListOrdersByPhone_NewestFirstAndLimited(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	q := database.New(pool)

	for _, id := range []string{"ORD20261014001", "ORD20261014002", "ORD20261014003"} {
		_, err := q.CreateOrder(ctx, database.CreateOrderParams{
			OrderID:      id,
			StudentName:  "Asha",
			StudentPhone: "9876543210",
			TotalAmount:  numeric(t, "10"),
		})
		require.NoError(t, err)
	}

	orders, err := q.ListOrdersByPhone(ctx, database.ListOrdersByPhoneParams{StudentPhone: "9876543210", Limit: 2})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ORD20261014003", orders[0].OrderID)

	none, err := q.ListOrdersByPhone(ctx, database.ListOrdersByPhoneParams{StudentPhone: "0000000000", Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, none)
}
