package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsbot/internal/ledger"
	"vpsbot/internal/payment"
)

func seedUser(t *testing.T, repo *ledger.PostgresRepository, id int64) {
	_, err := repo.Register(context.Background(), id, ledger.Profile{Username: "payer"})
	require.NoError(t, err)
}

func TestPaymentIntents_Lifecycle(t *testing.T) {
	conn := setupTestDB(t)
	seedUser(t, ledger.NewRepository(conn), 3001)
	repo := payment.NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	in := &payment.Intent{
		Ref: "TX-3-CCCCCC", UserID: 3001, Requested: 25000, Settlement: 25017,
		Status: payment.StatusPending, TTLSeconds: 1800, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, in))

	dup := *in
	assert.Error(t, repo.Create(ctx, &dup), "reference ids are unique")

	pending, err := repo.ListByStatus(ctx, payment.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(17), pending[0].Offset())

	require.NoError(t, repo.Complete(ctx, "TX-3-CCCCCC", "ISS-991", "ANI"))

	got, err := repo.Get(ctx, "TX-3-CCCCCC")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	assert.Equal(t, "ISS-991", got.ExternalRef)
	assert.Equal(t, "ANI", got.PayerLabel)

	settled, err := repo.SettledWith(ctx, []int64{25017, 99999})
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, "ISS-991", settled[0].ExternalRef)

	pending, err = repo.ListByStatus(ctx, payment.StatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := repo.StatsByDay(ctx, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Completed)
	assert.Equal(t, int64(25000), stats[0].Settled)
}

func TestPaymentIntents_MissingRef(t *testing.T) {
	conn := setupTestDB(t)
	repo := payment.NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Get(ctx, "TX-404")
	assert.ErrorIs(t, err, payment.ErrIntentNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "TX-404", payment.StatusExpired), payment.ErrIntentNotFound)
}

func TestPaymentIntents_ListByUserNewestFirst(t *testing.T) {
	conn := setupTestDB(t)
	seedUser(t, ledger.NewRepository(conn), 3002)
	repo := payment.NewRepository(conn)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, ref := range []string{"TX-4-AAAAAA", "TX-4-BBBBBB"} {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, &payment.Intent{
			Ref: ref, UserID: 3002, Requested: 10000, Settlement: 10000 + int64(i+1),
			Status: payment.StatusPending, TTLSeconds: 1800, CreatedAt: at, UpdatedAt: at,
		}))
	}
	require.NoError(t, repo.UpdateStatus(ctx, "TX-4-AAAAAA", payment.StatusExpired))

	rows, err := repo.ListByUser(ctx, 3002, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TX-4-BBBBBB", rows[0].Ref)
	assert.Equal(t, payment.StatusExpired, rows[1].Status)
}

func TestPaymentIntents_TransferSettlesOneIntent(t *testing.T) {
	conn := setupTestDB(t)
	seedUser(t, ledger.NewRepository(conn), 3003)
	repo := payment.NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, ref := range []string{"TX-5-AAAAAA", "TX-5-BBBBBB"} {
		require.NoError(t, repo.Create(ctx, &payment.Intent{
			Ref: ref, UserID: 3003, Requested: 10000, Settlement: 10001,
			Status: payment.StatusPending, TTLSeconds: 1800, CreatedAt: now, UpdatedAt: now,
		}))
	}

	require.NoError(t, repo.Complete(ctx, "TX-5-AAAAAA", "ISS-777", "ANI"))
	assert.Error(t, repo.Complete(ctx, "TX-5-BBBBBB", "ISS-777", "ANI"))

	// Operator and ref-less settlements are not unique.
	require.NoError(t, repo.Complete(ctx, "TX-5-BBBBBB", payment.ManualRef, "ticket 4"))
}
