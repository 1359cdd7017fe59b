package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsbot/internal/ledger"
)

func TestLedger_RegisterAndAdjust(t *testing.T) {
	conn := setupTestDB(t)
	repo := ledger.NewRepository(conn)
	ctx := context.Background()

	u, err := repo.Register(ctx, 1001, ledger.Profile{Username: "ani", FirstName: "Ani"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Balance)

	_, err = repo.Register(ctx, 1001, ledger.Profile{Username: "ani"})
	assert.ErrorIs(t, err, ledger.ErrUserExists)

	bal, err := repo.AdjustBalance(ctx, ledger.Entry{UserID: 1001, Amount: 50000, Type: ledger.TypeTopup, ReferenceID: "TX-1-AAAAAA"})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), bal)

	bal, err = repo.AdjustBalance(ctx, ledger.Entry{UserID: 1001, Amount: -20000, Type: ledger.TypePurchase, Details: "VPS s-1vcpu-1gb - web"})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), bal)

	_, err = repo.AdjustBalance(ctx, ledger.Entry{UserID: 1001, Amount: -40000, Type: ledger.TypePurchase})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	txs, err := repo.ListTransactions(ctx, 1001, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TypePurchase, txs[0].Type)
	assert.Equal(t, int64(30000), txs[0].BalanceAfter)

	totals, err := repo.Totals(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, totals.Consistent())
}

func TestLedger_TopupReferenceCreditedOnce(t *testing.T) {
	conn := setupTestDB(t)
	repo := ledger.NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Register(ctx, 1002, ledger.Profile{Username: "budi"})
	require.NoError(t, err)

	entry := ledger.Entry{UserID: 1002, Amount: 10042, Type: ledger.TypeTopup, ReferenceID: "TX-2-BBBBBB"}
	_, err = repo.AdjustBalance(ctx, entry)
	require.NoError(t, err)

	_, err = repo.AdjustBalance(ctx, entry)
	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)

	u, err := repo.GetUser(ctx, 1002)
	require.NoError(t, err)
	assert.Equal(t, int64(10042), u.Balance, "rolled back credit must not change the balance")

	tx, err := repo.FindByReference(ctx, "TX-2-BBBBBB")
	require.NoError(t, err)
	assert.Equal(t, int64(10042), tx.Amount)

	_, err = repo.FindByReference(ctx, "TX-missing")
	assert.ErrorIs(t, err, ledger.ErrTxNotFound)
}

func TestLedger_ServiceConsistencyCheck(t *testing.T) {
	conn := setupTestDB(t)
	svc := ledger.NewService(ledger.NewRepository(conn))
	ctx := context.Background()

	for _, id := range []int64{2001, 2002} {
		_, err := svc.Register(ctx, id, ledger.Profile{Username: "user"})
		require.NoError(t, err)
		_, err = svc.Adjust(ctx, id, 15000, "opening credit")
		require.NoError(t, err)
	}

	// Drift one balance behind the ledger's back.
	_, err := conn.Exec(`UPDATE users SET balance = balance + 1 WHERE id = 2002`)
	require.NoError(t, err)

	assert.NoError(t, svc.CheckConsistency(ctx, 2001))
	assert.Error(t, svc.CheckConsistency(ctx, 2002))

	bad, err := svc.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2002}, bad)
}
