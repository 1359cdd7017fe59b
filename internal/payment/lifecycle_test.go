package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsbot/internal/apperr"
	"vpsbot/internal/ledger"
	"vpsbot/internal/settlement"
)

func TestTopupCreditsRequestedAmount(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 100000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, in.Settlement, int64(100001))
	assert.LessOrEqual(t, in.Settlement, int64(100099))

	var outcomes []Outcome
	h.svc.Notifier().Register(in.Ref, func(_ context.Context, o Outcome) error {
		outcomes = append(outcomes, o)
		return nil
	})

	h.feed.Pay(in.Settlement, "BUDI")
	h.clock.Advance(5 * time.Second)

	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)

	assert.Equal(t, int64(100000), h.balance(t, 1))
	assert.Empty(t, h.svc.Pending())

	view, err := h.svc.Status(ctx, in.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Equal(t, int64(100000), view.Amount)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusCompleted, outcomes[0].Status)
	assert.Equal(t, int64(100000), outcomes[0].Amount)
	assert.Equal(t, int64(100000), outcomes[0].Balance)
	assert.Equal(t, "BUDI", outcomes[0].PayerLabel)

	tx, err := h.ledger.FindByReference(ctx, in.Ref)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeTopup, tx.Type)
	assert.Equal(t, int64(100000), tx.Amount)
}

func TestTopupBelowMinimumRejected(t *testing.T) {
	h := newHarness(t, 1)

	_, _, err := h.svc.Create(context.Background(), 1, 500)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestExpiredIntentNeverCredited(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 25000)
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	view, err := h.svc.Status(ctx, in.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, view.Status)
	assert.Equal(t, int64(25000), view.Amount)

	h.clock.Advance(time.Minute)
	h.feed.Pay(in.Settlement, "LATE")

	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed)
	assert.Equal(t, int64(0), h.balance(t, 1))

	view, err = h.svc.Status(ctx, in.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, view.Status)
	assert.Equal(t, int64(25000), view.Amount)
}

func TestSettleIsIdempotentPerReference(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	entry := h.feed.Pay(in.Settlement, "ANI")

	ok, err := h.svc.reconciler.Settle(ctx, in.Ref, entry)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.svc.reconciler.Settle(ctx, in.Ref, entry)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		_, err := h.svc.Poller().Cycle(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(10000), h.balance(t, 1))
	txs, err := h.ledger.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestConsumedEntryDoesNotSettleLaterIntent(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.pickFixed(0)

	first, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	h.feed.Pay(first.Settlement, "ANI")

	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	// Same nominal, offset freed, so the same settlement amount comes back.
	second, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	require.Equal(t, first.Settlement, second.Settlement)

	claimed, err = h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed)
	assert.Equal(t, int64(10000), h.balance(t, 1))

	view, err := h.svc.Status(ctx, second.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, view.Status)
}

func TestOldSettledEntryNeverSettlesAgain(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.pickFixed(0)

	first, _, err := h.svc.Create(ctx, 1, 100000)
	require.NoError(t, err)
	h.feed.Pay(first.Settlement, "ANI")

	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	// Well past any TTL multiple; the feed still lists the old transfer.
	h.clock.Advance(61 * time.Minute)

	second, _, err := h.svc.Create(ctx, 1, 100000)
	require.NoError(t, err)
	require.Equal(t, first.Settlement, second.Settlement)

	claimed, err = h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed)
	assert.Equal(t, int64(100000), h.balance(t, 1))

	// A fresh transfer for the same amount still settles it.
	h.feed.Pay(second.Settlement, "ANI")
	claimed, err = h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, int64(200000), h.balance(t, 1))
}

func TestSettledEntryRememberedAcrossRestart(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.pickFixed(0)

	first, _, err := h.svc.Create(ctx, 1, 20000)
	require.NoError(t, err)
	h.feed.Pay(first.Settlement, "DEWI")
	_, err = h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)

	// A new process over the same store and feed.
	restarted := NewService(Config{MinAmount: 1000, TTL: 30 * time.Minute}, Deps{
		Ledger:   h.ledger,
		Store:    h.store,
		Feed:     h.feed,
		Renderer: h.renderer,
	})
	restarted.SetClock(h.clock.Now)
	restarted.generator.pick = func(int) int { return 0 }
	_, err = restarted.Restore(ctx)
	require.NoError(t, err)

	second, _, err := restarted.Create(ctx, 1, 20000)
	require.NoError(t, err)
	require.Equal(t, first.Settlement, second.Settlement)

	claimed, err := restarted.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed)
	assert.Equal(t, int64(20000), h.balance(t, 1))
}

func TestSettledLookupFailureSkipsCycle(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	store := &failingSettledStore{MemoryRepository: h.store}
	h.svc.poller.store = store

	in, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	h.feed.Pay(in.Settlement, "EKO")

	claimed, err := h.svc.Poller().Cycle(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, claimed)
	assert.Equal(t, int64(0), h.balance(t, 1))
	assert.Len(t, h.svc.Pending(), 1)
}

type failingSettledStore struct {
	*MemoryRepository
}

func (s *failingSettledStore) SettledWith(context.Context, []int64) ([]Intent, error) {
	return nil, errors.New("connection reset")
}

func TestOneEntryMatchesOnlyOldestIntent(t *testing.T) {
	h := newHarness(t, 1, 2)
	ctx := context.Background()

	h.pickFixed(-1)
	older, _, err := h.svc.Create(ctx, 1, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1099), older.Settlement)

	h.clock.Advance(time.Second)
	h.pickFixed(0)
	newer, _, err := h.svc.Create(ctx, 2, 1098)
	require.NoError(t, err)
	require.Equal(t, int64(1099), newer.Settlement)

	h.feed.Pay(1099, "X")

	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, int64(1000), h.balance(t, 1))
	assert.Equal(t, int64(0), h.balance(t, 2))

	pending := h.svc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, newer.Ref, pending[0].Ref)
}

func TestTwoTransfersSettleTwoIntents(t *testing.T) {
	h := newHarness(t, 1, 2)
	ctx := context.Background()

	a, _, err := h.svc.Create(ctx, 1, 50000)
	require.NoError(t, err)
	b, _, err := h.svc.Create(ctx, 2, 50000)
	require.NoError(t, err)
	require.NotEqual(t, a.Settlement, b.Settlement)

	h.feed.Pay(b.Settlement, "B")
	h.feed.Pay(a.Settlement, "A")

	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, int64(50000), h.balance(t, 1))
	assert.Equal(t, int64(50000), h.balance(t, 2))
}

func TestFeedFailureIsRetriedNextCycle(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 30000)
	require.NoError(t, err)
	h.feed.Pay(in.Settlement, "C")

	h.feed.FailWith(settlement.ErrParse)
	_, err = h.svc.Poller().Cycle(ctx)
	assert.ErrorIs(t, err, settlement.ErrParse)
	assert.Len(t, h.svc.Pending(), 1)

	h.feed.FailWith(nil)
	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, int64(30000), h.balance(t, 1))
}

func TestCycleSkipsFetchWhenNothingPending(t *testing.T) {
	h := newHarness(t)
	h.feed.FailWith(settlement.ErrNetwork)

	claimed, err := h.svc.Poller().Cycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, claimed)
}

func TestSweeperExpiresOverdueIntents(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	old, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	h.svc.Notifier().Register(old.Ref, func(context.Context, Outcome) error {
		t.Fatal("expired intent must not notify")
		return nil
	})

	h.clock.Advance(20 * time.Minute)
	fresh, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)

	h.clock.Advance(11 * time.Minute)
	assert.Equal(t, 1, h.svc.Sweeper().Sweep(ctx))

	pending := h.svc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.Ref, pending[0].Ref)
	assert.Equal(t, 1, h.svc.table.OffsetsHeld(10000))
	assert.Equal(t, 0, h.svc.Notifier().Len())

	row, err := h.store.Get(ctx, old.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, row.Status)
}

type failingLedger struct {
	*ledger.MemoryRepository
	err error
}

func (f *failingLedger) AdjustBalance(context.Context, ledger.Entry) (int64, error) {
	return 0, f.err
}

func TestLedgerFailureMarksIntentErrored(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	broken := &failingLedger{MemoryRepository: h.ledger, err: errors.New("connection reset")}
	h.svc.reconciler.ledger = broken

	in, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)

	var got []Status
	h.svc.Notifier().Register(in.Ref, func(_ context.Context, o Outcome) error {
		got = append(got, o.Status)
		return nil
	})

	h.feed.Pay(in.Settlement, "D")
	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)

	assert.Equal(t, []Status{StatusError}, got)
	row, err := h.store.Get(ctx, in.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusError, row.Status)
	assert.Empty(t, h.svc.Pending())

	// An operator can settle it once the ledger is back.
	h.svc.reconciler.ledger = h.ledger
	require.NoError(t, h.svc.ManualSettle(ctx, in.Ref, "support ticket 17"))
	assert.Equal(t, int64(10000), h.balance(t, 1))
}

func TestCallbackPanicDoesNotUndoCredit(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	h.svc.Notifier().Register(in.Ref, func(context.Context, Outcome) error {
		panic("chat layer exploded")
	})

	h.feed.Pay(in.Settlement, "E")
	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, int64(10000), h.balance(t, 1))
}

func TestManualSettle(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 15000)
	require.NoError(t, err)

	require.NoError(t, h.svc.ManualSettle(ctx, in.Ref, "bank statement"))
	assert.Equal(t, int64(15000), h.balance(t, 1))
	assert.Empty(t, h.svc.Pending())

	err = h.svc.ManualSettle(ctx, in.Ref, "again")
	assert.ErrorIs(t, err, ErrNotPending)

	// A later feed entry for the same amount credits nothing.
	h.feed.Pay(in.Settlement, "F")
	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed)
	assert.Equal(t, int64(15000), h.balance(t, 1))

	err = h.svc.ManualSettle(ctx, "TX-0-NOPE00", "x")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestManualSettleAfterCreditIsNoop(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 15000)
	require.NoError(t, err)

	// Credit lands but the intent row is left pending, as after a crash.
	_, err = h.ledger.AdjustBalance(ctx, ledger.Entry{UserID: 1, Amount: 15000, Type: ledger.TypeTopup, ReferenceID: in.Ref})
	require.NoError(t, err)

	require.NoError(t, h.svc.ManualSettle(ctx, in.Ref, "retry"))
	assert.Equal(t, int64(15000), h.balance(t, 1))

	row, err := h.store.Get(ctx, in.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, row.Status)
}

func TestStatusUnknownReference(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Status(context.Background(), "TX-1-ABCDEF")
	assert.ErrorIs(t, err, ErrIntentNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStatusDoesNotMutate(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	in, _, err := h.svc.Create(ctx, 1, 10000)
	require.NoError(t, err)
	h.clock.Advance(45 * time.Minute)

	for i := 0; i < 3; i++ {
		view, err := h.svc.Status(ctx, in.Ref)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, view.Status)
	}
	assert.Len(t, h.svc.Pending(), 1)
}

func TestRestore(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	now := h.clock.Now()

	live := &Intent{Ref: "TX-1-LIVE01", UserID: 1, Requested: 10000, Settlement: 10042, Status: StatusPending, TTLSeconds: 1800, CreatedAt: now.Add(-10 * time.Minute)}
	stale := &Intent{Ref: "TX-1-STALE1", UserID: 1, Requested: 10000, Settlement: 10043, Status: StatusPending, TTLSeconds: 1800, CreatedAt: now.Add(-40 * time.Minute)}
	done := &Intent{Ref: "TX-1-DONE01", UserID: 1, Requested: 5000, Settlement: 5007, Status: StatusPending, TTLSeconds: 1800, CreatedAt: now.Add(-5 * time.Minute)}
	for _, in := range []*Intent{live, stale, done} {
		require.NoError(t, h.store.Create(ctx, in))
	}
	require.NoError(t, h.store.Complete(ctx, done.Ref, "ISS-9", "GINA"))

	restored, err := h.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	pending := h.svc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, live.Ref, pending[0].Ref)
	assert.Equal(t, 1, h.svc.table.OffsetsHeld(10000))

	row, err := h.store.Get(ctx, stale.Ref)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, row.Status)

	h.feed.Pay(10042, "H")
	claimed, err := h.svc.Poller().Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, int64(10000), h.balance(t, 1))
}

func TestRestoreLoadsEveryPendingRow(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	now := h.clock.Now()

	const rows = 1200
	for i := 0; i < rows; i++ {
		requested := int64(10000 + 100*(i/MaxOffset))
		require.NoError(t, h.store.Create(ctx, &Intent{
			Ref:        fmt.Sprintf("TX-1-R%05d", i),
			UserID:     1,
			Requested:  requested,
			Settlement: requested + int64(i%MaxOffset) + 1,
			Status:     StatusPending,
			TTLSeconds: 1800,
			CreatedAt:  now.Add(-time.Minute),
		}))
	}

	restored, err := h.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows, restored)
	assert.Len(t, h.svc.Pending(), rows)
}

func TestListByStatusRejectsUnknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ListByStatus(context.Background(), Status("weird"), 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}
