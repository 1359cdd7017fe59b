package payment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpsbot/internal/ledger"
	"vpsbot/internal/settlement"
)

type stubRenderer struct {
	err   error
	calls atomic.Int64
}

func (r *stubRenderer) Render(_ context.Context, amount int64) ([]byte, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return []byte(fmt.Sprintf("png:%d", amount)), nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc      *Service
	ledger   *ledger.MemoryRepository
	store    *MemoryRepository
	feed     *settlement.SimulatedFeed
	renderer *stubRenderer
	clock    *testClock
}

func newHarness(t *testing.T, users ...int64) *harness {
	t.Helper()

	h := &harness{
		ledger:   ledger.NewMemoryRepository(),
		store:    NewMemoryRepository(),
		feed:     settlement.NewSimulatedFeed(),
		renderer: &stubRenderer{},
		clock:    newTestClock(),
	}
	h.svc = NewService(Config{MinAmount: 1000, TTL: 30 * time.Minute}, Deps{
		Ledger:   h.ledger,
		Store:    h.store,
		Feed:     h.feed,
		Renderer: h.renderer,
	})
	h.svc.SetClock(h.clock.Now)

	for _, id := range users {
		_, err := h.ledger.Register(context.Background(), id, ledger.Profile{Username: fmt.Sprintf("user%d", id)})
		require.NoError(t, err)
	}
	return h
}

func (h *harness) balance(t *testing.T, id int64) int64 {
	t.Helper()
	u, err := h.ledger.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Balance
}

// pickFixed makes the generator always choose the i-th free offset, or the
// last one when i is negative.
func (h *harness) pickFixed(i int) {
	h.svc.generator.pick = func(n int) int {
		if i < 0 || i >= n {
			return n - 1
		}
		return i
	}
}
