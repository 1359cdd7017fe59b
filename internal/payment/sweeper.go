package payment

import (
	"context"
	"time"

	"vpsbot/internal/metrics"
)

// Sweeper expires pending intents older than their TTL.
type Sweeper struct {
	table      *Table
	reconciler *Reconciler
	interval   time.Duration
	now        func() time.Time
}

func NewSweeper(table *Table, reconciler *Reconciler, interval time.Duration) *Sweeper {
	return &Sweeper{table: table, reconciler: reconciler, interval: interval, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires every overdue intent and returns how many it removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired := s.table.TakeExpired(s.now())
	for _, in := range expired {
		s.reconciler.expire(ctx, in)
	}
	if len(expired) > 0 {
		metrics.SetPending(s.table.Len())
	}
	return len(expired)
}
