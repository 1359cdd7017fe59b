package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
	"vpsbot/internal/settlement"
)

// Poller fetches the settlement feed on a fixed interval and hands each
// matched pending intent to the Reconciler.
type Poller struct {
	feed       settlement.Feed
	table      *Table
	reconciler *Reconciler
	sweeper    *Sweeper
	store      Repository
	interval   time.Duration
	timeout    time.Duration

	// mu serialises cycles and guards consumed. consumed holds entries
	// settled by this process and is kept while the feed still reports them.
	mu       sync.Mutex
	consumed map[string]struct{}
}

func NewPoller(feed settlement.Feed, table *Table, reconciler *Reconciler, sweeper *Sweeper, store Repository, interval, timeout time.Duration) *Poller {
	return &Poller{
		feed:       feed,
		table:      table,
		reconciler: reconciler,
		sweeper:    sweeper,
		store:      store,
		interval:   interval,
		timeout:    timeout,
		consumed:   make(map[string]struct{}),
	}
}

func (p *Poller) Run(ctx context.Context) {
	logger.Info("settlement poller started", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("settlement poller stopped")
			return
		case <-ticker.C:
			if _, err := p.Cycle(ctx); err != nil {
				logger.Error("settlement poll cycle failed", "error", err)
			}
		}
	}
}

// Cycle runs one fetch-and-match pass and returns the number of intents it
// claimed. A feed entry is matched at most once: entries recorded on a
// completed intent are skipped whatever their age.
func (p *Poller) Cycle(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweeper.Sweep(ctx)

	pending := p.table.Snapshot()
	if len(pending) == 0 {
		return 0, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	entries, err := p.feed.Fetch(fetchCtx)
	cancel()
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordPollCycle("error", elapsed)
		return 0, fmt.Errorf("fetch settlement feed: %w", err)
	}
	metrics.RecordPollCycle("ok", elapsed)

	p.forgetVanished(entries)

	used, err := p.markUsed(ctx, entries, pending)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, in := range pending {
		if ctx.Err() != nil {
			break
		}

		idx := firstMatch(entries, used, in.Settlement)
		if idx < 0 {
			continue
		}
		used[idx] = true

		ok, err := p.reconciler.Settle(ctx, in.Ref, entries[idx])
		if ok {
			p.consumed[entryKey(entries[idx])] = struct{}{}
			claimed++
		}
		if err != nil {
			logger.Error("settling intent failed", "reference_id", in.Ref, "error", err)
		}
	}

	return claimed, nil
}

// markUsed flags entries that already settled an intent, either in this
// process or as recorded on a completed intent in the store.
func (p *Poller) markUsed(ctx context.Context, entries []settlement.Entry, pending []Intent) ([]bool, error) {
	wanted := make(map[int64]bool, len(pending))
	for _, in := range pending {
		wanted[in.Settlement] = true
	}
	var amounts []int64
	for _, e := range entries {
		if wanted[e.Amount] {
			amounts = append(amounts, e.Amount)
			wanted[e.Amount] = false
		}
	}

	settled := make(map[string]struct{}, len(p.consumed))
	for k := range p.consumed {
		settled[k] = struct{}{}
	}
	if len(amounts) > 0 {
		rows, err := p.store.SettledWith(ctx, amounts)
		if err != nil {
			return nil, fmt.Errorf("load settled entries: %w", err)
		}
		for _, in := range rows {
			settled[entryKey(settlement.Entry{Amount: in.Settlement, ExternalRef: in.ExternalRef, PayerLabel: in.PayerLabel})] = struct{}{}
		}
	}

	used := make([]bool, len(entries))
	for i, e := range entries {
		if _, ok := settled[entryKey(e)]; ok {
			used[i] = true
		}
	}
	return used, nil
}

// forgetVanished drops in-process keys the feed no longer reports.
func (p *Poller) forgetVanished(entries []settlement.Entry) {
	live := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		live[entryKey(e)] = struct{}{}
	}
	for k := range p.consumed {
		if _, ok := live[k]; !ok {
			delete(p.consumed, k)
		}
	}
}

func firstMatch(entries []settlement.Entry, used []bool, amount int64) int {
	for i, e := range entries {
		if !used[i] && e.Amount == amount {
			return i
		}
	}
	return -1
}

func entryKey(e settlement.Entry) string {
	return fmt.Sprintf("%d|%s|%s", e.Amount, e.ExternalRef, e.PayerLabel)
}
