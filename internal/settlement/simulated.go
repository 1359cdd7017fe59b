package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimulatedFeed is an in-process gateway. Pay records a payment the next
// Fetch will report. Used in simulation mode and by tests.
type SimulatedFeed struct {
	mu      sync.Mutex
	entries []Entry
	failErr error
	seq     int
}

func NewSimulatedFeed() *SimulatedFeed {
	return &SimulatedFeed{}
}

func (f *SimulatedFeed) Pay(amount int64, payer string) Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	e := Entry{
		Amount:      amount,
		ExternalRef: fmt.Sprintf("SIM%d%04d", time.Now().Unix(), f.seq),
		PayerLabel:  orDefault(payer, defaultPayer),
		Brand:       "SIMULATED",
	}
	f.entries = append(f.entries, e)
	return e
}

// FailWith makes every Fetch return err until called again with nil.
func (f *SimulatedFeed) FailWith(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
}

func (f *SimulatedFeed) Fetch(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failErr != nil {
		return nil, f.failErr
	}
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}
