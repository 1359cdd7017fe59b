package payment

import (
	"context"
	"fmt"
	"sync"

	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
)

// Callback receives the outcome of one intent. It runs at most once.
type Callback func(ctx context.Context, o Outcome) error

// Notifier is a one-shot registry of callbacks keyed by reference.
type Notifier struct {
	mu        sync.Mutex
	callbacks map[string]Callback
}

func NewNotifier() *Notifier {
	return &Notifier{callbacks: make(map[string]Callback)}
}

// Register sets the callback for ref, replacing any earlier one.
func (n *Notifier) Register(ref string, cb Callback) {
	n.mu.Lock()
	n.callbacks[ref] = cb
	n.mu.Unlock()
}

func (n *Notifier) Deregister(ref string) {
	n.mu.Lock()
	delete(n.callbacks, ref)
	n.mu.Unlock()
}

// Notify invokes and removes the callback for ref. A missing callback is
// logged and ignored. Callback errors and panics are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, ref string, o Outcome) bool {
	n.mu.Lock()
	cb, ok := n.callbacks[ref]
	delete(n.callbacks, ref)
	n.mu.Unlock()

	if !ok {
		logger.Warn("no callback registered for payment", "reference_id", ref, "status", o.Status)
		metrics.RecordNotification("unregistered")
		return false
	}

	if err := invoke(ctx, cb, o); err != nil {
		logger.Error("payment callback failed", "reference_id", ref, "error", err)
		metrics.RecordNotification("callback_failed")
		return false
	}
	return true
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.callbacks)
}

func invoke(ctx context.Context, cb Callback, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return cb(ctx, o)
}
