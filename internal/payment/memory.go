package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu      sync.Mutex
	intents map[string]Intent
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{intents: make(map[string]Intent), now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, in *Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.intents[in.Ref]; ok {
		return errDuplicateRef
	}
	r.intents[in.Ref] = *in
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, ref string) (*Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.intents[ref]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return &in, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, ref string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.intents[ref]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status = status
	in.UpdatedAt = r.now()
	r.intents[ref] = in
	return nil
}

func (r *MemoryRepository) Complete(_ context.Context, ref, externalRef, payerLabel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.intents[ref]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status = StatusCompleted
	in.ExternalRef = externalRef
	in.PayerLabel = payerLabel
	in.UpdatedAt = r.now()
	r.intents[ref] = in
	return nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status Status, limit int) ([]Intent, error) {
	return r.filter(limit, false, func(in Intent) bool { return in.Status == status }), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64, limit int) ([]Intent, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.filter(limit, true, func(in Intent) bool { return in.UserID == userID }), nil
}

func (r *MemoryRepository) SettledWith(_ context.Context, amounts []int64) ([]Intent, error) {
	want := make(map[int64]bool, len(amounts))
	for _, a := range amounts {
		want[a] = true
	}
	return r.filter(0, false, func(in Intent) bool {
		return in.Status == StatusCompleted && in.ExternalRef != ManualRef && want[in.Settlement]
	}), nil
}

func (r *MemoryRepository) filter(limit int, newestFirst bool, keep func(Intent) bool) []Intent {
	r.mu.Lock()
	out := []Intent{}
	for _, in := range r.intents {
		if keep(in) {
			out = append(out, in)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
