package provision

import (
	"context"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu     sync.Mutex
	rows   []Resource
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Add(_ context.Context, res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	res.ID = r.nextID
	res.CreatedAt = time.Now()
	r.rows = append(r.rows, *res)
	return nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Resource
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindOwned(_ context.Context, userID, resourceID int64) (*Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.UserID == userID && row.ResourceID == resourceID {
			cp := row
			return &cp, nil
		}
	}
	return nil, ErrNotOwner
}

func (r *MemoryRepository) Remove(_ context.Context, userID, resourceID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, row := range r.rows {
		if row.UserID == userID && row.ResourceID == resourceID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return ErrResourceNotFound
}
