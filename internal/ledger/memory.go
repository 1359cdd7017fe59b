package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps the ledger in process. One mutex guards users and
// transactions so a balance change and its entry are never observed apart.
type MemoryRepository struct {
	mu     sync.Mutex
	users  map[int64]*User
	txs    []Transaction
	topups map[string]int
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[int64]*User),
		topups: make(map[string]int),
		now:    time.Now,
	}
}

func (r *MemoryRepository) GetUser(_ context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) Register(_ context.Context, id int64, p Profile) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; ok {
		return nil, ErrUserExists
	}
	now := r.now()
	u := &User{ID: id, Username: p.Username, FirstName: p.FirstName, CreatedAt: now, LastLogin: now}
	r.users[id] = u
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) AdjustBalance(_ context.Context, e Entry) (int64, error) {
	if e.Amount == 0 {
		return 0, ErrZeroAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[e.UserID]
	if !ok {
		return 0, ErrUserNotFound
	}
	newBalance := u.Balance + e.Amount
	if newBalance < 0 {
		return 0, ErrInsufficientFunds
	}
	if e.Type == TypeTopup && e.ReferenceID != "" {
		if _, dup := r.topups[e.ReferenceID]; dup {
			return 0, ErrDuplicateReference
		}
	}

	r.nextID++
	r.txs = append(r.txs, Transaction{
		ID:           r.nextID,
		UserID:       e.UserID,
		Amount:       e.Amount,
		Type:         e.Type,
		Details:      e.Details,
		ReferenceID:  e.ReferenceID,
		BalanceAfter: newBalance,
		CreatedAt:    r.now(),
	})
	if e.Type == TypeTopup && e.ReferenceID != "" {
		r.topups[e.ReferenceID] = len(r.txs) - 1
	}
	u.Balance = newBalance

	return newBalance, nil
}

func (r *MemoryRepository) AppendTransaction(ctx context.Context, e Entry) error {
	_, err := r.AdjustBalance(ctx, e)
	return err
}

func (r *MemoryRepository) ListTransactions(_ context.Context, userID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Transaction{}
	for i := len(r.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.txs[i].UserID == userID {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindByReference(_ context.Context, ref string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.topups[ref]
	if !ok {
		return nil, ErrTxNotFound
	}
	t := r.txs[idx]
	return &t, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryRepository) SetAdmin(_ context.Context, id int64, admin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsAdmin = admin
	return nil
}

func (r *MemoryRepository) TouchLogin(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = r.now()
	return nil
}

func (r *MemoryRepository) Totals(_ context.Context, id int64) (*Totals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	t := &Totals{UserID: id, Balance: u.Balance}
	for _, tx := range r.txs {
		if tx.UserID == id {
			t.Sum += tx.Amount
		}
	}
	return t, nil
}
