package ledger

import (
	"context"
	"fmt"

	"vpsbot/internal/apperr"
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrUserExists         = fmt.Errorf("user already registered: %w", apperr.ErrConflict)
	ErrInsufficientFunds  = fmt.Errorf("balance: %w", apperr.ErrInsufficientFunds)
	ErrDuplicateReference = fmt.Errorf("reference already credited: %w", apperr.ErrConflict)
	ErrZeroAmount         = apperr.Validation("amount must be non-zero")
	ErrTxNotFound         = fmt.Errorf("transaction %w", apperr.ErrNotFound)
)

type Repository interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	Register(ctx context.Context, id int64, p Profile) (*User, error)
	// AdjustBalance applies e.Amount and appends e as one atomic unit and
	// returns the new balance.
	AdjustBalance(ctx context.Context, e Entry) (int64, error)
	// AppendTransaction records e. The amount is applied to the balance in
	// the same unit; there is no way to write one without the other.
	AppendTransaction(ctx context.Context, e Entry) error
	ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error)
	FindByReference(ctx context.Context, ref string) (*Transaction, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetAdmin(ctx context.Context, id int64, admin bool) error
	TouchLogin(ctx context.Context, id int64) error
	Totals(ctx context.Context, id int64) (*Totals, error)
}
