package ledger

import "time"

type TxType string

const (
	TypeTopup      TxType = "topup"
	TypePurchase   TxType = "purchase"
	TypeRefund     TxType = "refund"
	TypeAdjustment TxType = "adjustment"
)

// User is a chat platform user with a wallet. Balance is in minor currency
// units and only changes through AdjustBalance.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	FirstName string    `db:"first_name" json:"first_name"`
	Balance   int64     `db:"balance" json:"balance"`
	IsAdmin   bool      `db:"is_admin" json:"is_admin"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	LastLogin time.Time `db:"last_login" json:"last_login"`
}

type Profile struct {
	Username  string
	FirstName string
}

// Transaction is an immutable ledger row. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	Amount       int64     `db:"amount" json:"amount"`
	Type         TxType    `db:"type" json:"type"`
	Details      string    `db:"details" json:"details"`
	ReferenceID  string    `db:"reference_id" json:"reference_id,omitempty"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Entry is a balance change request. It becomes a Transaction once applied.
type Entry struct {
	UserID      int64
	Amount      int64
	Type        TxType
	Details     string
	ReferenceID string
}

// Totals pairs a stored balance with the sum of its transactions.
type Totals struct {
	UserID  int64 `db:"user_id"`
	Balance int64 `db:"balance"`
	Sum     int64 `db:"total"`
}

func (t Totals) Consistent() bool {
	return t.Balance == t.Sum
}
