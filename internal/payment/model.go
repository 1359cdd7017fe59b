package payment

import (
	"fmt"
	"time"

	"vpsbot/internal/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusError     Status = "error"
)

const (
	MinOffset = 1
	MaxOffset = 99
)

// ManualRef is the external reference of operator settlements.
const ManualRef = "MANUAL"

var (
	ErrBelowMinimum     = apperr.Validation("amount below minimum top-up")
	ErrOffsetsExhausted = fmt.Errorf("all settlement offsets for this amount are pending: %w", apperr.ErrConflict)
	ErrIntentNotFound   = fmt.Errorf("payment intent %w", apperr.ErrNotFound)
	ErrNotPending       = fmt.Errorf("payment intent is not pending: %w", apperr.ErrConflict)
)

// Intent is a request to receive one payment. Settlement is Requested plus a
// small offset and is only used to recognise the transfer on the feed.
type Intent struct {
	Ref         string    `db:"reference_id" json:"reference_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Requested   int64     `db:"requested_amount" json:"requested_amount"`
	Settlement  int64     `db:"settlement_amount" json:"settlement_amount"`
	Status      Status    `db:"status" json:"status"`
	TTLSeconds  int64     `db:"ttl_seconds" json:"ttl_seconds"`
	ExternalRef string    `db:"external_ref" json:"external_ref,omitempty"`
	PayerLabel  string    `db:"payer_label" json:"payer_label,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (i *Intent) TTL() time.Duration {
	return time.Duration(i.TTLSeconds) * time.Second
}

func (i *Intent) ExpiresAt() time.Time {
	return i.CreatedAt.Add(i.TTL())
}

// Expired reports whether the intent's age exceeds its time-to-live at now.
func (i *Intent) Expired(now time.Time) bool {
	return now.Sub(i.CreatedAt) > i.TTL()
}

func (i *Intent) Offset() int64 {
	return i.Settlement - i.Requested
}

// Outcome is what a registered callback receives when an intent settles.
type Outcome struct {
	Ref         string `json:"reference_id"`
	UserID      int64  `json:"user_id"`
	Status      Status `json:"status"`
	Amount      int64  `json:"amount"`
	Balance     int64  `json:"balance"`
	Brand       string `json:"brand,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
	PayerLabel  string `json:"payer_label,omitempty"`
}

// StatusView is the caller-facing state of an intent. Amount is always the
// requested amount.
type StatusView struct {
	Ref    string `json:"reference_id"`
	Status Status `json:"status"`
	Amount int64  `json:"amount"`
}
