package payment

import (
	"context"
	"time"
)

// Repository persists intents so pending top-ups survive a restart. The
// ledger stays the source of truth for what was credited.
type Repository interface {
	Create(ctx context.Context, in *Intent) error
	Get(ctx context.Context, ref string) (*Intent, error)
	UpdateStatus(ctx context.Context, ref string, status Status) error
	// Complete marks ref completed and records the feed entry it matched.
	Complete(ctx context.Context, ref, externalRef, payerLabel string) error
	// ListByStatus returns all matches, oldest first, when limit <= 0.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Intent, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Intent, error)
	// SettledWith returns completed intents settled by a feed entry of one
	// of amounts, with no age limit.
	SettledWith(ctx context.Context, amounts []int64) ([]Intent, error)
	// StatsByDay buckets intents created in [from, to) by UTC day.
	StatsByDay(ctx context.Context, from, to time.Time) ([]DailyStats, error)
}
