package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
	"vpsbot/internal/settlement"
)

// Reconciler turns a matched feed entry into exactly one ledger credit.
type Reconciler struct {
	table    *Table
	ledger   ledger.Repository
	store    Repository
	notifier *Notifier
	now      func() time.Time
}

func NewReconciler(table *Table, l ledger.Repository, store Repository, notifier *Notifier) *Reconciler {
	return &Reconciler{table: table, ledger: l, store: store, notifier: notifier, now: time.Now}
}

// Settle claims ref and credits its requested amount. It reports whether the
// claim succeeded; once it has, ref can never be credited again by this
// path, whatever the outcome of the credit.
func (r *Reconciler) Settle(ctx context.Context, ref string, e settlement.Entry) (bool, error) {
	in, ok := r.table.Claim(ref)
	if !ok {
		logger.Debug("intent no longer pending", "reference_id", ref)
		return false, nil
	}
	metrics.SetPending(r.table.Len())

	if in.Expired(r.now()) {
		r.expire(ctx, in)
		logger.Warn("feed entry matched an expired intent, not crediting",
			"reference_id", ref,
			"amount", e.Amount,
			"external_ref", e.ExternalRef,
		)
		return true, nil
	}

	return true, r.credit(ctx, in, e)
}

func (r *Reconciler) credit(ctx context.Context, in Intent, e settlement.Entry) error {
	balance, err := r.ledger.AdjustBalance(ctx, ledger.Entry{
		UserID:      in.UserID,
		Amount:      in.Requested,
		Type:        ledger.TypeTopup,
		Details:     fmt.Sprintf("QRIS top-up via %s from %s (ref %s)", e.Brand, e.PayerLabel, e.ExternalRef),
		ReferenceID: in.Ref,
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateReference):
		logger.Warn("intent already credited", "reference_id", in.Ref)
		r.notifier.Deregister(in.Ref)
		r.markCompleted(ctx, in, e)
		return nil
	case err != nil:
		metrics.RecordIntent(string(StatusError))
		logger.Error("crediting matched payment failed",
			"reference_id", in.Ref,
			"user_id", in.UserID,
			"amount", in.Requested,
			"error", err,
		)
		if uerr := r.store.UpdateStatus(ctx, in.Ref, StatusError); uerr != nil {
			logger.Error("failed to mark intent errored", "reference_id", in.Ref, "error", uerr)
		}
		r.notifier.Notify(ctx, in.Ref, Outcome{Ref: in.Ref, UserID: in.UserID, Status: StatusError, Amount: in.Requested})
		return fmt.Errorf("credit %s: %w", in.Ref, err)
	}

	r.markCompleted(ctx, in, e)
	metrics.RecordIntent(string(StatusCompleted))
	metrics.RecordCredit(in.Requested)
	logger.Info("payment credited",
		"reference_id", in.Ref,
		"user_id", in.UserID,
		"amount", in.Requested,
		"settlement", in.Settlement,
		"balance", balance,
	)

	r.notifier.Notify(ctx, in.Ref, Outcome{
		Ref:         in.Ref,
		UserID:      in.UserID,
		Status:      StatusCompleted,
		Amount:      in.Requested,
		Balance:     balance,
		Brand:       e.Brand,
		ExternalRef: e.ExternalRef,
		PayerLabel:  e.PayerLabel,
	})
	return nil
}

// markCompleted failures are logged only: the ledger's unique reference
// keeps a stale pending row from being credited twice after a restart.
func (r *Reconciler) markCompleted(ctx context.Context, in Intent, e settlement.Entry) {
	if err := r.store.Complete(ctx, in.Ref, e.ExternalRef, e.PayerLabel); err != nil {
		logger.Error("failed to mark intent completed", "reference_id", in.Ref, "error", err)
	}
}

func (r *Reconciler) expire(ctx context.Context, in Intent) {
	r.notifier.Deregister(in.Ref)
	metrics.RecordIntent(string(StatusExpired))
	if err := r.store.UpdateStatus(ctx, in.Ref, StatusExpired); err != nil {
		logger.Error("failed to mark intent expired", "reference_id", in.Ref, "error", err)
	}
	logger.Info("payment intent expired", "reference_id", in.Ref, "user_id", in.UserID)
}
