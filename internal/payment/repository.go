package payment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const intentColumns = `reference_id, user_id, requested_amount, settlement_amount, status,
	ttl_seconds, external_ref, payer_label, created_at, updated_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, in *Intent) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_intents
			(reference_id, user_id, requested_amount, settlement_amount, status, ttl_seconds, created_at, updated_at)
		VALUES
			(:reference_id, :user_id, :requested_amount, :settlement_amount, :status, :ttl_seconds, :created_at, :updated_at)
	`, in)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, ref string) (*Intent, error) {
	in := &Intent{}
	err := r.db.GetContext(ctx, in, `SELECT `+intentColumns+` FROM payment_intents WHERE reference_id = $1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, ref string, status Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_intents SET status = $1, updated_at = NOW() WHERE reference_id = $2`,
		string(status), ref,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepository) Complete(ctx context.Context, ref, externalRef, payerLabel string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = 'completed', external_ref = $1, payer_label = $2, updated_at = NOW()
		WHERE reference_id = $3
	`, externalRef, payerLabel, ref)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListByStatus returns every matching row when limit is not positive.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE status = $1 ORDER BY created_at`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	out := []Intent{}
	err := r.db.SelectContext(ctx, &out, query, args...)
	return out, err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]Intent, error) {
	if limit <= 0 {
		limit = 20
	}
	out := []Intent{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	return out, err
}

func (r *PostgresRepository) SettledWith(ctx context.Context, amounts []int64) ([]Intent, error) {
	out := []Intent{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE status = 'completed' AND external_ref <> $1 AND settlement_amount = ANY($2)
	`, ManualRef, pq.Array(amounts))
	return out, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIntentNotFound
	}
	return nil
}
