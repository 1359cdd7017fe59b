package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"vpsbot/internal/db"
)

const userColumns = `id, username, first_name, balance, is_admin, created_at, last_login`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) Register(ctx context.Context, id int64, p Profile) (*User, error) {
	u := &User{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (id, username, first_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+userColumns,
		id, p.Username, p.FirstName,
	).StructScan(u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) AdjustBalance(ctx context.Context, e Entry) (int64, error) {
	if e.Amount == 0 {
		return 0, ErrZeroAmount
	}

	var newBalance int64
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var balance int64
		err := tx.GetContext(ctx, &balance,
			`SELECT balance FROM users WHERE id = $1 FOR UPDATE`,
			e.UserID,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		newBalance = balance + e.Amount
		if newBalance < 0 {
			return ErrInsufficientFunds
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET balance = $1 WHERE id = $2`,
			newBalance, e.UserID,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (user_id, amount, type, details, reference_id, balance_after)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.UserID, e.Amount, string(e.Type), e.Details, e.ReferenceID, newBalance,
		)
		if db.IsUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

func (r *PostgresRepository) AppendTransaction(ctx context.Context, e Entry) error {
	_, err := r.AdjustBalance(ctx, e)
	return err
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT id, user_id, amount, type, details, reference_id, balance_after, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}

	return txs, nil
}

func (r *PostgresRepository) FindByReference(ctx context.Context, ref string) (*Transaction, error) {
	t := &Transaction{}
	err := r.db.GetContext(ctx, t, `
		SELECT id, user_id, amount, type, details, reference_id, balance_after, created_at
		FROM transactions
		WHERE reference_id = $1 AND type = 'topup'
	`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	return users, err
}

func (r *PostgresRepository) SetAdmin(ctx context.Context, id int64, admin bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_admin = $1 WHERE id = $2`, admin, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepository) TouchLogin(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepository) Totals(ctx context.Context, id int64) (*Totals, error) {
	t := &Totals{}
	err := r.db.GetContext(ctx, t, `
		SELECT u.id AS user_id, u.balance,
		       COALESCE((SELECT SUM(amount) FROM transactions WHERE user_id = u.id), 0) AS total
		FROM users u
		WHERE u.id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
