package provision

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

const resourceColumns = `id, user_id, account_ref, resource_id, name, size_slug, created_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Add(ctx context.Context, res *Resource) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO user_resources (user_id, account_ref, resource_id, name, size_slug)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, res.UserID, res.AccountRef, res.ResourceID, res.Name, res.SizeSlug).Scan(&res.ID, &res.CreatedAt)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]Resource, error) {
	var out []Resource
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+resourceColumns+` FROM user_resources WHERE user_id = $1 ORDER BY created_at`, userID)
	return out, err
}

func (r *PostgresRepository) FindOwned(ctx context.Context, userID, resourceID int64) (*Resource, error) {
	res := &Resource{}
	err := r.db.GetContext(ctx, res,
		`SELECT `+resourceColumns+` FROM user_resources WHERE user_id = $1 AND resource_id = $2`, userID, resourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotOwner
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PostgresRepository) Remove(ctx context.Context, userID, resourceID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_resources WHERE user_id = $1 AND resource_id = $2`, userID, resourceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResourceNotFound
	}
	return nil
}
