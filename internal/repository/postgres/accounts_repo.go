package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/repository"
)

type accountsRepo struct{ pool *pgxpool.Pool }

func (r *accountsRepo) Create(ctx context.Context, userID string) (models.Account, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts(id, user_id, balance, status) VALUES($1,$2,0,'active')`,
		id, userID,
	)
	if err != nil {
		return models.Account{}, err
	}
	return r.Get(ctx, id)
}

func (r *accountsRepo) Get(ctx context.Context, id string) (models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, user_id, balance::text, status, created_at, last_updated_at
		   FROM accounts WHERE id=$1`, id))
}

func (r *accountsRepo) GetByUser(ctx context.Context, userID string) (models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, user_id, balance::text, status, created_at, last_updated_at
		   FROM accounts WHERE user_id=$1`, userID))
}

func (r *accountsRepo) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET status=$2, last_updated_at=now() WHERE id=$1`,
		id, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

func (r *accountsRepo) scanOne(row pgx.Row) (models.Account, error) {
	var a models.Account
	var balance string
	err := row.Scan(&a.ID, &a.UserID, &balance, &a.Status, &a.CreatedAt, &a.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, repository.ErrAccountNotFound
		}
		return models.Account{}, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	return a, err
}
