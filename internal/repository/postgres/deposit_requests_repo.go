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

type depositRequestsRepo struct{ pool *pgxpool.Pool }

const depositColumns = `id, account_id, amount::text, status, payment_reference, admin_notes, created_at, updated_at`

func (r *depositRequestsRepo) Create(ctx context.Context, d models.DepositRequest) (models.DepositRequest, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deposit_requests(id, account_id, amount, status, payment_reference, admin_notes)
		 VALUES($1,$2,$3::numeric,'pending',$4,$5)
		 RETURNING created_at, updated_at`,
		d.ID, d.AccountID, d.Amount.String(), d.PaymentReference, d.AdminNotes,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return models.DepositRequest{}, err
	}
	d.Status = models.DepositPending
	return d, nil
}

func (r *depositRequestsRepo) Get(ctx context.Context, id string) (models.DepositRequest, error) {
	return scanDeposit(r.pool.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests WHERE id=$1`, id))
}

func (r *depositRequestsRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.DepositRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests
		  WHERE account_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DepositRequest
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkTerminal transitions pending -> terminal with a conditional update, so
// two racing transitions cannot both win.
func (r *depositRequestsRepo) MarkTerminal(ctx context.Context, id string, status models.DepositStatus, adminNotes string) (models.DepositRequest, error) {
	return scanDeposit(r.pool.QueryRow(ctx,
		`UPDATE deposit_requests
		    SET status=$2, admin_notes=$3, updated_at=now()
		  WHERE id=$1 AND status='pending'
		  RETURNING `+depositColumns,
		id, status, adminNotes,
	))
}

func scanDeposit(row pgx.Row) (models.DepositRequest, error) {
	var d models.DepositRequest
	var amount string
	err := row.Scan(&d.ID, &d.AccountID, &amount, &d.Status,
		&d.PaymentReference, &d.AdminNotes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DepositRequest{}, repository.ErrNoRows
		}
		return models.DepositRequest{}, err
	}
	d.Amount, err = decimal.NewFromString(amount)
	return d, err
}
