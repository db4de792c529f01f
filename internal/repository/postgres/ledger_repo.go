package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/repository"
)

type ledgerRepo struct{ pool *pgxpool.Pool }

const txnColumns = `id, account_id, type, amount::text, balance_before::text, balance_after::text,
	description, status, actor, reference_id, metadata, created_at`

// Append runs the whole read-compute-insert-write sequence inside one
// database transaction with a row lock on the account. The lock serializes
// appends per account; appends for different accounts proceed in parallel.
// Because insert and balance write share a transaction, the compensating
// "mark failed" path of the design never fires here: either both commit or
// neither does.
func (r *ledgerRepo) Append(ctx context.Context, in repository.AppendInput) (models.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceStr string
	var status models.AccountStatus
	err = tx.QueryRow(ctx,
		`SELECT balance::text, status FROM accounts WHERE id=$1 FOR UPDATE`,
		in.AccountID,
	).Scan(&balanceStr, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, repository.ErrAccountNotFound
		}
		return models.Transaction{}, fmt.Errorf("lock account: %w", err)
	}
	if status == models.AccountFrozen {
		return models.Transaction{}, repository.ErrAccountFrozen
	}
	before, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return models.Transaction{}, err
	}

	// Cross-check the chain before extending it. A mismatch between the
	// stored balance and the newest completed entry freezes the account;
	// no automatic correction is ever attempted.
	var lastAfterStr *string
	err = tx.QueryRow(ctx,
		`SELECT balance_after::text FROM transactions
		  WHERE account_id=$1 AND status='completed'
		  ORDER BY seq DESC LIMIT 1`,
		in.AccountID,
	).Scan(&lastAfterStr)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("chain head: %w", err)
	}
	if lastAfterStr != nil {
		lastAfter, perr := decimal.NewFromString(*lastAfterStr)
		if perr != nil {
			return models.Transaction{}, perr
		}
		if !lastAfter.Equal(before) {
			if _, ferr := tx.Exec(ctx,
				`UPDATE accounts SET status='frozen', last_updated_at=now() WHERE id=$1`,
				in.AccountID,
			); ferr == nil {
				_ = tx.Commit(ctx)
			}
			slog.Error("ledger chain broken, account frozen",
				"account_id", in.AccountID,
				"balance", before.String(),
				"chain_head", lastAfter.String(),
			)
			return models.Transaction{}, repository.ErrIntegrityViolation
		}
	}

	after := before.Add(in.Amount)
	if in.DisallowNegative && after.IsNegative() {
		return models.Transaction{}, repository.ErrInsufficientFunds
	}

	out := models.Transaction{
		ID:            uuid.NewString(),
		AccountID:     in.AccountID,
		Type:          in.Type,
		Amount:        in.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   in.Description,
		Status:        models.TxnCompleted,
		Actor:         in.Actor,
		ReferenceID:   in.ReferenceID,
		Metadata:      in.Metadata,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions(
		    id, account_id, type, amount, balance_before, balance_after,
		    description, status, actor, reference_id, metadata)
		 VALUES($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7,'completed',$8,$9,$10)
		 RETURNING created_at`,
		out.ID, out.AccountID, out.Type,
		out.Amount.String(), out.BalanceBefore.String(), out.BalanceAfter.String(),
		out.Description, out.Actor, out.ReferenceID, out.Metadata,
	).Scan(&out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Transaction{}, repository.ErrDuplicateReference
		}
		return models.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance=$2::numeric, last_updated_at=now() WHERE id=$1`,
		in.AccountID, after.String(),
	)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("write balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (r *ledgerRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTxn(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id=$1`, id))
}

func (r *ledgerRepo) GetByReference(ctx context.Context, referenceID string) (models.Transaction, error) {
	return scanTxn(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions
		  WHERE reference_id=$1 AND status='completed'`, referenceID))
}

func (r *ledgerRepo) LastCompleted(ctx context.Context, accountID string) (models.Transaction, error) {
	return scanTxn(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions
		  WHERE account_id=$1 AND status='completed'
		  ORDER BY seq DESC LIMIT 1`, accountID))
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM transactions
		  WHERE account_id=$1
		  ORDER BY seq DESC
		  LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ledgerRepo) Summarize(ctx context.Context, f repository.SummaryFilter) (repository.LedgerSummary, error) {
	q := `SELECT type, COUNT(*), COALESCE(SUM(amount),0)::text, COALESCE(SUM(ABS(amount)),0)::text
	        FROM transactions WHERE status='completed'`
	args := []any{}
	n := 0
	add := func(cond string, v any) {
		n++
		args = append(args, v)
		q += " AND " + cond + "$" + strconv.Itoa(n)
	}
	if f.AccountID != "" {
		add("account_id=", f.AccountID)
	}
	if f.Type != "" {
		add("type=", f.Type)
	}
	if !f.From.IsZero() {
		add("created_at>=", f.From)
	}
	if !f.To.IsZero() {
		add("created_at<", f.To)
	}
	q += " GROUP BY type"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return repository.LedgerSummary{}, err
	}
	defer rows.Close()

	sum := repository.LedgerSummary{
		PerType:     map[models.TransactionType]repository.TypeSummary{},
		TotalVolume: decimal.Zero,
	}
	for rows.Next() {
		var typ models.TransactionType
		var count int64
		var sumStr, volStr string
		if err := rows.Scan(&typ, &count, &sumStr, &volStr); err != nil {
			return repository.LedgerSummary{}, err
		}
		s, err := decimal.NewFromString(sumStr)
		if err != nil {
			return repository.LedgerSummary{}, err
		}
		v, err := decimal.NewFromString(volStr)
		if err != nil {
			return repository.LedgerSummary{}, err
		}
		sum.PerType[typ] = repository.TypeSummary{Count: count, Sum: s}
		sum.Counts += count
		sum.TotalVolume = sum.TotalVolume.Add(v)
	}
	return sum, rows.Err()
}

func scanTxn(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	var amount, before, after string
	err := row.Scan(&t.ID, &t.AccountID, &t.Type, &amount, &before, &after,
		&t.Description, &t.Status, &t.Actor, &t.ReferenceID, &t.Metadata, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, repository.ErrNoRows
		}
		return models.Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Transaction{}, err
	}
	if t.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return models.Transaction{}, err
	}
	if t.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}
