package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/metrics"
	"github.com/aliaskarov/proxypanel/internal/models"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
)

// ReportingService is the read-only view over completed transactions.
// Dashboards read it; nothing consults it for write decisions. The current
// balance authoritative for writes is always the account store's value.
type ReportingService struct {
	ledger   repo.Ledger
	accounts repo.Accounts
}

func NewReportingService(l repo.Ledger, a repo.Accounts) *ReportingService {
	return &ReportingService{ledger: l, accounts: a}
}

func (s *ReportingService) Summarize(ctx context.Context, f repo.SummaryFilter) (repo.LedgerSummary, error) {
	return s.ledger.Summarize(ctx, f)
}

// ChainReport is the result of cross-checking one account against its
// transaction history.
type ChainReport struct {
	AccountID     string          `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	ChainHead     decimal.Decimal `json:"chain_head"`
	Checked       int             `json:"transactions_checked"`
	Consistent    bool            `json:"consistent"`
	Discrepancies []string        `json:"discrepancies,omitempty"`
}

// VerifyAccount replays the account's completed transactions and checks the
// three chain invariants: per-entry arithmetic, link continuity, and the
// stored balance matching the chain head. Divergence is an integrity alarm,
// not something to correct here.
func (s *ReportingService) VerifyAccount(ctx context.Context, accountID string) (ChainReport, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return ChainReport{}, err
	}

	report := ChainReport{AccountID: accountID, Balance: acc.Balance, ChainHead: decimal.Zero}

	// Oldest first. ListByAccount pages newest-first, so pull and reverse.
	const page = 500
	var txns []repoTxn
	for offset := 0; ; offset += page {
		batch, err := s.ledger.ListByAccount(ctx, accountID, page, offset)
		if err != nil {
			return ChainReport{}, err
		}
		for _, t := range batch {
			if t.Status == models.TxnCompleted {
				txns = append(txns, repoTxn{t.Amount, t.BalanceBefore, t.BalanceAfter, t.ID})
			}
		}
		if len(batch) < page {
			break
		}
	}
	for i, j := 0, len(txns)-1; i < j; i, j = i+1, j-1 {
		txns[i], txns[j] = txns[j], txns[i]
	}

	prevAfter := decimal.Zero
	for i, t := range txns {
		if !t.after.Equal(t.before.Add(t.amount)) {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("transaction %s: balance_after %s != balance_before %s + amount %s",
					t.id, t.after, t.before, t.amount))
		}
		if i > 0 && !t.before.Equal(prevAfter) {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("transaction %s: balance_before %s breaks chain at %s",
					t.id, t.before, prevAfter))
		}
		prevAfter = t.after
	}
	report.Checked = len(txns)
	report.ChainHead = prevAfter

	if last, err := s.ledger.LastCompleted(ctx, accountID); err == nil {
		report.ChainHead = last.BalanceAfter
	} else if !errors.Is(err, repo.ErrNoRows) {
		return ChainReport{}, err
	}

	if !acc.Balance.Equal(report.ChainHead) {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("account balance %s != chain head %s", acc.Balance, report.ChainHead))
	}

	report.Consistent = len(report.Discrepancies) == 0
	if !report.Consistent {
		metrics.IntegrityViolations.Inc()
		slog.Error("ledger chain verification failed",
			"account_id", accountID, "discrepancies", len(report.Discrepancies))
	}
	return report, nil
}

type repoTxn struct {
	amount, before, after decimal.Decimal
	id                    string
}
