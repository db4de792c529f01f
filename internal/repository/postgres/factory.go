package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/aliaskarov/proxypanel/internal/repository"
)

type Repositories struct {
	Users           repo.Users
	Accounts        repo.Accounts
	Ledger          repo.Ledger
	DepositRequests repo.DepositRequests
	AuditLogs       repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:           &usersRepo{pool},
		Accounts:        &accountsRepo{pool},
		Ledger:          &ledgerRepo{pool},
		DepositRequests: &depositRequestsRepo{pool},
		AuditLogs:       &auditLogsRepo{pool},
	}
}
