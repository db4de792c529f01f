// Package memory implements the repository interfaces without a database.
// It backs the unit tests and keeps the per-account serialization contract
// of the postgres implementation: one mutex per account around the
// read-compute-insert-write sequence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[string]models.Account
	accountLocks map[string]*sync.Mutex
	txns         []models.Transaction
	txnByID      map[string]int
	completedRef map[string]string // reference_id -> transaction id
	deposits     map[string]models.DepositRequest
	users        map[string]models.User
	audits       []models.AuditLog

	// BalanceWriteHook, when set, runs in place of the (infallible) in-memory
	// balance write. Tests use it to simulate a storage failure between the
	// transaction insert and the balance update.
	BalanceWriteHook func(accountID string) error
}

func NewStore() *Store {
	return &Store{
		accounts:     map[string]models.Account{},
		accountLocks: map[string]*sync.Mutex{},
		txnByID:      map[string]int{},
		completedRef: map[string]string{},
		deposits:     map[string]models.DepositRequest{},
		users:        map[string]models.User{},
	}
}

func (s *Store) lockFor(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.accountLocks[accountID]
	if !ok {
		m = &sync.Mutex{}
		s.accountLocks[accountID] = m
	}
	return m
}

// ---- Accounts ----

func (s *Store) Create(_ context.Context, userID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.Account{
		ID:            uuid.NewString(),
		UserID:        userID,
		Balance:       decimal.Zero,
		Status:        models.AccountActive,
		CreatedAt:     time.Now(),
		LastUpdatedAt: time.Now(),
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) Get(_ context.Context, id string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	return a, nil
}

func (s *Store) GetByUser(_ context.Context, userID string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	return models.Account{}, repository.ErrAccountNotFound
}

func (s *Store) SetStatus(_ context.Context, id string, status models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.Status = status
	a.LastUpdatedAt = time.Now()
	s.accounts[id] = a
	return nil
}

// ---- Ledger ----

func (s *Store) Append(_ context.Context, in repository.AppendInput) (models.Transaction, error) {
	lock := s.lockFor(in.AccountID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	a, ok := s.accounts[in.AccountID]
	s.mu.Unlock()
	if !ok {
		return models.Transaction{}, repository.ErrAccountNotFound
	}
	if a.Status == models.AccountFrozen {
		return models.Transaction{}, repository.ErrAccountFrozen
	}

	if last, err := s.LastCompleted(nil, in.AccountID); err == nil {
		if !last.BalanceAfter.Equal(a.Balance) {
			_ = s.SetStatus(nil, in.AccountID, models.AccountFrozen)
			return models.Transaction{}, repository.ErrIntegrityViolation
		}
	}

	if in.ReferenceID != nil {
		s.mu.RLock()
		_, dup := s.completedRef[*in.ReferenceID]
		s.mu.RUnlock()
		if dup {
			return models.Transaction{}, repository.ErrDuplicateReference
		}
	}

	after := a.Balance.Add(in.Amount)
	if in.DisallowNegative && after.IsNegative() {
		return models.Transaction{}, repository.ErrInsufficientFunds
	}

	t := models.Transaction{
		ID:            uuid.NewString(),
		AccountID:     in.AccountID,
		Type:          in.Type,
		Amount:        in.Amount,
		BalanceBefore: a.Balance,
		BalanceAfter:  after,
		Description:   in.Description,
		Status:        models.TxnCompleted,
		Actor:         in.Actor,
		ReferenceID:   in.ReferenceID,
		Metadata:      in.Metadata,
		CreatedAt:     time.Now(),
	}

	s.mu.Lock()
	s.txns = append(s.txns, t)
	s.txnByID[t.ID] = len(s.txns) - 1
	s.mu.Unlock()

	if s.BalanceWriteHook != nil {
		if err := s.BalanceWriteHook(in.AccountID); err != nil {
			// Compensating label: the appended entry is re-marked failed, the
			// balance stays untouched.
			s.mu.Lock()
			s.txns[s.txnByID[t.ID]].Status = models.TxnFailed
			s.mu.Unlock()
			return models.Transaction{}, fmt.Errorf("write balance: %w", err)
		}
	}

	s.mu.Lock()
	a.Balance = after
	a.LastUpdatedAt = t.CreatedAt
	s.accounts[in.AccountID] = a
	if in.ReferenceID != nil {
		s.completedRef[*in.ReferenceID] = t.ID
	}
	s.mu.Unlock()
	return t, nil
}

func (s *Store) GetByID(_ context.Context, id string) (models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.txnByID[id]
	if !ok {
		return models.Transaction{}, repository.ErrNoRows
	}
	return s.txns[i], nil
}

func (s *Store) GetByReference(_ context.Context, referenceID string) (models.Transaction, error) {
	s.mu.RLock()
	id, ok := s.completedRef[referenceID]
	s.mu.RUnlock()
	if !ok {
		return models.Transaction{}, repository.ErrNoRows
	}
	return s.GetByID(nil, id)
}

func (s *Store) LastCompleted(_ context.Context, accountID string) (models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.AccountID == accountID && t.Status == models.TxnCompleted {
			return t, nil
		}
	}
	return models.Transaction{}, repository.ErrNoRows
}

func (s *Store) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.Transaction
	for _, t := range s.txns {
		if t.AccountID == accountID {
			all = append(all, t)
		}
	}
	// newest first, matching the postgres ordering
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) Summarize(_ context.Context, f repository.SummaryFilter) (repository.LedgerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := repository.LedgerSummary{
		PerType:     map[models.TransactionType]repository.TypeSummary{},
		TotalVolume: decimal.Zero,
	}
	for _, t := range s.txns {
		if t.Status != models.TxnCompleted {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !t.CreatedAt.Before(f.To) {
			continue
		}
		ts := sum.PerType[t.Type]
		ts.Count++
		ts.Sum = ts.Sum.Add(t.Amount)
		sum.PerType[t.Type] = ts
		sum.Counts++
		sum.TotalVolume = sum.TotalVolume.Add(t.Amount.Abs())
	}
	return sum, nil
}

// ---- Deposit requests ----

func (s *Store) CreateDeposit(_ context.Context, d models.DepositRequest) (models.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Status = models.DepositPending
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	s.deposits[d.ID] = d
	return d, nil
}

func (s *Store) GetDeposit(_ context.Context, id string) (models.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deposits[id]
	if !ok {
		return models.DepositRequest{}, repository.ErrNoRows
	}
	return d, nil
}

func (s *Store) ListDepositsByAccount(_ context.Context, accountID string, limit, offset int) ([]models.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.DepositRequest
	for _, d := range s.deposits {
		if d.AccountID == accountID {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) MarkDepositTerminal(_ context.Context, id string, status models.DepositStatus, adminNotes string) (models.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deposits[id]
	if !ok || d.Status != models.DepositPending {
		return models.DepositRequest{}, repository.ErrNoRows
	}
	d.Status = status
	d.AdminNotes = adminNotes
	d.UpdatedAt = time.Now()
	s.deposits[id] = d
	return d, nil
}

// ---- Users ----

func (s *Store) CreateUser(_ context.Context, username, email, hash, role string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return models.User{}, repository.ErrAlreadyExists
		}
	}
	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNoRows
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- Audit logs ----

func (s *Store) CreateAudit(_ context.Context, l models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = uuid.NewString()
	l.CreatedAt = time.Now()
	s.audits = append(s.audits, l)
	return nil
}

// Interface adapters. The single Store satisfies all repository interfaces
// through these views, mirroring the postgres factory.

type Repositories struct {
	Users           repository.Users
	Accounts        repository.Accounts
	Ledger          repository.Ledger
	DepositRequests repository.DepositRequests
	AuditLogs       repository.AuditLogs
}

func NewRepositories(s *Store) Repositories {
	return Repositories{
		Users:           usersView{s},
		Accounts:        s,
		Ledger:          s,
		DepositRequests: depositsView{s},
		AuditLogs:       auditView{s},
	}
}

type usersView struct{ s *Store }

func (v usersView) Create(ctx context.Context, username, email, hash, role string) (models.User, error) {
	return v.s.CreateUser(ctx, username, email, hash, role)
}
func (v usersView) GetByID(ctx context.Context, id string) (models.User, error) {
	return v.s.GetUserByID(ctx, id)
}
func (v usersView) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return v.s.GetUserByEmail(ctx, email)
}
func (v usersView) List(ctx context.Context) ([]models.User, error) { return v.s.ListUsers(ctx) }

type depositsView struct{ s *Store }

func (v depositsView) Create(ctx context.Context, d models.DepositRequest) (models.DepositRequest, error) {
	return v.s.CreateDeposit(ctx, d)
}
func (v depositsView) Get(ctx context.Context, id string) (models.DepositRequest, error) {
	return v.s.GetDeposit(ctx, id)
}
func (v depositsView) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.DepositRequest, error) {
	return v.s.ListDepositsByAccount(ctx, accountID, limit, offset)
}
func (v depositsView) MarkTerminal(ctx context.Context, id string, status models.DepositStatus, adminNotes string) (models.DepositRequest, error) {
	return v.s.MarkDepositTerminal(ctx, id, status, adminNotes)
}

type auditView struct{ s *Store }

func (v auditView) Create(ctx context.Context, l models.AuditLog) error {
	return v.s.CreateAudit(ctx, l)
}
