package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliaskarov/proxypanel/internal/auth"
	"github.com/aliaskarov/proxypanel/internal/inventory"
	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/payment"
	"github.com/aliaskarov/proxypanel/internal/repository/memory"
	"github.com/aliaskarov/proxypanel/internal/services"
)

type stubAllocator struct {
	mu   sync.Mutex
	next int
}

func (a *stubAllocator) Reserve(context.Context, inventory.Selector) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return fmt.Sprintf("alloc-%d", a.next), nil
}

func (a *stubAllocator) Release(context.Context, string) error { return nil }

type apiFixture struct {
	srv   *httptest.Server
	tm    *auth.TokenManager
	repos memory.Repositories
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	repos := memory.NewRepositories(memory.NewStore())
	tm := auth.NewTokenManager("access-secret", "refresh-secret", "proxypanel-test", time.Minute, time.Hour)

	userSvc := services.NewUserService(repos.Users, repos.Accounts, tm)
	ledgerSvc := services.NewLedgerService(repos.Ledger, repos.AuditLogs, nil, false)
	depositSvc := services.NewDepositService(repos.DepositRequests, repos.Accounts, ledgerSvc,
		payment.BankTransferGenerator{}, decimal.RequireFromString("10000"))
	purchaseSvc := services.NewPurchaseService(ledgerSvc, &stubAllocator{})
	reportSvc := services.NewReportingService(repos.Ledger, repos.Accounts)

	srv := httptest.NewServer(NewRouter(Deps{
		Users:     userSvc,
		Ledger:    ledgerSvc,
		Deposits:  depositSvc,
		Purchases: purchaseSvc,
		Reporting: reportSvc,
		Tokens:    tm,
	}))
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, tm: tm, repos: repos}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func (f *apiFixture) adminToken(t *testing.T) string {
	t.Helper()
	u, err := f.repos.Users.Create(context.Background(), "ops", "ops@example.com", "x", "admin")
	require.NoError(t, err)
	pair, err := f.tm.GeneratePair(u.ID, u.Role)
	require.NoError(t, err)
	return pair.AccessToken
}

func (f *apiFixture) userToken(t *testing.T) string {
	t.Helper()
	resp, _ := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, raw := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(raw, &pair))
	return pair.AccessToken
}

func TestHealthAndMetricsOpen(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWalletRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/wallet/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/wallet/balance", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRequiresRole(t *testing.T) {
	f := newAPIFixture(t)
	user := f.userToken(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/admin/users", user, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/admin/users", f.adminToken(t), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDepositLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	user := f.userToken(t)
	admin := f.adminToken(t)

	// Below the configured minimum.
	resp, _ := f.do(t, http.MethodPost, "/api/v1/wallet/deposits", user, map[string]string{"amount": "500"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw := f.do(t, http.MethodPost, "/api/v1/wallet/deposits", user, map[string]string{"amount": "100000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var dep models.DepositRequest
	require.NoError(t, json.Unmarshal(raw, &dep))
	assert.Equal(t, models.DepositPending, dep.Status)
	assert.NotEmpty(t, dep.PaymentReference)

	resp, raw = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+dep.ID+"/transition", admin,
		map[string]string{"status": "completed", "admin_notes": "wire received"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = f.do(t, http.MethodGet, "/api/v1/wallet/balance", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var acc models.Account
	require.NoError(t, json.Unmarshal(raw, &acc))
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("100000")))

	// Replaying the completion conflicts with nothing.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+dep.ID+"/transition", admin,
		map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// But flipping the outcome does.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+dep.ID+"/transition", admin,
		map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPurchaseOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	user := f.userToken(t)
	admin := f.adminToken(t)

	resp, raw := f.do(t, http.MethodPost, "/api/v1/wallet/deposits", user, map[string]string{"amount": "100000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var dep models.DepositRequest
	require.NoError(t, json.Unmarshal(raw, &dep))
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+dep.ID+"/transition", admin,
		map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = f.do(t, http.MethodPost, "/api/v1/wallet/purchase", user, map[string]any{
		"selector": map[string]string{"country": "de"},
		"price":    "25000",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var res services.PurchaseResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.NotEmpty(t, res.AllocationID)
	assert.True(t, res.Transaction.BalanceAfter.Equal(decimal.RequireFromString("75000")))

	// Draining past the balance is refused.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/wallet/purchase", user, map[string]any{
		"selector": map[string]string{"country": "de"},
		"price":    "999999",
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, raw = f.do(t, http.MethodGet, "/api/v1/wallet/transactions", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var txns []models.Transaction
	require.NoError(t, json.Unmarshal(raw, &txns))
	require.Len(t, txns, 2)
	assert.Equal(t, models.TxnPurchase, txns[0].Type)
	assert.Equal(t, models.TxnDeposit, txns[1].Type)
}

func TestAdjustmentAndReportsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	user := f.userToken(t)
	admin := f.adminToken(t)

	resp, raw := f.do(t, http.MethodPost, "/api/v1/wallet/deposits", user, map[string]string{"amount": "100000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var dep models.DepositRequest
	require.NoError(t, json.Unmarshal(raw, &dep))
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/deposits/"+dep.ID+"/transition", admin,
		map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = f.do(t, http.MethodPost, "/api/v1/admin/adjustments", admin, map[string]string{
		"account_id":  dep.AccountID,
		"amount":      "-30000",
		"description": "correction of mistaken deposit",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var txn models.Transaction
	require.NoError(t, json.Unmarshal(raw, &txn))
	assert.Equal(t, models.TxnAdjustment, txn.Type)
	assert.True(t, txn.BalanceAfter.Equal(decimal.RequireFromString("70000")))

	// Zero-amount adjustments carry no information.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/adjustments", admin, map[string]string{
		"account_id": dep.AccountID, "amount": "0", "description": "noop",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = f.do(t, http.MethodGet, "/api/v1/admin/reports/summary?account_id="+dep.AccountID, admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, int64(2), sum.Count)

	resp, raw = f.do(t, http.MethodGet, "/api/v1/admin/reports/verify/"+dep.AccountID, admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report services.ChainReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.True(t, report.Consistent)
	assert.Equal(t, 2, report.Checked)
}
