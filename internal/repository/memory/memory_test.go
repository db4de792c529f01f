package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliaskarov/proxypanel/internal/models"
	"github.com/aliaskarov/proxypanel/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAccount(t *testing.T, s *Store) models.Account {
	t.Helper()
	a, err := s.Create(context.Background(), "user-1")
	require.NoError(t, err)
	return a
}

func TestAppendComputesBalanceChain(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	t1, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("100000"),
		Description: "wire", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, t1.BalanceBefore.Equal(decimal.Zero))
	assert.True(t, t1.BalanceAfter.Equal(dec("100000")))
	assert.Equal(t, models.TxnCompleted, t1.Status)

	t2, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnAdjustment, Amount: dec("-30000"),
		Description: "correction", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, t2.BalanceBefore.Equal(t1.BalanceAfter))
	assert.True(t, t2.BalanceAfter.Equal(dec("70000")))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("70000")))
}

func TestAppendRejectsDuplicateReference(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	ref := "deposit-req-1"
	_, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("500"), ReferenceID: &ref,
	})
	require.NoError(t, err)

	_, err = s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("500"), ReferenceID: &ref,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateReference)

	got, err := s.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("500")))
}

func TestAppendDisallowNegative(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	_, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("100"),
	})
	require.NoError(t, err)

	_, err = s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnPurchase, Amount: dec("-150"),
		DisallowNegative: true,
	})
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	// Without the flag the same debit goes through.
	got, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnAdjustment, Amount: dec("-150"),
	})
	require.NoError(t, err)
	assert.True(t, got.BalanceAfter.Equal(dec("-50")))
}

func TestAppendFrozenAccountRejected(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	require.NoError(t, s.SetStatus(ctx, a.ID, models.AccountFrozen))
	_, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("10"),
	})
	assert.ErrorIs(t, err, repository.ErrAccountFrozen)
}

func TestAppendFreezesOnBrokenChain(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	_, err := s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("1000"),
	})
	require.NoError(t, err)

	// Corrupt the stored balance behind the ledger's back.
	s.mu.Lock()
	acc := s.accounts[a.ID]
	acc.Balance = dec("999999")
	s.accounts[a.ID] = acc
	s.mu.Unlock()

	_, err = s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("10"),
	})
	assert.ErrorIs(t, err, repository.ErrIntegrityViolation)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountFrozen, got.Status)

	_, err = s.Append(ctx, repository.AppendInput{
		AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("10"),
	})
	assert.ErrorIs(t, err, repository.ErrAccountFrozen)
}

func TestAppendUnknownAccount(t *testing.T) {
	s := NewStore()
	_, err := s.Append(context.Background(), repository.AppendInput{
		AccountID: "nope", Type: models.TxnDeposit, Amount: dec("10"),
	})
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestConcurrentAppendsSerialize(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, repository.AppendInput{
				AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("1"),
				Description: fmt.Sprintf("concurrent %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(n)))

	// Oldest first: each entry must link to its predecessor.
	txns, err := s.ListByAccount(ctx, a.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns, n)
	for i, j := 0, len(txns)-1; i < j; i, j = i+1, j-1 {
		txns[i], txns[j] = txns[j], txns[i]
	}
	prev := decimal.Zero
	for _, tr := range txns {
		assert.True(t, tr.BalanceBefore.Equal(prev), "chain break at %s", tr.ID)
		assert.True(t, tr.BalanceAfter.Equal(tr.BalanceBefore.Add(tr.Amount)))
		prev = tr.BalanceAfter
	}
}

func TestListByAccountPaging(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, repository.AppendInput{
			AccountID: a.ID, Type: models.TxnDeposit, Amount: dec("10"),
			Description: fmt.Sprintf("d%d", i),
		})
		require.NoError(t, err)
	}

	page, err := s.ListByAccount(ctx, a.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Newest first.
	assert.Equal(t, "d4", page[0].Description)
	assert.Equal(t, "d3", page[1].Description)

	page, err = s.ListByAccount(ctx, a.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "d0", page[0].Description)

	page, err = s.ListByAccount(ctx, a.ID, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSummarizeFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)
	b := newAccount(t, s)

	mustAppend := func(acc string, typ models.TransactionType, amt string) {
		t.Helper()
		_, err := s.Append(ctx, repository.AppendInput{AccountID: acc, Type: typ, Amount: dec(amt)})
		require.NoError(t, err)
	}
	mustAppend(a.ID, models.TxnDeposit, "100")
	mustAppend(a.ID, models.TxnDeposit, "50")
	mustAppend(a.ID, models.TxnPurchase, "-30")
	mustAppend(b.ID, models.TxnDeposit, "7")

	sum, err := s.Summarize(ctx, repository.SummaryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Counts)
	assert.True(t, sum.TotalVolume.Equal(dec("187")))
	assert.Equal(t, int64(3), sum.PerType[models.TxnDeposit].Count)
	assert.True(t, sum.PerType[models.TxnDeposit].Sum.Equal(dec("157")))
	assert.True(t, sum.PerType[models.TxnPurchase].Sum.Equal(dec("-30")))

	sum, err = s.Summarize(ctx, repository.SummaryFilter{AccountID: a.ID, Type: models.TxnDeposit})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Counts)
	assert.True(t, sum.PerType[models.TxnDeposit].Sum.Equal(dec("150")))
}

func TestMarkDepositTerminalOnlyOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := newAccount(t, s)

	d, err := s.CreateDeposit(ctx, models.DepositRequest{AccountID: a.ID, Amount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, d.Status)

	d, err = s.MarkDepositTerminal(ctx, d.ID, models.DepositCancelled, "user asked")
	require.NoError(t, err)
	assert.Equal(t, models.DepositCancelled, d.Status)
	assert.Equal(t, "user asked", d.AdminNotes)

	_, err = s.MarkDepositTerminal(ctx, d.ID, models.DepositCompleted, "")
	assert.ErrorIs(t, err, repository.ErrNoRows)
}
