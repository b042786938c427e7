package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.DB, Repository) {
	t.Helper()
	db := memory.New(memory.Options{LockTimeout: time.Second})
	repo := NewMemoryRepository(db)
	return NewService(repo, db, logging.Discard()), db, repo
}

func TestCreateWallet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{Label: "  savings ", Balance: decimal.RequireFromString("100.1")})
	require.NoError(t, err)
	assert.Equal(t, "savings", w.Label)
	assert.Equal(t, "100.10", w.Balance.StringFixed(Scale))
	_, err = uuid.Parse(w.ID)
	assert.NoError(t, err)

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
}

func TestCreateWalletRejectsNegativeBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Label: "debt", Balance: decimal.RequireFromString("-0.01")})
	require.ErrorIs(t, err, apperr.ErrInvariantViolation)

	page, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreateWalletRejectsUnrepresentableBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Label: "fine", Balance: decimal.RequireFromString("100.005")})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "balance: ensure that there are no more than 2 decimal places.", err.Error())

	_, err = svc.Create(ctx, CreateInput{Label: "huge", Balance: decimal.RequireFromString("1e20")})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "balance: ensure that there are no more than 16 digits before the decimal point.", err.Error())

	w, err := svc.Create(ctx, CreateInput{Label: "edge", Balance: decimal.RequireFromString("9999999999999999.99")})
	require.NoError(t, err)
	assert.Equal(t, "9999999999999999.99", w.Balance.StringFixed(Scale))

	page, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCreateWalletRejectsBlankLabel(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{Label: "   ", Balance: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestUpdateRenamesWithoutTouchingBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	w, err := svc.Create(ctx, CreateInput{Label: "old", Balance: decimal.NewFromInt(5)})
	require.NoError(t, err)

	label := "new"
	same := decimal.RequireFromString("5.00")
	updated, err := svc.Update(ctx, w.ID, UpdateInput{Label: &label, Balance: &same})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Label)
	assert.True(t, updated.Balance.Equal(decimal.NewFromInt(5)))

	other := decimal.NewFromInt(500)
	_, err = svc.Update(ctx, w.ID, UpdateInput{Balance: &other})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Label)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(5)))
}

func TestUpdateWaitsForBalanceWriter(t *testing.T) {
	svc, db, repo := newTestService(t)
	ctx := context.Background()
	w, err := svc.Create(ctx, CreateInput{Label: "old", Balance: decimal.NewFromInt(5)})
	require.NoError(t, err)

	held := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- db.InTx(ctx, func(ctx context.Context) error {
			locked, err := repo.GetForUpdate(ctx, w.ID, storage.LockWait)
			if err != nil {
				return err
			}
			close(held)
			time.Sleep(30 * time.Millisecond)
			locked.Balance = decimal.NewFromInt(42)
			return repo.Save(ctx, locked)
		})
	}()
	<-held

	label := "renamed"
	updated, err := svc.Update(ctx, w.ID, UpdateInput{Label: &label})
	require.NoError(t, err)
	require.NoError(t, <-done)

	// The rename observed the committed balance instead of overwriting it.
	assert.True(t, updated.Balance.Equal(decimal.NewFromInt(42)))
	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Label)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(42)))
}

func TestDeleteWallet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	w, err := svc.Create(ctx, CreateInput{Label: "gone", Balance: decimal.Zero})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, w.ID))
	_, err = svc.Get(ctx, w.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, w.ID), apperr.ErrNotFound)
}

func TestRepositorySaveRejectsNegativeBalance(t *testing.T) {
	_, db, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	w := Wallet{ID: uuid.NewString(), Label: "x", Balance: decimal.NewFromInt(1), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(ctx, w))

	err := db.InTx(ctx, func(ctx context.Context) error {
		locked, err := repo.GetForUpdate(ctx, w.ID, storage.LockNoWait)
		if err != nil {
			return err
		}
		locked.Balance = decimal.NewFromInt(-1)
		return repo.Save(ctx, locked)
	})
	assert.ErrorIs(t, err, apperr.ErrInvariantViolation)

	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(1)))
}

func TestListFiltersOrdersAndPages(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, in := range []CreateInput{
		{Label: "a", Balance: decimal.NewFromInt(30)},
		{Label: "b", Balance: decimal.NewFromInt(10)},
		{Label: "a", Balance: decimal.NewFromInt(20)},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListFilter{Label: "a", Ordering: storage.Ordering{Field: "balance"}})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "20.00", page.Items[0].Balance.StringFixed(Scale))
	assert.Equal(t, "30.00", page.Items[1].Balance.StringFixed(Scale))

	floor := decimal.NewFromInt(15)
	page, err = svc.List(ctx, ListFilter{BalanceMin: &floor, Ordering: storage.Ordering{Field: "created_at", Desc: true}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "20.00", page.Items[0].Balance.StringFixed(Scale))

	page, err = svc.List(ctx, ListFilter{Pagination: storage.Pagination{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "20.00", page.Items[0].Balance.StringFixed(Scale))
}
