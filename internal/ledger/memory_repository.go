package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/storage/memory"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Table is the transaction table name.
const Table = "transactions"

type memoryRepository struct {
	db *memory.DB
}

// NewMemoryRepository constructs an in-memory ledger sharing db with the
// wallet repository. It declares the txid unique index and the restricting
// reference to wallets.
func NewMemoryRepository(db *memory.DB) Repository {
	db.Unique(Table, "txid", func(row any) string {
		return row.(Transaction).TxID
	}, DuplicateTxIDMessage)
	db.References(Table, wallet.Table, func(row any) string {
		return row.(Transaction).WalletID
	}, wallet.ProtectedMessage)
	return &memoryRepository{db: db}
}

func (r *memoryRepository) Create(ctx context.Context, tx Transaction) error {
	return r.db.Insert(ctx, Table, tx.ID, tx)
}

func (r *memoryRepository) Get(ctx context.Context, id string) (Transaction, error) {
	row, ok := r.db.Get(ctx, Table, id)
	if !ok {
		return Transaction{}, notFound(id)
	}
	return row.(Transaction), nil
}

func (r *memoryRepository) GetForUpdate(ctx context.Context, id string, mode storage.LockMode) (Transaction, error) {
	if err := r.db.Lock(ctx, Table, id, mode); err != nil {
		return Transaction{}, err
	}
	return r.Get(ctx, id)
}

func (r *memoryRepository) Update(ctx context.Context, tx Transaction) error {
	err := r.db.Update(ctx, Table, tx.ID, tx)
	if errors.Is(err, apperr.ErrNotFound) {
		if _, getErr := r.Get(ctx, tx.ID); getErr != nil {
			return notFound(tx.ID)
		}
	}
	return err
}

func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	err := r.db.Delete(ctx, Table, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return notFound(id)
	}
	return err
}

func (r *memoryRepository) List(ctx context.Context, filter ListFilter) (storage.Page[Transaction], error) {
	var matched []Transaction
	for _, row := range r.db.Scan(ctx, Table) {
		t := row.(Transaction)
		if filter.matches(t) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return less(matched[i], matched[j], filter.Ordering)
	})
	return storage.Slice(matched, filter.Pagination), nil
}

func (r *memoryRepository) SumByWallet(ctx context.Context, walletID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, row := range r.db.Scan(ctx, Table) {
		if t := row.(Transaction); t.WalletID == walletID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func less(a, b Transaction, o storage.Ordering) bool {
	var cmp int
	switch o.Field {
	case "amount":
		cmp = a.Amount.Cmp(b.Amount)
	case "txid":
		cmp = strings.Compare(a.TxID, b.TxID)
	case "id":
		cmp = strings.Compare(a.ID, b.ID)
	default:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	}
	if cmp == 0 {
		return a.ID < b.ID
	}
	if o.Desc {
		return cmp > 0
	}
	return cmp < 0
}
