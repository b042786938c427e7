package wallet

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/storage/memory"
)

// Table is the wallet table name shared with the in-memory ledger.
const Table = "wallets"

type memoryRepository struct {
	db *memory.DB
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development.
func NewMemoryRepository(db *memory.DB) Repository {
	return &memoryRepository{db: db}
}

func (r *memoryRepository) Create(ctx context.Context, wallet Wallet) error {
	if err := CheckBalance(wallet.Balance); err != nil {
		return err
	}
	wallet.Balance = Normalize(wallet.Balance)
	return r.db.Insert(ctx, Table, wallet.ID, wallet)
}

func (r *memoryRepository) Get(ctx context.Context, id string) (Wallet, error) {
	row, ok := r.db.Get(ctx, Table, id)
	if !ok {
		return Wallet{}, notFound(id)
	}
	return row.(Wallet), nil
}

func (r *memoryRepository) GetForUpdate(ctx context.Context, id string, mode storage.LockMode) (Wallet, error) {
	if err := r.db.Lock(ctx, Table, id, mode); err != nil {
		return Wallet{}, err
	}
	return r.Get(ctx, id)
}

func (r *memoryRepository) Save(ctx context.Context, wallet Wallet) error {
	if err := CheckBalance(wallet.Balance); err != nil {
		return err
	}
	wallet.Balance = Normalize(wallet.Balance)
	err := r.db.Update(ctx, Table, wallet.ID, wallet)
	if errors.Is(err, apperr.ErrNotFound) {
		return notFound(wallet.ID)
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

func (r *memoryRepository) List(ctx context.Context, filter ListFilter) (storage.Page[Wallet], error) {
	var matched []Wallet
	for _, row := range r.db.Scan(ctx, Table) {
		w := row.(Wallet)
		if filter.matches(w) {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return less(matched[i], matched[j], filter.Ordering)
	})
	return storage.Slice(matched, filter.Pagination), nil
}

func less(a, b Wallet, o storage.Ordering) bool {
	var cmp int
	switch o.Field {
	case "label":
		cmp = strings.Compare(a.Label, b.Label)
	case "balance":
		cmp = a.Balance.Cmp(b.Balance)
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
