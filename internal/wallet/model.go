package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/storage"
)

// Wallet is an account whose balance never drops below zero. The balance is
// changed only through the transaction engine.
type Wallet struct {
	ID        string
	Label     string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows a wallet listing.
type ListFilter struct {
	Label      string
	BalanceMin *decimal.Decimal
	BalanceMax *decimal.Decimal
	Ordering   storage.Ordering
	Pagination storage.Pagination
}

// Orderable lists the fields a wallet listing can be ordered by.
var Orderable = []string{"id", "label", "balance", "created_at"}

// DefaultOrdering keeps listings in creation order.
const DefaultOrdering = "created_at"

func (f ListFilter) matches(w Wallet) bool {
	if f.Label != "" && w.Label != f.Label {
		return false
	}
	if f.BalanceMin != nil && w.Balance.LessThan(*f.BalanceMin) {
		return false
	}
	if f.BalanceMax != nil && w.Balance.GreaterThan(*f.BalanceMax) {
		return false
	}
	return true
}
