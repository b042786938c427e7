// Package ledger stores transaction records. It never touches wallet
// balances; the transaction engine keeps the two in step.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/storage"
)

// Transaction records a signed balance delta applied to one wallet.
type Transaction struct {
	ID        string
	TxID      string
	Amount    decimal.Decimal
	WalletID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows a transaction listing.
type ListFilter struct {
	WalletID   string
	TxID       string
	Amount     *decimal.Decimal
	Ordering   storage.Ordering
	Pagination storage.Pagination
}

// Orderable lists the fields a transaction listing can be ordered by.
var Orderable = []string{"id", "amount", "txid", "created_at"}

// DefaultOrdering keeps listings in creation order.
const DefaultOrdering = "created_at"

func (f ListFilter) matches(t Transaction) bool {
	if f.WalletID != "" && t.WalletID != f.WalletID {
		return false
	}
	if f.TxID != "" && t.TxID != f.TxID {
		return false
	}
	if f.Amount != nil && !t.Amount.Equal(*f.Amount) {
		return false
	}
	return true
}
