// Package transaction applies transactions to wallet balances. Every mutation
// runs in one atomic unit that locks the transaction row first and then each
// touched wallet in ascending id order, so overlapping operations cannot
// deadlock and no balance is ever committed below zero.
package transaction

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/event"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Client-facing messages.
const (
	MsgDenied       = "Transaction denied: Wallet balance cannot be negative."
	MsgMissing      = "Transaction denied: Wallet or amount not provided."
	MsgLocked       = "The wallet is currently locked. Please try again later."
	MsgDeleteDenied = "It is impossible to delete the transaction: the wallet balance cannot be negative."
	MsgDeleteLocked = "It is impossible to delete the transaction: the wallet is currently locked. Please try again later."
)

const maxTxIDLength = 255

// Config selects the lock acquisition mode of each mutation.
type Config struct {
	CreateLock storage.LockMode
	AmendLock  storage.LockMode
	DeleteLock storage.LockMode
}

// DefaultConfig fails fast on create and blocks on amend and delete.
func DefaultConfig() Config {
	return Config{CreateLock: storage.LockNoWait, AmendLock: storage.LockWait, DeleteLock: storage.LockWait}
}

// Service is the transaction application engine.
type Service struct {
	tx        storage.Transactor
	wallets   wallet.Repository
	ledger    ledger.Repository
	publisher event.Publisher
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// NewService wires the engine. publisher may be nil.
func NewService(tx storage.Transactor, wallets wallet.Repository, ledger ledger.Repository, publisher event.Publisher, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		tx:        tx,
		wallets:   wallets,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput captures a new transaction.
type CreateInput struct {
	TxID     string
	Amount   decimal.Decimal
	WalletID string
}

// AmendInput carries a partial update. Nil fields keep their current value.
type AmendInput struct {
	Amount   *decimal.Decimal
	WalletID *string
}

// Create applies a new transaction to its wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Transaction, error) {
	txid := strings.TrimSpace(input.TxID)
	if txid == "" {
		return ledger.Transaction{}, apperr.Invalid("txid: this field may not be blank.")
	}
	if utf8.RuneCountInString(txid) > maxTxIDLength {
		return ledger.Transaction{}, apperr.Invalid("txid: ensure this field has no more than 255 characters.")
	}
	amount, err := checkAmount(input.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if input.WalletID == "" {
		return ledger.Transaction{}, apperr.Invalid(MsgMissing)
	}

	now := s.now()
	created := ledger.Transaction{
		ID:        uuid.NewString(),
		TxID:      txid,
		Amount:    amount,
		WalletID:  input.WalletID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var balance decimal.Decimal
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.lockWallets(ctx, s.cfg.CreateLock, input.WalletID)
		if err != nil {
			return err
		}
		w := locked[input.WalletID]
		if balance, err = s.apply(ctx, w, amount, now); err != nil {
			return err
		}
		return s.ledger.Create(ctx, created)
	})
	if err != nil {
		return ledger.Transaction{}, s.fail("create", err, MsgDenied, MsgLocked, "txid", txid, "wallet_id", input.WalletID)
	}

	s.logger.Info("transaction created",
		"transaction_id", created.ID, "txid", created.TxID, "wallet_id", created.WalletID,
		"amount", created.Amount.StringFixed(wallet.Scale), "balance", balance.StringFixed(wallet.Scale))
	s.publish(ctx, event.KindTransactionCreated, created, "")
	return created, nil
}

// Amend changes the amount and/or owning wallet of a transaction and
// re-derives the affected balances. When the wallet changes, the old wallet
// loses the old amount and the new wallet gains the new amount; both legs
// commit together or not at all.
func (s *Service) Amend(ctx context.Context, id string, input AmendInput) (ledger.Transaction, error) {
	var newAmount *decimal.Decimal
	if input.Amount != nil {
		amount, err := checkAmount(*input.Amount)
		if err != nil {
			return ledger.Transaction{}, err
		}
		newAmount = &amount
	}
	if input.WalletID != nil && *input.WalletID == "" {
		return ledger.Transaction{}, apperr.Invalid(MsgMissing)
	}

	var (
		updated  ledger.Transaction
		previous ledger.Transaction
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.ledger.GetForUpdate(ctx, id, s.cfg.AmendLock)
		if err != nil {
			return err
		}
		previous = current

		next := current
		if newAmount != nil {
			next.Amount = *newAmount
		}
		if input.WalletID != nil {
			next.WalletID = *input.WalletID
		}

		locked, err := s.lockWallets(ctx, s.cfg.AmendLock, current.WalletID, next.WalletID)
		if err != nil {
			return err
		}

		now := s.now()
		if next.WalletID != current.WalletID {
			if _, err := s.apply(ctx, locked[current.WalletID], current.Amount.Neg(), now); err != nil {
				return err
			}
			if _, err := s.apply(ctx, locked[next.WalletID], next.Amount, now); err != nil {
				return err
			}
		} else if delta := next.Amount.Sub(current.Amount); !delta.IsZero() {
			if _, err := s.apply(ctx, locked[next.WalletID], delta, now); err != nil {
				return err
			}
		}

		next.UpdatedAt = now
		if err := s.ledger.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, s.fail("amend", err, MsgDenied, MsgLocked, "transaction_id", id)
	}

	prevWallet := ""
	if previous.WalletID != updated.WalletID {
		prevWallet = previous.WalletID
	}
	s.logger.Info("transaction amended",
		"transaction_id", updated.ID, "wallet_id", updated.WalletID, "previous_wallet_id", previous.WalletID,
		"amount", updated.Amount.StringFixed(wallet.Scale), "previous_amount", previous.Amount.StringFixed(wallet.Scale))
	s.publish(ctx, event.KindTransactionAmended, updated, prevWallet)
	return updated, nil
}

// Delete removes a transaction and reverses its amount on the owning wallet.
func (s *Service) Delete(ctx context.Context, id string) error {
	var removed ledger.Transaction
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.ledger.GetForUpdate(ctx, id, s.cfg.DeleteLock)
		if err != nil {
			return err
		}
		locked, err := s.lockWallets(ctx, s.cfg.DeleteLock, current.WalletID)
		if err != nil {
			return err
		}
		if _, err := s.apply(ctx, locked[current.WalletID], current.Amount.Neg(), s.now()); err != nil {
			return err
		}
		if err := s.ledger.Delete(ctx, id); err != nil {
			return err
		}
		removed = current
		return nil
	})
	if err != nil {
		return s.fail("delete", err, MsgDeleteDenied, MsgDeleteLocked, "transaction_id", id)
	}

	s.logger.Info("transaction deleted",
		"transaction_id", removed.ID, "wallet_id", removed.WalletID, "amount", removed.Amount.StringFixed(wallet.Scale))
	s.publish(ctx, event.KindTransactionDeleted, removed, "")
	return nil
}

// Get reads a transaction without locking it.
func (s *Service) Get(ctx context.Context, id string) (ledger.Transaction, error) {
	return s.ledger.Get(ctx, id)
}

// List returns a filtered page of transactions.
func (s *Service) List(ctx context.Context, filter ledger.ListFilter) (storage.Page[ledger.Transaction], error) {
	return s.ledger.List(ctx, filter)
}

// lockWallets locks each distinct wallet in ascending id order and returns
// them as read under the lock.
func (s *Service) lockWallets(ctx context.Context, mode storage.LockMode, ids ...string) (map[string]wallet.Wallet, error) {
	ordered := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	locked := make(map[string]wallet.Wallet, len(ordered))
	for _, id := range ordered {
		w, err := s.wallets.GetForUpdate(ctx, id, mode)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

// apply adds delta to a locked wallet and saves it. The returned balance is
// the new one.
func (s *Service) apply(ctx context.Context, w wallet.Wallet, delta decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	balance := wallet.Normalize(w.Balance.Add(delta))
	if err := wallet.CheckBalance(balance); err != nil {
		return decimal.Zero, err
	}
	if err := wallet.CheckPrecision("balance", balance); err != nil {
		return decimal.Zero, err
	}
	w.Balance = balance
	w.UpdatedAt = now
	if err := s.wallets.Save(ctx, w); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// fail maps a unit failure onto the client-facing message of the operation.
// Not-found, duplicate and input errors keep their own message.
func (s *Service) fail(op string, err error, denied, locked string, attrs ...any) error {
	attrs = append(attrs, "op", op, "error", err)
	switch {
	case errors.Is(err, apperr.ErrResourceBusy):
		s.logger.Debug("transaction contended", attrs...)
		return apperr.Busy(locked)
	case errors.Is(err, apperr.ErrInvariantViolation):
		s.logger.Debug("transaction rejected", attrs...)
		return apperr.Invariant(denied)
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrDuplicateKey),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrReferentialIntegrity):
		s.logger.Debug("transaction rejected", attrs...)
		return err
	default:
		s.logger.Error("transaction failed", attrs...)
		return err
	}
}

func (s *Service) publish(ctx context.Context, kind string, t ledger.Transaction, previousWallet string) {
	if s.publisher == nil {
		return
	}
	e := event.Event{
		Kind:             kind,
		TransactionID:    t.ID,
		TxID:             t.TxID,
		WalletID:         t.WalletID,
		PreviousWalletID: previousWallet,
		Amount:           t.Amount.StringFixed(wallet.Scale),
		OccurredAt:       s.now(),
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("event publish failed", "kind", kind, "transaction_id", t.ID, "error", err)
	}
}

// checkAmount rejects zero amounts and amounts numeric(18,2) cannot store
// exactly.
func checkAmount(v decimal.Decimal) (decimal.Decimal, error) {
	if err := wallet.CheckPrecision("amount", v); err != nil {
		return decimal.Zero, err
	}
	if v.IsZero() {
		return decimal.Zero, apperr.Invalid(MsgMissing)
	}
	return wallet.Normalize(v), nil
}
