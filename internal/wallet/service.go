package wallet

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

const maxLabelLength = 255

// Service exposes wallet lifecycle operations. Balance changes are not offered
// here; they belong to the transaction engine.
type Service struct {
	repo   Repository
	tx     storage.Transactor
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, tx storage.Transactor, logger *slog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	Label   string
	Balance decimal.Decimal
}

// UpdateInput carries a wallet update. Balance is accepted only when it equals
// the stored balance, so full-object PUTs round-trip.
type UpdateInput struct {
	Label   *string
	Balance *decimal.Decimal
}

// Create provisions a wallet with an opening balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	label, err := cleanLabel(input.Label)
	if err != nil {
		return Wallet{}, err
	}
	if err := CheckPrecision("balance", input.Balance); err != nil {
		return Wallet{}, err
	}
	if err := CheckBalance(input.Balance); err != nil {
		return Wallet{}, err
	}

	now := s.now()
	wallet := Wallet{
		ID:        uuid.NewString(),
		Label:     label,
		Balance:   Normalize(input.Balance),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	s.logger.Info("wallet created", "wallet_id", wallet.ID, "balance", wallet.Balance.StringFixed(Scale))
	return wallet, nil
}

// Get retrieves a wallet.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of wallets. Balances read here are not locked
// and must not drive further mutation.
func (s *Service) List(ctx context.Context, filter ListFilter) (storage.Page[Wallet], error) {
	return s.repo.List(ctx, filter)
}

// Update changes the wallet label under the same row lock the transaction
// engine uses, so a rename can never overwrite a concurrent balance change.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Wallet, error) {
	var label string
	if input.Label != nil {
		cleaned, err := cleanLabel(*input.Label)
		if err != nil {
			return Wallet{}, err
		}
		label = cleaned
	}

	if input.Balance != nil {
		if err := CheckPrecision("balance", *input.Balance); err != nil {
			return Wallet{}, err
		}
	}

	var updated Wallet
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id, storage.LockWait)
		if err != nil {
			return err
		}
		if input.Balance != nil && !input.Balance.Equal(current.Balance) {
			return apperr.Invalid("Wallet balance can only be changed through transactions.")
		}
		if input.Label != nil {
			current.Label = label
		}
		current.UpdatedAt = s.now()
		if err := s.repo.Save(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Wallet{}, err
	}
	return updated, nil
}

// Delete removes a wallet that owns no transactions.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, id, storage.LockWait); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("wallet deleted", "wallet_id", id)
	return nil
}

func cleanLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", apperr.Invalid("label: this field may not be blank.")
	}
	if utf8.RuneCountInString(label) > maxLabelLength {
		return "", apperr.Invalid("label: ensure this field has no more than 255 characters.")
	}
	return label, nil
}
