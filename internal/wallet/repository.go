package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/storage/postgres"
)

// Repository is the wallet store. Calls made with a context carrying an atomic
// unit (see storage.Transactor) join that unit.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	// GetForUpdate locks the wallet row until the enclosing unit ends.
	GetForUpdate(ctx context.Context, id string, mode storage.LockMode) (Wallet, error)
	Save(ctx context.Context, wallet Wallet) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) (storage.Page[Wallet], error)
}

// ProtectedMessage is returned when a wallet still owns transactions.
const ProtectedMessage = "Cannot delete the wallet: it still has transactions."

func notFound(id string) error {
	return apperr.NotFound(fmt.Sprintf("wallet %s not found", id))
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectWallet = `SELECT id, label, balance::text, created_at, updated_at FROM wallets`

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	if err := CheckBalance(wallet.Balance); err != nil {
		return err
	}
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return apperr.Invalid("wallet id must be a uuid")
	}
	_, err = postgres.Conn(ctx, r.db).Exec(ctx, `INSERT INTO wallets (id, label, balance, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5)`,
		walletID, wallet.Label, Normalize(wallet.Balance).String(), wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	return postgres.Classify(err)
}

// Get fetches a wallet without locking it.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, notFound(id)
	}
	return scanWallet(postgres.Conn(ctx, r.db).QueryRow(ctx, selectWallet+` WHERE id = $1`, walletID), id)
}

// GetForUpdate fetches and row-locks a wallet inside the current transaction.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string, mode storage.LockMode) (Wallet, error) {
	tx, err := postgres.TxFrom(ctx)
	if err != nil {
		return Wallet{}, err
	}
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, notFound(id)
	}
	return scanWallet(tx.QueryRow(ctx, selectWallet+` WHERE id = $1`+postgres.LockClause(mode), walletID), id)
}

// Save writes the label and balance of an existing wallet.
func (r *PostgresRepository) Save(ctx context.Context, wallet Wallet) error {
	if err := CheckBalance(wallet.Balance); err != nil {
		return err
	}
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return notFound(wallet.ID)
	}
	cmd, err := postgres.Conn(ctx, r.db).Exec(ctx, `UPDATE wallets SET label = $1, balance = $2::numeric, updated_at = $3
        WHERE id = $4`, wallet.Label, Normalize(wallet.Balance).String(), wallet.UpdatedAt.UTC(), walletID)
	if err != nil {
		return postgres.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound(wallet.ID)
	}
	return nil
}

// Delete removes a wallet. The foreign key from transactions restricts it.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return notFound(id)
	}
	cmd, err := postgres.Conn(ctx, r.db).Exec(ctx, `DELETE FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		err = postgres.Classify(err)
		if errors.Is(err, apperr.ErrReferentialIntegrity) {
			return apperr.Protected(ProtectedMessage)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// List returns one filtered, ordered page of wallets.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (storage.Page[Wallet], error) {
	var (
		where []string
		args  []any
	)
	if filter.Label != "" {
		args = append(args, filter.Label)
		where = append(where, fmt.Sprintf("label = $%d", len(args)))
	}
	if filter.BalanceMin != nil {
		args = append(args, filter.BalanceMin.String())
		where = append(where, fmt.Sprintf("balance >= $%d::numeric", len(args)))
	}
	if filter.BalanceMax != nil {
		args = append(args, filter.BalanceMax.String())
		where = append(where, fmt.Sprintf("balance <= $%d::numeric", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := postgres.Conn(ctx, r.db)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM wallets`+clause, args...).Scan(&total); err != nil {
		return storage.Page[Wallet]{}, err
	}

	page := filter.Pagination.Normalize()
	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf("%s%s ORDER BY %s, id LIMIT $%d OFFSET $%d",
		selectWallet, clause, orderBy(filter.Ordering), len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return storage.Page[Wallet]{}, err
	}
	defer rows.Close()

	items := make([]Wallet, 0, page.PageSize)
	for rows.Next() {
		w, err := scanWallet(rows, "")
		if err != nil {
			return storage.Page[Wallet]{}, err
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return storage.Page[Wallet]{}, err
	}
	return storage.Page[Wallet]{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

func orderBy(o storage.Ordering) string {
	column := DefaultOrdering
	for _, name := range Orderable {
		if name == o.Field {
			column = name
		}
	}
	if o.Desc {
		return column + " DESC"
	}
	return column + " ASC"
}

func scanWallet(row pgx.Row, id string) (Wallet, error) {
	var (
		w         Wallet
		walletID  uuid.UUID
		balance   string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&walletID, &w.Label, &balance, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, notFound(id)
		}
		return Wallet{}, postgres.Classify(err)
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	w.ID = walletID.String()
	w.Balance = amount
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}
