package ledger

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

// DuplicateTxIDMessage is returned when an external transaction id is reused.
const DuplicateTxIDMessage = "transaction with this txid already exists."

// Repository is the transaction ledger. Calls made with a context carrying an
// atomic unit join that unit.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	// GetForUpdate locks the transaction row until the enclosing unit ends.
	GetForUpdate(ctx context.Context, id string, mode storage.LockMode) (Transaction, error)
	Update(ctx context.Context, tx Transaction) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) (storage.Page[Transaction], error)
	// SumByWallet totals the amounts of every transaction owned by the wallet.
	SumByWallet(ctx context.Context, walletID string) (decimal.Decimal, error)
}

func notFound(id string) error {
	return apperr.NotFound(fmt.Sprintf("transaction %s not found", id))
}

// PostgresRepository persists transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed ledger.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectTransaction = `SELECT id, txid, amount::text, wallet_id, created_at, updated_at FROM transactions`

// Create inserts a transaction record.
func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return apperr.Invalid("transaction id must be a uuid")
	}
	walletID, err := uuid.Parse(tx.WalletID)
	if err != nil {
		return apperr.NotFound(fmt.Sprintf("wallet %s not found", tx.WalletID))
	}
	_, err = postgres.Conn(ctx, r.db).Exec(ctx, `INSERT INTO transactions (id, txid, amount, wallet_id, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		txID, tx.TxID, tx.Amount.String(), walletID, tx.CreatedAt.UTC(), tx.UpdatedAt.UTC())
	if err != nil {
		err = postgres.Classify(err)
		if errors.Is(err, apperr.ErrDuplicateKey) {
			return apperr.Duplicate(DuplicateTxIDMessage)
		}
		return err
	}
	return nil
}

// Get fetches a transaction without locking it.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, notFound(id)
	}
	return scanTransaction(postgres.Conn(ctx, r.db).QueryRow(ctx, selectTransaction+` WHERE id = $1`, txID), id)
}

// GetForUpdate fetches and row-locks a transaction inside the current unit.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string, mode storage.LockMode) (Transaction, error) {
	tx, err := postgres.TxFrom(ctx)
	if err != nil {
		return Transaction{}, err
	}
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, notFound(id)
	}
	return scanTransaction(tx.QueryRow(ctx, selectTransaction+` WHERE id = $1`+postgres.LockClause(mode), txID), id)
}

// Update writes the mutable fields of a transaction.
func (r *PostgresRepository) Update(ctx context.Context, tx Transaction) error {
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return notFound(tx.ID)
	}
	walletID, err := uuid.Parse(tx.WalletID)
	if err != nil {
		return apperr.NotFound(fmt.Sprintf("wallet %s not found", tx.WalletID))
	}
	cmd, err := postgres.Conn(ctx, r.db).Exec(ctx, `UPDATE transactions SET amount = $1::numeric, wallet_id = $2, updated_at = $3
        WHERE id = $4`, tx.Amount.String(), walletID, tx.UpdatedAt.UTC(), txID)
	if err != nil {
		return postgres.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound(tx.ID)
	}
	return nil
}

// Delete removes a transaction record.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return notFound(id)
	}
	cmd, err := postgres.Conn(ctx, r.db).Exec(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
	if err != nil {
		return postgres.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// List returns one filtered, ordered page of transactions.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (storage.Page[Transaction], error) {
	var (
		where []string
		args  []any
	)
	if filter.WalletID != "" {
		walletID, err := uuid.Parse(filter.WalletID)
		if err != nil {
			return storage.Page[Transaction]{}, apperr.Invalid("wallet: select a valid choice.")
		}
		args = append(args, walletID)
		where = append(where, fmt.Sprintf("wallet_id = $%d", len(args)))
	}
	if filter.TxID != "" {
		args = append(args, filter.TxID)
		where = append(where, fmt.Sprintf("txid = $%d", len(args)))
	}
	if filter.Amount != nil {
		args = append(args, filter.Amount.String())
		where = append(where, fmt.Sprintf("amount = $%d::numeric", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := postgres.Conn(ctx, r.db)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+clause, args...).Scan(&total); err != nil {
		return storage.Page[Transaction]{}, err
	}

	page := filter.Pagination.Normalize()
	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf("%s%s ORDER BY %s, id LIMIT $%d OFFSET $%d",
		selectTransaction, clause, orderBy(filter.Ordering), len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return storage.Page[Transaction]{}, err
	}
	defer rows.Close()

	items := make([]Transaction, 0, page.PageSize)
	for rows.Next() {
		t, err := scanTransaction(rows, "")
		if err != nil {
			return storage.Page[Transaction]{}, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return storage.Page[Transaction]{}, err
	}
	return storage.Page[Transaction]{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// SumByWallet totals the amounts owned by a wallet.
func (r *PostgresRepository) SumByWallet(ctx context.Context, walletID string) (decimal.Decimal, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, apperr.NotFound(fmt.Sprintf("wallet %s not found", walletID))
	}
	var sum string
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM transactions WHERE wallet_id = $1`
	if err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, id).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
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

func scanTransaction(row pgx.Row, id string) (Transaction, error) {
	var (
		t         Transaction
		txID      uuid.UUID
		walletID  uuid.UUID
		amount    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&txID, &t.TxID, &amount, &walletID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, notFound(id)
		}
		return Transaction{}, postgres.Classify(err)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.ID = txID.String()
	t.WalletID = walletID.String()
	t.Amount = value
	t.CreatedAt = createdAt.UTC()
	t.UpdatedAt = updatedAt.UTC()
	return t, nil
}
