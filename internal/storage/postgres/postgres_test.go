package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

func TestClassifyMapsSQLState(t *testing.T) {
	cases := []struct {
		code string
		kind error
	}{
		{codeLockNotAvailable, apperr.ErrResourceBusy},
		{codeDeadlockDetected, apperr.ErrResourceBusy},
		{codeUniqueViolation, apperr.ErrDuplicateKey},
		{codeForeignKeyViolation, apperr.ErrReferentialIntegrity},
		{codeCheckViolation, apperr.ErrInvariantViolation},
		{codeNumericOutOfRange, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := Classify(fmt.Errorf("exec: %w", &pgconn.PgError{Code: tc.code}))
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestClassifyPassesThroughUnknownErrors(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, Classify(plain))
	assert.Nil(t, Classify(nil))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, other, Classify(other))
}

func TestLockClause(t *testing.T) {
	assert.Equal(t, " FOR UPDATE NOWAIT", LockClause(storage.LockNoWait))
	assert.Equal(t, " FOR UPDATE", LockClause(storage.LockWait))
}

func TestTxFromRequiresUnit(t *testing.T) {
	_, err := TxFrom(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoUnit)
}
