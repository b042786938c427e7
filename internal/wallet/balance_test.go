package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

func TestCheckBalance(t *testing.T) {
	assert.NoError(t, CheckBalance(decimal.Zero))
	assert.NoError(t, CheckBalance(decimal.RequireFromString("0.01")))

	err := CheckBalance(decimal.RequireFromString("-10"))
	require.ErrorIs(t, err, apperr.ErrInvariantViolation)
	assert.Equal(t, "Balance cannot be negative. Current balance: -10.00", err.Error())
}

func TestNormalizeRoundsToScale(t *testing.T) {
	assert.Equal(t, "10.13", Normalize(decimal.RequireFromString("10.125")).StringFixed(Scale))
	assert.Equal(t, "7.00", Normalize(decimal.NewFromInt(7)).StringFixed(Scale))
}

func TestCheckPrecision(t *testing.T) {
	assert.NoError(t, CheckPrecision("amount", decimal.RequireFromString("-9999999999999999.99")))
	assert.NoError(t, CheckPrecision("amount", decimal.RequireFromString("10.50")))

	err := CheckPrecision("amount", decimal.RequireFromString("10.005"))
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "amount: ensure that there are no more than 2 decimal places.", err.Error())

	err = CheckPrecision("balance", decimal.RequireFromString("10000000000000000"))
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "balance: ensure that there are no more than 16 digits before the decimal point.", err.Error())
}
