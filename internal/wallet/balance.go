package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

// Scale is the number of decimal places kept for balances and amounts.
const Scale = 2

// MaxIntegerDigits is what numeric(18,2) leaves before the decimal point.
const MaxIntegerDigits = 16

// Normalize rounds v to Scale decimal places.
func Normalize(v decimal.Decimal) decimal.Decimal {
	return v.Round(Scale)
}

// CheckBalance rejects a balance below zero.
func CheckBalance(balance decimal.Decimal) error {
	if balance.IsNegative() {
		return apperr.Invariant(fmt.Sprintf("Balance cannot be negative. Current balance: %s", balance.StringFixed(Scale)))
	}
	return nil
}

// CheckPrecision rejects values that numeric(18,2) cannot hold exactly: more
// than Scale decimal places or more than MaxIntegerDigits integer digits.
// field prefixes the message.
func CheckPrecision(field string, v decimal.Decimal) error {
	if !v.Equal(v.Round(Scale)) {
		return apperr.Invalid(fmt.Sprintf("%s: ensure that there are no more than %d decimal places.", field, Scale))
	}
	if len(v.Abs().Truncate(0).String()) > MaxIntegerDigits {
		return apperr.Invalid(fmt.Sprintf("%s: ensure that there are no more than %d digits before the decimal point.", field, MaxIntegerDigits))
	}
	return nil
}
