package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are int64 whole currency units. Fee arithmetic goes through
// shopspring/decimal so the rate multiplication never touches floats.

// DefaultFeeRate is the platform commission applied to settled order items.
var DefaultFeeRate = decimal.NewFromFloat(0.05)

// CalculateFee returns gross * rate rounded half-up to the whole currency unit.
func CalculateFee(gross int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(gross).Mul(rate).Round(0).IntPart()
}

// SettlementAmounts splits a gross amount into fee and net payout.
func SettlementAmounts(gross int64, rate decimal.Decimal) (fee, net int64) {
	fee = CalculateFee(gross, rate)
	return fee, gross - fee
}

// SplitPayment decides how much of a requested charge is drawn from the
// deposit ledger versus captured through the external gateway.
func SplitPayment(requested, availableBalance int64) (ledgerAmount, gatewayAmount int64) {
	if availableBalance < 0 {
		availableBalance = 0
	}
	ledgerAmount = min(requested, availableBalance)
	return ledgerAmount, requested - ledgerAmount
}

// FormatAmount renders a whole-unit amount for logs and API responses.
func FormatAmount(amount int64) string {
	return fmt.Sprintf("%d KRW", amount)
}
