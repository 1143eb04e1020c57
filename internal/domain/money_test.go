package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculateFeeRoundsHalfUp(t *testing.T) {
	rate := decimal.NewFromFloat(0.05)

	cases := []struct {
		name  string
		gross int64
		fee   int64
	}{
		{name: "exact", gross: 10_000, fee: 500},
		{name: "rounds_up_at_half", gross: 10, fee: 1},      // 0.5 -> 1
		{name: "rounds_down_below_half", gross: 9, fee: 0},  // 0.45 -> 0
		{name: "rounds_up_above_half", gross: 11, fee: 1},   // 0.55 -> 1
		{name: "large", gross: 1_234_567, fee: 61_728},      // 61728.35 -> 61728
		{name: "half_boundary", gross: 12_345_670, fee: 617_284}, // 617283.5 -> 617284
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			fee, net := SettlementAmounts(tc.gross, rate)
			require.Equal(t, tc.fee, fee)
			require.Equal(t, tc.gross-tc.fee, net)
		})
	}
}

func TestSplitPayment(t *testing.T) {
	cases := []struct {
		name      string
		requested int64
		balance   int64
		ledger    int64
		gateway   int64
	}{
		{name: "balance_covers_all", requested: 5_000, balance: 10_000, ledger: 5_000, gateway: 0},
		{name: "balance_partial", requested: 10_500, balance: 10_000, ledger: 10_000, gateway: 500},
		{name: "no_balance", requested: 7_000, balance: 0, ledger: 0, gateway: 7_000},
		{name: "negative_balance_ignored", requested: 100, balance: -50, ledger: 0, gateway: 100},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ledger, gateway := SplitPayment(tc.requested, tc.balance)
			require.Equal(t, tc.ledger, ledger)
			require.Equal(t, tc.gateway, gateway)
		})
	}
}
