package oracle

import (
	"math/big"
	"sort"

	"upirails/internal/escrow"
)

func parseRawBalance(raw string, decimals int) float64 {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	return escrow.FromBaseUnits(v, decimals)
}

func sortBalances(balances []TokenBalance) {
	sort.Slice(balances, func(i, j int) bool {
		a, b := balances[i], balances[j]
		switch {
		case a.ValueFiat > 0 && b.ValueFiat > 0:
			return a.ValueFiat > b.ValueFiat
		case a.ValueFiat > 0:
			return true
		case b.ValueFiat > 0:
			return false
		default:
			return a.Amount > b.Amount
		}
	})
}
