package escrow

import (
	"math/big"
)

// LedgerDecimals is the fixed-point convention for deposit and bonus amounts.
const LedgerDecimals = 18

// ToBaseUnits scales a display amount into the ledger's fixed-point integer
// representation. Fractional dust below the given precision is truncated.
func ToBaseUnits(amount float64, decimals int) *big.Int {
	scale := new(big.Float).SetInt(pow10(decimals))
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	out, _ := scaled.Int(nil)
	return out
}

// FromBaseUnits is the inverse of ToBaseUnits. Round-trips are exact within
// float64 precision (1e-6 for amounts in the ranges this ledger carries).
func FromBaseUnits(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	scale := new(big.Float).SetInt(pow10(decimals))
	value := new(big.Float).Quo(new(big.Float).SetInt(raw), scale)
	out, _ := value.Float64()
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
