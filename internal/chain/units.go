package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits scales a whole token count by the contract's decimals.
func ToBaseUnits(tokens int64, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(tokens), scale)
}

// FormatUnits renders a base-unit balance in display units.
func FormatUnits(base *big.Int, decimals int) string {
	if base == nil {
		return "0"
	}
	return decimal.NewFromBigInt(base, -int32(decimals)).String()
}
