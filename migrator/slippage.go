package migrator

import (
	"fmt"
	"math/big"
)

var basisPointDivisor = big.NewInt(int64(MaxSlippageTolerance))

// Minimums lowers each deposit by the tolerance, rounding down:
// floor(deposit * (10000 - tolerance) / 10000).
func Minimums(position Amounts, tolerance SlippageTolerance) (Amounts, error) {
	if err := tolerance.Validate(); err != nil {
		return Amounts{}, err
	}
	if !position.valid() {
		return Amounts{}, fmt.Errorf("%w: minimums of incomplete amounts", ErrInvariant)
	}

	factor := big.NewInt(int64(MaxSlippageTolerance - tolerance))
	floor := func(deposit *big.Int) *big.Int {
		v := new(big.Int).Mul(deposit, factor)
		return v.Quo(v, basisPointDivisor)
	}
	return Amounts{Amount0: floor(position.Amount0), Amount1: floor(position.Amount1)}, nil
}
