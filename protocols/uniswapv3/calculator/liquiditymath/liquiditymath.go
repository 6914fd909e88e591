package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/sqrtpricemath"
)

var (
	// maxUint128 is the maximum value for a uint128 (2^128 - 1).
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrLiquidityOverflow = errors.New("liquidity overflow")
	ErrInvalidPriceRange = errors.New("sqrt price bounds must be positive and distinct")
)

// orderRange returns the two sqrt price bounds ascending.
func orderRange(sqrtRatioAX96, sqrtRatioBX96 *big.Int) (*big.Int, *big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 || sqrtRatioAX96.Cmp(sqrtRatioBX96) == 0 {
		return nil, nil, ErrInvalidPriceRange
	}
	return sqrtRatioAX96, sqrtRatioBX96, nil
}

// liquidityForAmount0 returns the liquidity that amount0 buys across the whole range.
// With fullPrecision the intermediate sqrtA*sqrtB product is not truncated to Q96.
func liquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *big.Int, fullPrecision bool) *big.Int {
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if fullPrecision {
		numerator := new(big.Int).Mul(amount0, sqrtRatioAX96)
		numerator.Mul(numerator, sqrtRatioBX96)
		denominator := new(big.Int).Mul(sqrtpricemath.Q96, diff)
		return numerator.Quo(numerator, denominator)
	}
	intermediate := new(big.Int).Mul(sqrtRatioAX96, sqrtRatioBX96)
	intermediate.Quo(intermediate, sqrtpricemath.Q96)
	intermediate.Mul(intermediate, amount0)
	return intermediate.Quo(intermediate, diff)
}

// liquidityForAmount1 returns the liquidity that amount1 buys across the whole range.
func liquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	numerator := new(big.Int).Mul(amount1, sqrtpricemath.Q96)
	return numerator.Quo(numerator, diff)
}

// MaxLiquidityForAmounts computes the largest liquidity that can be minted in
// [sqrtRatioAX96, sqrtRatioBX96] at the current price without spending more
// than amount0 of token0 or amount1 of token1.
func MaxLiquidityForAmounts(sqrtRatioCurrentX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *big.Int, fullPrecision bool) (*big.Int, error) {
	sqrtRatioAX96, sqrtRatioBX96, err := orderRange(sqrtRatioAX96, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}

	var liquidity *big.Int
	switch {
	case sqrtRatioCurrentX96.Cmp(sqrtRatioAX96) <= 0:
		liquidity = liquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0, fullPrecision)
	case sqrtRatioCurrentX96.Cmp(sqrtRatioBX96) < 0:
		liquidity0 := liquidityForAmount0(sqrtRatioCurrentX96, sqrtRatioBX96, amount0, fullPrecision)
		liquidity1 := liquidityForAmount1(sqrtRatioAX96, sqrtRatioCurrentX96, amount1)
		liquidity = liquidity0
		if liquidity1.Cmp(liquidity0) < 0 {
			liquidity = liquidity1
		}
	default:
		liquidity = liquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
	}

	if liquidity.Cmp(maxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return liquidity, nil
}
