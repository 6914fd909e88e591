package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/sqrtpricemath"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/tickmath"
)

var (
	ErrPriceOutOfBounds = errors.New("price outside the representable tick range")
	ErrInvalidTicks     = errors.New("tickLower must be less than tickUpper")
	ErrInvalidSpacing   = errors.New("tick spacing must be positive")
	ErrNilAmount        = errors.New("nil pointer passed as amount")
)

// Position is the result of fitting a pair of amounts into a tick range.
type Position struct {
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// TickPrice returns the exact price (token1 per token0, raw units) that the
// pool reports at the given tick.
func TickPrice(tick int64) (*big.Rat, error) {
	sqrtP, err := tickmath.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return sqrtpricemath.PriceX192(sqrtP)
}

// PriceToClosestTick maps a price of token0 in token1 (raw units) to the tick
// whose price is nearest to it. On an exact tie the lower tick wins, so the
// result never prices token0 above the input when the two are equidistant.
func PriceToClosestTick(price *big.Rat) (int64, error) {
	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrPriceOutOfBounds)
	}

	sqrtP, err := sqrtpricemath.EncodeSqrtRatioX96(price.Num(), price.Denom())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPriceOutOfBounds, err)
	}
	if sqrtP.Cmp(tickmath.MinSqrtRatio) < 0 || sqrtP.Cmp(tickmath.MaxSqrtRatio) >= 0 {
		return 0, fmt.Errorf("%w: sqrt price %s", ErrPriceOutOfBounds, sqrtP.String())
	}

	// greatest tick with TickPrice(tick) <= price
	tick, err := tickmath.GetTickAtSqrtRatio(sqrtP)
	if err != nil {
		return 0, err
	}
	if tick == tickmath.MaxTick {
		return tick, nil
	}

	below, err := TickPrice(tick)
	if err != nil {
		return 0, err
	}
	above, err := TickPrice(tick + 1)
	if err != nil {
		return 0, err
	}

	distBelow := new(big.Rat).Sub(price, below)
	distAbove := new(big.Rat).Sub(above, price)
	if distAbove.Cmp(distBelow) < 0 {
		return tick + 1, nil
	}
	return tick, nil
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// NearestUsableTick rounds tick to the nearest multiple of spacing that lies
// inside [MinTick, MaxTick]. Halves round up.
func NearestUsableTick(tick, spacing int64) (int64, error) {
	if spacing <= 0 {
		return 0, ErrInvalidSpacing
	}
	if tick < tickmath.MinTick || tick > tickmath.MaxTick {
		return 0, tickmath.ErrTickOutOfBounds
	}
	rounded := floorDiv(2*tick+spacing, 2*spacing) * spacing
	if rounded < tickmath.MinTick {
		return rounded + spacing, nil
	}
	if rounded > tickmath.MaxTick {
		return rounded - spacing, nil
	}
	return rounded, nil
}

// MinUsableTick is the lowest tick aligned to spacing.
func MinUsableTick(spacing int64) int64 {
	return (tickmath.MinTick / spacing) * spacing
}

// MaxUsableTick is the highest tick aligned to spacing.
func MaxUsableTick(spacing int64) int64 {
	return (tickmath.MaxTick / spacing) * spacing
}

// PositionFromAmounts computes the largest position in [tickLower, tickUpper)
// that can be minted from at most amount0 and amount1 at the given pool price,
// and the amounts that position actually consumes (rounded down).
func PositionFromAmounts(
	sqrtPriceX96 *big.Int,
	tickCurrent int64,
	tickLower int64,
	tickUpper int64,
	amount0 *big.Int,
	amount1 *big.Int,
) (Position, error) {
	if amount0 == nil || amount1 == nil || sqrtPriceX96 == nil {
		return Position{}, ErrNilAmount
	}
	if tickLower >= tickUpper {
		return Position{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidTicks, tickLower, tickUpper)
	}

	sqrtLower, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return Position{}, fmt.Errorf("tickLower %d: %w", tickLower, err)
	}
	sqrtUpper, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return Position{}, fmt.Errorf("tickUpper %d: %w", tickUpper, err)
	}

	liquidity, err := liquiditymath.MaxLiquidityForAmounts(sqrtPriceX96, sqrtLower, sqrtUpper, amount0, amount1, true)
	if err != nil {
		return Position{}, err
	}

	out0, out1 := new(big.Int), new(big.Int)
	switch {
	case tickCurrent < tickLower:
		if err := sqrtpricemath.GetAmount0Delta(out0, sqrtLower, sqrtUpper, liquidity, false); err != nil {
			return Position{}, err
		}
	case tickCurrent < tickUpper:
		if err := sqrtpricemath.GetAmount0Delta(out0, sqrtPriceX96, sqrtUpper, liquidity, false); err != nil {
			return Position{}, err
		}
		sqrtpricemath.GetAmount1Delta(out1, sqrtLower, sqrtPriceX96, liquidity, false)
	default:
		sqrtpricemath.GetAmount1Delta(out1, sqrtLower, sqrtUpper, liquidity, false)
	}

	return Position{
		Liquidity: liquidity,
		Amount0:   out0,
		Amount1:   out1,
	}, nil
}
