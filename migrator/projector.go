package migrator

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	v3calculator "github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/tickmath"
)

// TickMath is the concentrated-liquidity math the projector delegates to.
// Its answers are taken as authoritative.
type TickMath interface {
	// PriceToTick maps a raw token1/token0 price to the nearest tick.
	PriceToTick(price *big.Rat) (int64, error)
	SqrtRatioAtTick(tick int64) (*big.Int, error)
	// ProjectAmounts returns the amounts a maximal position in
	// [tickLower, tickUpper) absorbs from at most max.
	ProjectAmounts(sqrtPriceX96 *big.Int, tickCurrent, tickLower, tickUpper int64, max Amounts) (Amounts, error)
}

type v3TickMath struct{}

// DefaultTickMath returns the Uniswap v3 tick math.
func DefaultTickMath() TickMath {
	return v3TickMath{}
}

func (v3TickMath) PriceToTick(price *big.Rat) (int64, error) {
	return v3calculator.PriceToClosestTick(price)
}

func (v3TickMath) SqrtRatioAtTick(tick int64) (*big.Int, error) {
	return tickmath.SqrtRatioAtTick(tick)
}

func (v3TickMath) ProjectAmounts(sqrtPriceX96 *big.Int, tickCurrent, tickLower, tickUpper int64, max Amounts) (Amounts, error) {
	pos, err := v3calculator.PositionFromAmounts(sqrtPriceX96, tickCurrent, tickLower, tickUpper, max.Amount0, max.Amount1)
	if err != nil {
		return Amounts{}, err
	}
	return Amounts{Amount0: pos.Amount0, Amount1: pos.Amount1}, nil
}

// Projection is the outcome of fitting valued amounts into a range.
type Projection struct {
	Position     Amounts  `json:"position"`
	TickLower    int64    `json:"tickLower"`
	TickUpper    int64    `json:"tickUpper"`
	TickCurrent  int64    `json:"tickCurrent"`
	SqrtPriceX96 *big.Int `json:"sqrtPriceX96"`
	// FirstProvider is set when the destination has no price and the
	// migration will initialize it at SqrtPriceX96.
	FirstProvider bool `json:"firstProvider"`
	// OutOfRange is set when the current tick is outside the range, so the
	// deposit is single-sided.
	OutOfRange bool `json:"outOfRange"`
}

// Projector fits valued amounts into a concentrated-liquidity range.
type Projector struct {
	math TickMath
}

// NewProjector returns a Projector over math, or the default tick math when nil.
func NewProjector(math TickMath) *Projector {
	if math == nil {
		math = DefaultTickMath()
	}
	return &Projector{math: math}
}

// ResolveRange turns a PriceRange into concrete ticks for the fee tier. An
// unbounded range becomes the widest range the tier's spacing allows.
func ResolveRange(rng PriceRange, fee uniswapv3.FeeAmount) (int64, int64, error) {
	spacing, err := fee.TickSpacing()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrUnsupportedFee, err)
	}
	if rng.IsFull() {
		return v3calculator.MinUsableTick(spacing), v3calculator.MaxUsableTick(spacing), nil
	}
	if rng.Lower == nil || rng.Upper == nil {
		return 0, 0, fmt.Errorf("%w: only one bound set", ErrInvalidRange)
	}

	lower, upper := *rng.Lower, *rng.Upper
	switch {
	case lower >= upper:
		return 0, 0, fmt.Errorf("%w: lower %d >= upper %d", ErrInvalidRange, lower, upper)
	case lower < tickmath.MinTick || upper > tickmath.MaxTick:
		return 0, 0, fmt.Errorf("%w: [%d, %d] outside [%d, %d]", ErrInvalidRange, lower, upper, tickmath.MinTick, tickmath.MaxTick)
	case lower%spacing != 0 || upper%spacing != 0:
		return 0, 0, fmt.Errorf("%w: [%d, %d] not aligned to spacing %d", ErrInvalidRange, lower, upper, spacing)
	}
	return lower, upper, nil
}

// Project computes the deposit of valued into rng on the fee tier's pool.
// When the destination has no price the pool price is synthesized from
// sourcePrice through the tick grid.
func (p *Projector) Project(
	valued Amounts,
	rng PriceRange,
	fee uniswapv3.FeeAmount,
	dest uniswapv3.PoolViewMinimal,
	sourcePrice *big.Rat,
) (Projection, error) {
	if !valued.valid() {
		return Projection{}, fmt.Errorf("%w: valued amounts missing", ErrInvariant)
	}

	lower, upper, err := ResolveRange(rng, fee)
	if err != nil {
		return Projection{}, err
	}

	proj := Projection{TickLower: lower, TickUpper: upper}
	if dest.HasPrice() {
		proj.TickCurrent = dest.Tick
		proj.SqrtPriceX96 = new(big.Int).Set(dest.SqrtPriceX96)
	} else {
		if sourcePrice == nil || sourcePrice.Sign() <= 0 {
			return Projection{}, ErrNoSourcePrice
		}
		tick, err := p.math.PriceToTick(sourcePrice)
		if err != nil {
			return Projection{}, fmt.Errorf("%w: source price %s: %w", ErrInput, sourcePrice.RatString(), err)
		}
		sqrtPrice, err := p.math.SqrtRatioAtTick(tick)
		if err != nil {
			return Projection{}, fmt.Errorf("%w: tick %d: %w", ErrInvariant, tick, err)
		}
		proj.TickCurrent = tick
		proj.SqrtPriceX96 = sqrtPrice
		proj.FirstProvider = true
	}
	proj.OutOfRange = proj.TickCurrent < lower || proj.TickCurrent >= upper

	position, err := p.math.ProjectAmounts(proj.SqrtPriceX96, proj.TickCurrent, lower, upper, valued)
	if err != nil {
		return Projection{}, fmt.Errorf("%w: projecting amounts: %w", ErrInvariant, err)
	}
	if !position.valid() || !position.LessOrEqual(valued) {
		return Projection{}, fmt.Errorf("%w: valued %s, projected %s", ErrAmountsExceedValuation, valued, position)
	}
	proj.Position = position
	return proj, nil
}
