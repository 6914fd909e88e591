package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv2 "github.com/defistate/defistate-migrator-go/protocols/uniswapv2"
)

var (
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidAmount is returned when a balance or reserve is negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrInsufficientSupply is returned when the pair has no share supply to value against.
	ErrInsufficientSupply = errors.New("pair total supply is zero")
	// ErrBalanceExceedsSupply is returned when a share balance is larger than the total supply.
	ErrBalanceExceedsSupply = errors.New("share balance exceeds total supply")
	// ErrZeroReserve is returned when a spot price is requested from an empty reserve.
	ErrZeroReserve = errors.New("zero reserve")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	product0 *big.Int
	product1 *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			product0: new(big.Int),
			product1: new(big.Int),
		}
	},
}

// GetLiquidityValue returns the amounts of token0 and token1 that a share balance
// redeems for: floor(balance * reserve / totalSupply) per side. The product is
// computed at full width before the division, matching the pair's burn.
func GetLiquidityValue(balance *big.Int, pool uniswapv2.Pool) (amount0, amount1 *big.Int, err error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getLiquidityValue(balance, pool)
}

func (c *Calculator) getLiquidityValue(balance *big.Int, pool uniswapv2.Pool) (*big.Int, *big.Int, error) {
	if balance == nil || pool.Reserve0 == nil || pool.Reserve1 == nil || pool.TotalSupply == nil {
		return nil, nil, ErrNilAmount
	}
	if balance.Sign() < 0 || pool.Reserve0.Sign() < 0 || pool.Reserve1.Sign() < 0 || pool.TotalSupply.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	if pool.TotalSupply.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: pair %s", ErrInsufficientSupply, pool.Address.Hex())
	}
	if balance.Cmp(pool.TotalSupply) > 0 {
		return nil, nil, fmt.Errorf("%w: balance (%s) > totalSupply (%s)", ErrBalanceExceedsSupply, balance.String(), pool.TotalSupply.String())
	}

	c.product0.Mul(balance, pool.Reserve0)
	c.product1.Mul(balance, pool.Reserve1)

	// big.Int Quo truncates toward zero; all operands are non-negative so this is floor.
	amount0 := new(big.Int).Quo(c.product0, pool.TotalSupply)
	amount1 := new(big.Int).Quo(c.product1, pool.TotalSupply)
	return amount0, amount1, nil
}

// GetSpotPrice returns the exact price of token0 denominated in token1,
// reserve1 / reserve0, in raw units.
func GetSpotPrice(pool uniswapv2.Pool) (*big.Rat, error) {
	if pool.Reserve0 == nil || pool.Reserve1 == nil {
		return nil, ErrNilAmount
	}
	if pool.Reserve0.Sign() <= 0 || pool.Reserve1.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pair %s", ErrZeroReserve, pool.Address.Hex())
	}
	return new(big.Rat).SetFrac(pool.Reserve1, pool.Reserve0), nil
}
