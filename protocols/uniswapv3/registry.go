package uniswapv3

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeAmount is a pool fee in hundredths of a basis point (500 = 0.05%).
type FeeAmount uint32

const (
	FeeLowest FeeAmount = 100
	FeeLow    FeeAmount = 500
	FeeMedium FeeAmount = 3000
	FeeHigh   FeeAmount = 10000
)

var tickSpacings = map[FeeAmount]int64{
	FeeLowest: 1,
	FeeLow:    10,
	FeeMedium: 60,
	FeeHigh:   200,
}

// TickSpacing returns the tick spacing enabled for the fee tier.
func (f FeeAmount) TickSpacing() (int64, error) {
	spacing, ok := tickSpacings[f]
	if !ok {
		return 0, fmt.Errorf("unsupported fee tier %d", uint32(f))
	}
	return spacing, nil
}

func (f FeeAmount) String() string {
	return fmt.Sprintf("%d.%02d%%", f/10000, (f%10000)/100)
}

// PoolState describes what exists on chain for a (token0, token1, fee) key.
type PoolState uint8

const (
	// PoolNotExists means the factory has no pool for the key.
	PoolNotExists PoolState = iota
	// PoolUninitialized means the pool was created but no price was set.
	PoolUninitialized
	// PoolExists means the pool has a price and can be minted into.
	PoolExists
)

func (s PoolState) String() string {
	switch s {
	case PoolNotExists:
		return "not_exists"
	case PoolUninitialized:
		return "uninitialized"
	case PoolExists:
		return "exists"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// PoolViewMinimal provides a view of a single concentrated-liquidity pool's price.
// Tick and SqrtPriceX96 are only meaningful when State is PoolExists.
type PoolViewMinimal struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Fee          FeeAmount      `json:"fee"`
	State        PoolState      `json:"state"`
	Tick         int64          `json:"tick"`
	Liquidity    *big.Int       `json:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
}

// HasPrice reports whether the pool carries a usable current price.
func (p PoolViewMinimal) HasPrice() bool {
	return p.State == PoolExists && p.SqrtPriceX96 != nil && p.SqrtPriceX96.Sign() > 0
}
