package migrator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv2"
	v2calculator "github.com/defistate/defistate-migrator-go/protocols/uniswapv2/calculator"
)

// Valuate returns the reserves a share balance redeems for, floor-divided
// exactly as the pair's burn does.
func Valuate(balance *big.Int, pair uniswapv2.Pool) (Amounts, error) {
	amount0, amount1, err := v2calculator.GetLiquidityValue(balance, pair)
	switch {
	case err == nil:
		return Amounts{Amount0: amount0, Amount1: amount1}, nil
	case errors.Is(err, v2calculator.ErrInsufficientSupply):
		return Amounts{}, fmt.Errorf("%w: %w", ErrInsufficientSupply, err)
	case errors.Is(err, v2calculator.ErrBalanceExceedsSupply):
		return Amounts{}, fmt.Errorf("%w: %w", ErrBalanceExceedsSupply, err)
	default:
		return Amounts{}, fmt.Errorf("%w: %w", ErrInput, err)
	}
}

// Migratable is the part of valued the migrator deposits for a percentage:
// floor(amount * pct / 100) per side. The rest is refunded.
func Migratable(valued Amounts, pct uint8) (Amounts, error) {
	if !valued.valid() {
		return Amounts{}, fmt.Errorf("%w: migratable share of incomplete amounts", ErrInvariant)
	}
	if pct == 0 || pct > 100 {
		return Amounts{}, fmt.Errorf("%w: percentage to migrate %d not within (0, 100]", ErrInput, pct)
	}
	share := func(amount *big.Int) *big.Int {
		v := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
		return v.Quo(v, hundredInt)
	}
	return Amounts{Amount0: share(valued.Amount0), Amount1: share(valued.Amount1)}, nil
}

var hundredInt = big.NewInt(100)
