package migrator

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MigratorABIJSON is the subset of the V3 migrator interface a plan encodes to.
const MigratorABIJSON = `[
  {"inputs":[{"internalType":"bytes[]","name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"internalType":"bytes[]","name":"results","type":"bytes[]"}],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"uint8","name":"v","type":"uint8"},{"internalType":"bytes32","name":"r","type":"bytes32"},{"internalType":"bytes32","name":"s","type":"bytes32"}],"name":"selfPermit","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"address","name":"token0","type":"address"},{"internalType":"address","name":"token1","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"}],"name":"createAndInitializePoolIfNecessary","outputs":[{"internalType":"address","name":"pool","type":"address"}],"stateMutability":"payable","type":"function"},
  {"inputs":[{"components":[{"internalType":"address","name":"pair","type":"address"},{"internalType":"uint256","name":"liquidityToMigrate","type":"uint256"},{"internalType":"uint8","name":"percentageToMigrate","type":"uint8"},{"internalType":"address","name":"token0","type":"address"},{"internalType":"address","name":"token1","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"int24","name":"tickLower","type":"int24"},{"internalType":"int24","name":"tickUpper","type":"int24"},{"internalType":"uint256","name":"amount0Min","type":"uint256"},{"internalType":"uint256","name":"amount1Min","type":"uint256"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"bool","name":"refundAsETH","type":"bool"}],"internalType":"struct IV3Migrator.MigrateParams","name":"params","type":"tuple"}],"name":"migrate","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	migratorABI     abi.ABI
	migratorABIOnce sync.Once
	migratorABIErr  error
)

// MigratorABI returns the parsed migrator ABI.
func MigratorABI() (abi.ABI, error) {
	migratorABIOnce.Do(func() {
		migratorABI, migratorABIErr = abi.JSON(strings.NewReader(MigratorABIJSON))
	})
	return migratorABI, migratorABIErr
}

// migrateTuple is the ABI shape of MigrateParams. Field names follow the
// tuple component names.
type migrateTuple struct {
	Pair                common.Address
	LiquidityToMigrate  *big.Int
	PercentageToMigrate uint8
	Token0              common.Address
	Token1              common.Address
	Fee                 *big.Int
	TickLower           *big.Int
	TickUpper           *big.Int
	Amount0Min          *big.Int
	Amount1Min          *big.Int
	Recipient           common.Address
	Deadline            *big.Int
	RefundAsETH         bool
}

func encodeAction(parsed abi.ABI, action Action) ([]byte, error) {
	switch a := action.(type) {
	case PermitAction:
		sig := a.Signature
		return parsed.Pack("selfPermit",
			sig.Token,
			sig.Value,
			new(big.Int).SetUint64(sig.Deadline),
			sig.V,
			sig.R,
			sig.S,
		)
	case InitializePoolAction:
		return parsed.Pack("createAndInitializePoolIfNecessary",
			a.Token0,
			a.Token1,
			big.NewInt(int64(a.Fee)),
			a.SqrtPriceX96,
		)
	case MigrateAction:
		p := a.Params
		return parsed.Pack("migrate", migrateTuple{
			Pair:                p.Pair,
			LiquidityToMigrate:  p.LiquidityToMigrate,
			PercentageToMigrate: p.PercentageToMigrate,
			Token0:              p.Token0,
			Token1:              p.Token1,
			Fee:                 big.NewInt(int64(p.Fee)),
			TickLower:           big.NewInt(p.TickLower),
			TickUpper:           big.NewInt(p.TickUpper),
			Amount0Min:          p.Amount0Min,
			Amount1Min:          p.Amount1Min,
			Recipient:           p.Recipient,
			Deadline:            new(big.Int).SetUint64(p.Deadline),
			RefundAsETH:         p.RefundAsETH,
		})
	default:
		return nil, fmt.Errorf("%w: unknown action %T", ErrInvariant, action)
	}
}

// Calldata encodes the plan as a single multicall(bytes[]) so every action
// succeeds or reverts together.
func (p *Plan) Calldata() ([]byte, error) {
	parsed, err := MigratorABI()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing migrator abi: %w", ErrInvariant, err)
	}

	calls := make([][]byte, 0, len(p.actions))
	for i, action := range p.actions {
		data, err := encodeAction(parsed, action)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding action %d (%s): %w", ErrInvariant, i, action.Kind(), err)
		}
		calls = append(calls, data)
	}

	data, err := parsed.Pack("multicall", calls)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding multicall: %w", ErrInvariant, err)
	}
	return data, nil
}
