package chains

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	Mainnet  uint64 = 1
	Arbitrum uint64 = 42161
	Base     uint64 = 8453
)

// Deployment holds the contract addresses the migrator talks to on one chain.
type Deployment struct {
	ChainID uint64
	// V2Factory is the canonical constant-product factory. Pairs created by any
	// other factory are treated as forks.
	V2Factory common.Address
	// V3Factory resolves (token0, token1, fee) to a concentrated-liquidity pool.
	V3Factory common.Address
	// Migrator is the periphery contract that receives the multicall.
	Migrator common.Address
}

var deployments = map[uint64]Deployment{
	Mainnet: {
		ChainID:   Mainnet,
		V2Factory: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		V3Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		Migrator:  common.HexToAddress("0xA5644E29708357803b5A882D272c41cC0dF92B34"),
	},
	Arbitrum: {
		ChainID:   Arbitrum,
		V2Factory: common.HexToAddress("0xf1D7CC64Fb4452F05c498126312eBE29f30Fbcf9"),
		V3Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		Migrator:  common.HexToAddress("0xA5644E29708357803b5A882D272c41cC0dF92B34"),
	},
	Base: {
		ChainID:   Base,
		V2Factory: common.HexToAddress("0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6"),
		V3Factory: common.HexToAddress("0x33128a8fC17869897dcE68Ed026d694621f6FDfD"),
		Migrator:  common.HexToAddress("0x23cF10b1ee3AdfCA73B0eF17C07F7577e7ACd2d7"),
	},
}

// DeploymentFor returns the known deployment for chainID.
func DeploymentFor(chainID uint64) (Deployment, error) {
	d, ok := deployments[chainID]
	if !ok {
		return Deployment{}, fmt.Errorf("no deployment known for chain %d", chainID)
	}
	return d, nil
}

// Validate checks that every address of the deployment is set.
func (d Deployment) Validate() error {
	if d.ChainID == 0 {
		return fmt.Errorf("deployment: chain id is required")
	}
	if d.V2Factory == (common.Address{}) {
		return fmt.Errorf("deployment: v2 factory is required")
	}
	if d.V3Factory == (common.Address{}) {
		return fmt.Errorf("deployment: v3 factory is required")
	}
	if d.Migrator == (common.Address{}) {
		return fmt.Errorf("deployment: migrator is required")
	}
	return nil
}
