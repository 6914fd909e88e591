package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a snapshot of a constant-product pair as read from chain.
// Reserves and TotalSupply are raw integer amounts; TotalSupply is the
// supply of the pair's share (liquidity) token.
type Pool struct {
	Address     common.Address `json:"address"`
	Factory     common.Address `json:"factory"`
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Reserve0    *big.Int       `json:"reserve0"`
	Reserve1    *big.Int       `json:"reserve1"`
	TotalSupply *big.Int       `json:"totalSupply"`
}

// IsCanonical reports whether the pair was deployed by the given factory.
// Pairs from forked deployments are not guaranteed to implement permit.
func (p Pool) IsCanonical(factory common.Address) bool {
	return p.Factory == factory
}
