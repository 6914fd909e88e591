package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockSummary contains only the essential block information the migrator needs.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // The Unix nanosecond timestamp when the head was received.
}

// NetworkContext identifies who is acting, where, and when.
// It is passed explicitly into every operation that needs an account, a chain or a clock.
type NetworkContext struct {
	ChainID uint64         `json:"chainId"`
	Account common.Address `json:"account"`
	Block   BlockSummary   `json:"block"`
}

// Deadline returns the block timestamp shifted by window seconds.
func (n NetworkContext) Deadline(window uint64) uint64 {
	return n.Block.Timestamp + window
}

// HasBlock reports whether a head has been observed.
func (n NetworkContext) HasBlock() bool {
	return n.Block.Number != nil && n.Block.Timestamp > 0
}
