package migrator

import (
	"context"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv2"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// ReserveOracle reads the source pair. Results may be stale; every
// recalculation starts from a fresh read.
type ReserveOracle interface {
	// GetPair returns reserves, total supply, tokens and factory of pair.
	GetPair(ctx context.Context, pair common.Address) (uniswapv2.Pool, error)
	GetShareBalance(ctx context.Context, account, pair common.Address) (*big.Int, error)
}

// PoolReader resolves the destination pool for a fee tier.
type PoolReader interface {
	GetPool(ctx context.Context, token0, token1 common.Address, fee uniswapv3.FeeAmount) (uniswapv3.PoolViewMinimal, error)
}

// PermitRequest describes the share-token permit the migrator needs.
type PermitRequest struct {
	ChainID  uint64
	Token    common.Address
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Deadline uint64
}

// PermitSignature is a signed EIP-2612 style permit.
type PermitSignature struct {
	Token    common.Address `json:"token"`
	Value    *big.Int       `json:"value"`
	Deadline uint64         `json:"deadline"`
	V        uint8          `json:"v"`
	R        [32]byte       `json:"r"`
	S        [32]byte       `json:"s"`
}

// AllowanceService grants the migrator access to the share token.
// Implementations return ErrUserRejected when the user declines.
type AllowanceService interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	// Approve sends an approval transaction and returns its hash without
	// waiting for inclusion.
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	SignPermit(ctx context.Context, req PermitRequest) (PermitSignature, error)
}

// Submitter sends a plan as one transaction.
type Submitter interface {
	Submit(ctx context.Context, plan *Plan) (common.Hash, error)
}

// Observer reports the status of a submitted transaction.
type Observer interface {
	Observe(ctx context.Context, tx common.Hash) (TxStatus, error)
}
