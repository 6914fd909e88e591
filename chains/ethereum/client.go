package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-migrator-go/chains"
	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	rstore "github.com/eko/gocache/store/ristretto/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/forta-network/go-multicall"
)

// Backend is the part of ethclient.Client the adapters use.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// BatchCaller executes many view calls in one eth_call.
type BatchCaller interface {
	Call(opts *bind.CallOpts, calls ...*multicall.Call) ([]*multicall.Call, error)
}

const defaultGasBufferPercent = 20

// Config holds the settings of a chain Client.
type Config struct {
	Deployment chains.Deployment
	Logger     chains.Logger
}

func (c *Config) validate() error {
	if err := c.Deployment.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Client reads pairs and pools through batched calls and, when it holds a
// Signer, sends approvals, permits and migrations for the signer's account.
type Client struct {
	backend    Backend
	batch      BatchCaller
	rpc        *rpc.Client
	deployment chains.Deployment
	logger     chains.Logger

	signer           Signer
	gasBufferPercent uint64

	// factory and tokens of a pair never change
	pairs *cache.Cache[pairInfo]
}

// Option configures the Client.
// The interface method is unexported to prevent external modification after construction.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(c *Client) {
	f(c)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// WithSigner lets the Client send transactions and sign permits.
func WithSigner(signer Signer) Option {
	return newOption(func(c *Client) {
		c.signer = signer
	})
}

// WithGasBuffer adds percent on top of every gas estimate.
func WithGasBuffer(percent uint64) Option {
	return newOption(func(c *Client) {
		c.gasBufferPercent = percent
	})
}

// Dial connects to url and builds a Client over it.
func Dial(ctx context.Context, url string, cfg Config, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	caller, err := multicall.Dial(ctx, url)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to dial multicall: %w", err)
	}

	c, err := NewClient(ethclient.NewClient(rpcClient), caller, cfg, opts...)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	c.rpc = rpcClient
	c.logger.Info("Chain client connected", "chainId", cfg.Deployment.ChainID)
	return c, nil
}

// NewClient builds a Client over an existing backend and batch caller.
func NewClient(backend Backend, batch BatchCaller, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if backend == nil || batch == nil {
		return nil, errors.New("backend and batch caller are required")
	}

	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pair cache: %w", err)
	}

	c := &Client{
		backend:          backend,
		batch:            batch,
		deployment:       cfg.Deployment,
		logger:           cfg.Logger,
		gasBufferPercent: defaultGasBufferPercent,
		pairs:            cache.New[pairInfo](rstore.NewRistretto(ristrettoCache)),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c, nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// Account is the signer's address, or the zero address for a read-only client.
func (c *Client) Account() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// Network reads the chain id and latest head for account.
func (c *Client) Network(ctx context.Context, account common.Address) (engine.NetworkContext, error) {
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return engine.NetworkContext{}, mapError(err)
	}
	if chainID.Uint64() != c.deployment.ChainID {
		return engine.NetworkContext{}, fmt.Errorf("%w: rpc reports chain %d, deployment is for %d", ErrChainMismatch, chainID.Uint64(), c.deployment.ChainID)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return engine.NetworkContext{}, mapError(err)
	}
	return engine.NetworkContext{
		ChainID: chainID.Uint64(),
		Account: account,
		Block:   BlockSummaryFromHeader(head),
	}, nil
}

// BlockSummaryFromHeader keeps the fields of head the migrator needs.
func BlockSummaryFromHeader(head *types.Header) engine.BlockSummary {
	return engine.BlockSummary{
		Number:    new(big.Int).Set(head.Number),
		Hash:      head.Hash(),
		Timestamp: head.Time,
	}
}
