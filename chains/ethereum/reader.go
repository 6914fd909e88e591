package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/tokenregistry"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv2"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/forta-network/go-multicall"
)

type bigOutput struct {
	Value *big.Int
}

type addressOutput struct {
	Value common.Address
}

type stringOutput struct {
	Value string
}

type uint8Output struct {
	Value uint8
}

type reservesOutput struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

type slot0Output struct {
	SqrtPriceX96               *big.Int
	Tick                       *big.Int
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}

type pairInfo struct {
	Factory common.Address
	Token0  common.Address
	Token1  common.Address
}

func pairKey(pair common.Address) string {
	return "pair:" + pair.Hex()
}

func (c *Client) call(ctx context.Context, calls ...*multicall.Call) error {
	if _, err := c.batch.Call(&bind.CallOpts{Context: ctx}, calls...); err != nil {
		return mapError(err)
	}
	return nil
}

// GetPair reads reserves and supply of pair in one batch. Factory and tokens
// are fetched once and cached.
func (c *Client) GetPair(ctx context.Context, pair common.Address) (uniswapv2.Pool, error) {
	contract, err := multicall.NewContract(PairABIJSON, pair.Hex())
	if err != nil {
		return uniswapv2.Pool{}, fmt.Errorf("parse pair abi: %w", err)
	}

	reserves := new(reservesOutput)
	supply := new(bigOutput)
	calls := []*multicall.Call{
		contract.NewCall(reserves, "getReserves"),
		contract.NewCall(supply, "totalSupply"),
	}

	info, cacheErr := c.pairs.Get(ctx, pairKey(pair))
	cached := cacheErr == nil
	factory, token0, token1 := new(addressOutput), new(addressOutput), new(addressOutput)
	if !cached {
		calls = append(calls,
			contract.NewCall(factory, "factory"),
			contract.NewCall(token0, "token0"),
			contract.NewCall(token1, "token1"),
		)
	}

	if err := c.call(ctx, calls...); err != nil {
		return uniswapv2.Pool{}, fmt.Errorf("reading pair %s: %w", pair.Hex(), err)
	}

	if !cached {
		info = pairInfo{Factory: factory.Value, Token0: token0.Value, Token1: token1.Value}
		if err := c.pairs.Set(ctx, pairKey(pair), info, store.WithCost(1)); err != nil {
			c.logger.Warn("Failed to cache pair info", "pair", pair, "error", err)
		}
	}

	return uniswapv2.Pool{
		Address:     pair,
		Factory:     info.Factory,
		Token0:      info.Token0,
		Token1:      info.Token1,
		Reserve0:    reserves.Reserve0,
		Reserve1:    reserves.Reserve1,
		TotalSupply: supply.Value,
	}, nil
}

// GetShareBalance reads the pair token balance of account.
func (c *Client) GetShareBalance(ctx context.Context, account, pair common.Address) (*big.Int, error) {
	contract, err := multicall.NewContract(PairABIJSON, pair.Hex())
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	balance := new(bigOutput)
	if err := c.call(ctx, contract.NewCall(balance, "balanceOf", account)); err != nil {
		return nil, fmt.Errorf("reading balance of %s: %w", account.Hex(), err)
	}
	return balance.Value, nil
}

// Allowance reads how much of token spender may pull from owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	contract, err := multicall.NewContract(PairABIJSON, token.Hex())
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	allowance := new(bigOutput)
	if err := c.call(ctx, contract.NewCall(allowance, "allowance", owner, spender)); err != nil {
		return nil, fmt.Errorf("reading allowance of %s: %w", token.Hex(), err)
	}
	return allowance.Value, nil
}

// GetPool resolves the destination pool through the factory and reads its
// price. A pool with a zero sqrt price exists but was never initialized.
func (c *Client) GetPool(ctx context.Context, token0, token1 common.Address, fee uniswapv3.FeeAmount) (uniswapv3.PoolViewMinimal, error) {
	view := uniswapv3.PoolViewMinimal{Token0: token0, Token1: token1, Fee: fee, State: uniswapv3.PoolNotExists}

	factory, err := multicall.NewContract(V3FactoryABIJSON, c.deployment.V3Factory.Hex())
	if err != nil {
		return view, fmt.Errorf("parse factory abi: %w", err)
	}
	poolAddr := new(addressOutput)
	if err := c.call(ctx, factory.NewCall(poolAddr, "getPool", token0, token1, big.NewInt(int64(fee)))); err != nil {
		return view, fmt.Errorf("resolving pool %s/%s/%d: %w", token0.Hex(), token1.Hex(), fee, err)
	}
	if poolAddr.Value == (common.Address{}) {
		return view, nil
	}
	view.Address = poolAddr.Value

	pool, err := multicall.NewContract(V3PoolABIJSON, poolAddr.Value.Hex())
	if err != nil {
		return view, fmt.Errorf("parse pool abi: %w", err)
	}
	slot0 := new(slot0Output)
	liquidity := new(bigOutput)
	if err := c.call(ctx, pool.NewCall(slot0, "slot0"), pool.NewCall(liquidity, "liquidity")); err != nil {
		return view, fmt.Errorf("reading pool %s: %w", poolAddr.Value.Hex(), err)
	}

	view.Liquidity = liquidity.Value
	if slot0.SqrtPriceX96 == nil || slot0.SqrtPriceX96.Sign() == 0 {
		view.State = uniswapv3.PoolUninitialized
		return view, nil
	}
	view.State = uniswapv3.PoolExists
	view.SqrtPriceX96 = slot0.SqrtPriceX96
	view.Tick = slot0.Tick.Int64()
	return view, nil
}

// TokenMetadata reads name, symbol and decimals of token.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (tokenregistry.Token, error) {
	contract, err := multicall.NewContract(ERC20MetadataABIJSON, token.Hex())
	if err != nil {
		return tokenregistry.Token{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	name, symbol, decimals := new(stringOutput), new(stringOutput), new(uint8Output)
	err = c.call(ctx,
		contract.NewCall(name, "name"),
		contract.NewCall(symbol, "symbol"),
		contract.NewCall(decimals, "decimals"),
	)
	if err != nil {
		return tokenregistry.Token{}, fmt.Errorf("reading metadata of %s: %w", token.Hex(), err)
	}
	return tokenregistry.Token{
		Address:  token,
		Name:     name.Value,
		Symbol:   symbol.Value,
		Decimals: decimals.Value,
	}, nil
}
