package migrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/defistate/defistate-migrator-go/chains"
	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv2"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

var (
	testAccount   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testPair      = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	testToken0    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testToken1    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testV3Pool    = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	forkFactory   = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	testDeploy, _ = chains.DeploymentFor(chains.Mainnet)

	// sqrt price at tick 6932, the tick nearest to a 2:1 price
	sqrtPriceTick6932, _ = new(big.Int).SetString("112046559425783515914356180039", 10)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNetwork(timestamp uint64) engine.NetworkContext {
	return engine.NetworkContext{
		ChainID: chains.Mainnet,
		Account: testAccount,
		Block: engine.BlockSummary{
			Number:    big.NewInt(18_000_000),
			Timestamp: timestamp,
		},
	}
}

// scenarioPair is a pair with reserves 1,000,000 / 2,000,000 and 1,000 shares.
func scenarioPair(factory common.Address) uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:     testPair,
		Factory:     factory,
		Token0:      testToken0,
		Token1:      testToken1,
		Reserve0:    big.NewInt(1_000_000),
		Reserve1:    big.NewInt(2_000_000),
		TotalSupply: big.NewInt(1_000),
	}
}

func existingPool() uniswapv3.PoolViewMinimal {
	return uniswapv3.PoolViewMinimal{
		Address:      testV3Pool,
		Token0:       testToken0,
		Token1:       testToken1,
		Fee:          uniswapv3.FeeMedium,
		State:        uniswapv3.PoolExists,
		Tick:         6932,
		Liquidity:    big.NewInt(1_000_000),
		SqrtPriceX96: new(big.Int).Set(sqrtPriceTick6932),
	}
}

func missingPool() uniswapv3.PoolViewMinimal {
	return uniswapv3.PoolViewMinimal{
		Token0: testToken0,
		Token1: testToken1,
		Fee:    uniswapv3.FeeMedium,
		State:  uniswapv3.PoolNotExists,
	}
}

func amounts(a, b int64) Amounts {
	return Amounts{Amount0: big.NewInt(a), Amount1: big.NewInt(b)}
}

// exactTickMath deposits everything it is offered, so positions equal
// valuations exactly.
type exactTickMath struct {
	v3TickMath
}

func (exactTickMath) ProjectAmounts(_ *big.Int, _, _, _ int64, max Amounts) (Amounts, error) {
	return NewAmounts(max.Amount0, max.Amount1), nil
}

// greedyTickMath returns more than it is offered.
type greedyTickMath struct {
	v3TickMath
}

func (greedyTickMath) ProjectAmounts(_ *big.Int, _, _, _ int64, max Amounts) (Amounts, error) {
	return Amounts{
		Amount0: new(big.Int).Add(max.Amount0, big.NewInt(1)),
		Amount1: new(big.Int).Set(max.Amount1),
	}, nil
}

type fakeAllowances struct {
	mu         sync.Mutex
	allowance  *big.Int
	permitErr  error
	approveErr error

	approveCalls int
	permitCalls  int
	approveTx    common.Hash
	lastPermit   PermitRequest
}

func (f *fakeAllowances) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeAllowances) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls++
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	f.approveTx = common.HexToHash("0xa11")
	return f.approveTx, nil
}

func (f *fakeAllowances) SignPermit(ctx context.Context, req PermitRequest) (PermitSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permitCalls++
	f.lastPermit = req
	if f.permitErr != nil {
		return PermitSignature{}, f.permitErr
	}
	return PermitSignature{
		Token:    req.Token,
		Value:    new(big.Int).Set(req.Value),
		Deadline: req.Deadline,
		V:        27,
		R:        [32]byte{1},
		S:        [32]byte{2},
	}, nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	hash  common.Hash
	plans []*Plan
}

func (f *fakeSubmitter) Submit(ctx context.Context, plan *Plan) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	if f.err != nil {
		return common.Hash{}, f.err
	}
	if f.hash == (common.Hash{}) {
		f.hash = common.HexToHash("0xbeef")
	}
	return f.hash, nil
}

type fakeObserver struct {
	mu       sync.Mutex
	statuses map[common.Hash]TxStatus
	err      error
}

func (f *fakeObserver) set(tx common.Hash, status TxStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[common.Hash]TxStatus{}
	}
	f.statuses[tx] = status
}

func (f *fakeObserver) Observe(ctx context.Context, tx common.Hash) (TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return TxPending, f.err
	}
	return f.statuses[tx], nil
}

type fakeChain struct {
	mu      sync.Mutex
	pair    uniswapv2.Pool
	balance *big.Int
	pool    uniswapv3.PoolViewMinimal
	err     error
}

func (f *fakeChain) GetPair(ctx context.Context, pair common.Address) (uniswapv2.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uniswapv2.Pool{}, f.err
	}
	return f.pair, nil
}

func (f *fakeChain) GetShareBalance(ctx context.Context, account, pair common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeChain) GetPool(ctx context.Context, token0, token1 common.Address, fee uniswapv3.FeeAmount) (uniswapv3.PoolViewMinimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uniswapv3.PoolViewMinimal{}, f.err
	}
	return f.pool, nil
}

func (f *fakeChain) setBalance(v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = big.NewInt(v)
}

var errRPC = errors.New("dial tcp: connection refused")
