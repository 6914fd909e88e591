package ethereum

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"reflect"
	"sync"
	"testing"

	"github.com/defistate/defistate-migrator-go/chains"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/forta-network/go-multicall"
	"github.com/stretchr/testify/require"
)

var (
	testPair    = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	testToken0  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testToken1  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testV3Pool  = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testDeploy  = mustDeployment(chains.Mainnet)
)

func mustDeployment(chainID uint64) chains.Deployment {
	d, err := chains.DeploymentFor(chainID)
	if err != nil {
		panic(err)
	}
	return d
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// handler answers one contract method with its output values.
type handler func(inputs []any) ([]any, error)

// fakeBatch answers multicall batches from per-method handlers. Outputs are
// ABI encoded and decoded again, so a handler returning the wrong Solidity
// type fails the call.
type fakeBatch struct {
	mu       sync.Mutex
	handlers map[string]handler
	err      error
	batches  [][]string
}

func callKey(addr common.Address, method string) string {
	return addr.Hex() + "." + method
}

func (f *fakeBatch) on(addr common.Address, method string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]handler{}
	}
	f.handlers[callKey(addr, method)] = h
}

func (f *fakeBatch) returns(addr common.Address, method string, values ...any) {
	f.on(addr, method, func([]any) ([]any, error) { return values, nil })
}

func (f *fakeBatch) lastBatch() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *fakeBatch) Call(opts *bind.CallOpts, calls ...*multicall.Call) ([]*multicall.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var methods []string
	for _, call := range calls {
		methods = append(methods, call.Method)
		h, ok := f.handlers[callKey(call.Contract.Address, call.Method)]
		if !ok {
			return nil, fmt.Errorf("unexpected call %s on %s", call.Method, call.Contract.Address.Hex())
		}
		if _, err := call.Contract.ABI.Pack(call.Method, call.Inputs...); err != nil {
			return nil, fmt.Errorf("pack %s: %w", call.Method, err)
		}
		values, err := h(call.Inputs)
		if err != nil {
			return nil, err
		}
		data, err := call.Contract.ABI.Methods[call.Method].Outputs.Pack(values...)
		if err != nil {
			return nil, fmt.Errorf("pack %s outputs: %w", call.Method, err)
		}
		if err := unpackOutputs(call, data); err != nil {
			return nil, err
		}
	}
	f.batches = append(f.batches, methods)
	return calls, nil
}

// unpackOutputs fills the output struct positionally.
func unpackOutputs(call *multicall.Call, data []byte) error {
	out, err := call.Contract.ABI.Unpack(call.Method, data)
	if err != nil {
		return err
	}
	dst := reflect.ValueOf(call.Outputs).Elem()
	for i := 0; i < dst.NumField(); i++ {
		field := dst.Field(i)
		field.Set(reflect.ValueOf(abi.ConvertType(out[i], field.Interface())))
	}
	return nil
}

type fakeBackend struct {
	mu      sync.Mutex
	chainID uint64
	head    *types.Header

	nonce       uint64
	gas         uint64
	tip         *big.Int
	gasPrice    *big.Int
	estimateErr error
	sendErr     error
	sent        []*types.Transaction
	estimates   []ethereum.CallMsg

	receipts   map[common.Hash]*types.Receipt
	receiptErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID: chains.Mainnet,
		head: &types.Header{
			Number:  big.NewInt(18_000_000),
			Time:    1_700_000_000,
			BaseFee: big.NewInt(10_000_000_000),
		},
		nonce:    5,
		gas:      100_000,
		tip:      big.NewInt(1_000_000_000),
		gasPrice: big.NewInt(20_000_000_000),
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(f.chainID), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.CopyHeader(f.head), nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates = append(f.estimates, msg)
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.gas, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// codedError is a JSON-RPC error with a code, as wallets and nodes return them.
type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeBackend, *fakeBatch) {
	t.Helper()
	backend := newFakeBackend()
	batch := &fakeBatch{}
	c, err := NewClient(backend, batch, Config{Deployment: testDeploy, Logger: discardLogger()}, opts...)
	require.NoError(t, err)
	return c, backend, batch
}

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewKeySignerFromKey(key)
}
