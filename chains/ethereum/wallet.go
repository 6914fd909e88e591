package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/defistate/defistate-migrator-go/migrator"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/forta-network/go-multicall"
)

// permitVersion is the EIP-712 domain version of constant-product pairs.
const permitVersion = "1"

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": {
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// Approve sends approve(spender, amount) on token.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	parsed, err := PairABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse pair abi: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	hash, err := c.send(ctx, token, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("approve %s: %w", token.Hex(), err)
	}
	c.logger.Info("Approval sent", "token", token, "spender", spender, "tx", hash)
	return hash, nil
}

// Submit sends the plan's multicall to the migrator.
func (c *Client) Submit(ctx context.Context, plan *migrator.Plan) (common.Hash, error) {
	data, err := plan.Calldata()
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := c.send(ctx, c.deployment.Migrator, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submit migration: %w", err)
	}
	c.logger.Info("Migration sent", "migrator", c.deployment.Migrator, "tx", hash, "actions", len(plan.Actions()))
	return hash, nil
}

// send estimates, signs and broadcasts a call to to. EIP-1559 chains get a
// dynamic fee transaction with a fee cap of twice the base fee plus tip.
func (c *Client) send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoSigner
	}
	from := c.signer.Address()
	chainID := new(big.Int).SetUint64(c.deployment.ChainID)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, mapError(err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, mapError(err)
	}
	gas += gas * c.gasBufferPercent / 100

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, mapError(err)
	}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, mapError(err)
		}
		feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     new(big.Int),
			Data:      data,
		})
	} else {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, mapError(err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    new(big.Int),
			Data:     data,
		})
	}

	signed, err := c.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, mapError(err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, mapError(err)
	}
	return signed.Hash(), nil
}

// SignPermit signs an EIP-712 permit for the pair token with the client's key.
func (c *Client) SignPermit(ctx context.Context, req migrator.PermitRequest) (migrator.PermitSignature, error) {
	if c.signer == nil {
		return migrator.PermitSignature{}, ErrNoSigner
	}
	if req.Owner != c.signer.Address() {
		return migrator.PermitSignature{}, fmt.Errorf("%w: permit owner %s is not the signer %s", migrator.ErrInput, req.Owner.Hex(), c.signer.Address().Hex())
	}

	contract, err := multicall.NewContract(PairABIJSON, req.Token.Hex())
	if err != nil {
		return migrator.PermitSignature{}, fmt.Errorf("parse pair abi: %w", err)
	}
	name, nonce := new(stringOutput), new(bigOutput)
	if err := c.call(ctx, contract.NewCall(name, "name"), contract.NewCall(nonce, "nonces", req.Owner)); err != nil {
		return migrator.PermitSignature{}, fmt.Errorf("reading permit nonce: %w", err)
	}

	hash, err := permitDigest(name.Value, req, nonce.Value)
	if err != nil {
		return migrator.PermitSignature{}, fmt.Errorf("%w: %w", migrator.ErrInvariant, err)
	}
	sig, err := c.signer.SignHash(hash)
	if err != nil {
		return migrator.PermitSignature{}, mapError(err)
	}

	out := migrator.PermitSignature{
		Token:    req.Token,
		Value:    new(big.Int).Set(req.Value),
		Deadline: req.Deadline,
		V:        sig[64] + 27,
	}
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	c.logger.Info("Permit signed", "token", req.Token, "nonce", nonce.Value, "deadline", req.Deadline)
	return out, nil
}

func permitDigest(name string, req migrator.PermitRequest, nonce *big.Int) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           permitVersion,
			ChainId:           math.NewHexOrDecimal256(int64(req.ChainID)),
			VerifyingContract: req.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    req.Owner.Hex(),
			"spender":  req.Spender.Hex(),
			"value":    req.Value.String(),
			"nonce":    nonce.String(),
			"deadline": strconv.FormatUint(req.Deadline, 10),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	return hash, err
}

// Observe reports whether tx is still pending, mined or reverted.
func (c *Client) Observe(ctx context.Context, tx common.Hash) (migrator.TxStatus, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, tx)
	if errors.Is(err, ethereum.NotFound) {
		return migrator.TxPending, nil
	}
	if err != nil {
		return migrator.TxPending, mapError(err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return migrator.TxConfirmed, nil
	}
	return migrator.TxReverted, nil
}

var (
	_ migrator.ReserveOracle    = (*Client)(nil)
	_ migrator.PoolReader       = (*Client)(nil)
	_ migrator.AllowanceService = (*Client)(nil)
	_ migrator.Submitter        = (*Client)(nil)
	_ migrator.Observer         = (*Client)(nil)
)
