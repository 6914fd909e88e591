package ethereum

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-migrator-go/migrator"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrChainMismatch = fmt.Errorf("%w: rpc endpoint serves a different chain", migrator.ErrInput)
	ErrNoSigner      = fmt.Errorf("%w: client has no signer", migrator.ErrInput)
)

// JSON-RPC error codes with a meaning beyond "try again".
const (
	codeUserRejected      = 4001
	codeExecutionReverted = 3
)

// mapError classifies a node or wallet error into the migrator taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return fmt.Errorf("%w: %v", migrator.ErrUserRejected, err)
		case codeExecutionReverted:
			return fmt.Errorf("%w: %v", migrator.ErrTransactionReverted, err)
		}
	}
	return migrator.Transient(err)
}
