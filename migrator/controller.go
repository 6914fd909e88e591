package migrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionState is the externally visible lifecycle of a migration.
type ExecutionState uint8

const (
	Idle ExecutionState = iota
	AwaitingApproval
	// Confirming is the only state a migration can be submitted from.
	Confirming
	// Pending means a submission was made; it is entered before the chain
	// acknowledges anything.
	Pending
	Succeeded
	Failed
)

func (s ExecutionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingApproval:
		return "awaiting_approval"
	case Confirming:
		return "confirming"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Readiness is what the controller observes on each recalculation.
type Readiness struct {
	// Approved is true when the approval machine is ready.
	Approved bool
	// Complete is true when a valid range and minimums were computed.
	Complete bool
}

// TransitionFunc is called after every state change.
type TransitionFunc func(from, to ExecutionState)

// Controller coordinates readiness, submission and completion of one
// migration. It allows a single submission in flight.
type Controller struct {
	mu      sync.Mutex
	state   ExecutionState
	pending common.Hash
	failure error

	submitter    Submitter
	logger       Logger
	onTransition TransitionFunc
}

// NewController returns a controller in Idle.
func NewController(submitter Submitter, logger Logger, onTransition TransitionFunc) *Controller {
	if onTransition == nil {
		onTransition = func(ExecutionState, ExecutionState) {}
	}
	return &Controller{submitter: submitter, logger: logger, onTransition: onTransition}
}

// State returns the current state.
func (c *Controller) State() ExecutionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failure returns the reason for the last failure, if any.
func (c *Controller) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// PendingTx returns the hash of the in-flight migration.
func (c *Controller) PendingTx() (common.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.state == Pending && c.pending != (common.Hash{})
}

func (c *Controller) setState(to ExecutionState) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Debug("Execution state changed", "from", from, "to", to)
	c.onTransition(from, to)
}

// Update applies a readiness observation and returns the resulting state.
// Failed steps back to AwaitingApproval if approval survived and Idle
// otherwise, and stays there until the next observation.
func (c *Controller) Update(r Readiness) ExecutionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		before := c.state
		switch c.state {
		case Idle:
			c.setState(AwaitingApproval)
		case AwaitingApproval:
			if r.Approved && r.Complete {
				c.setState(Confirming)
			}
		case Confirming:
			if !r.Approved || !r.Complete {
				c.setState(AwaitingApproval)
			}
		case Failed:
			if r.Approved {
				c.setState(AwaitingApproval)
			} else {
				c.setState(Idle)
			}
			return c.state
		case Pending, Succeeded:
		}
		if c.state == before {
			return c.state
		}
	}
}

// Submit sends plan. The controller moves to Pending before calling out.
// A transient failure returns it to Confirming; a rejection fails it.
func (c *Controller) Submit(ctx context.Context, plan *Plan) (common.Hash, error) {
	c.mu.Lock()
	switch c.state {
	case Confirming:
	case Pending:
		c.mu.Unlock()
		return common.Hash{}, ErrMigrationInFlight
	default:
		state := c.state
		c.mu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: state %s", ErrNotReady, state)
	}
	if err := plan.consume(); err != nil {
		c.mu.Unlock()
		return common.Hash{}, err
	}
	c.failure = nil
	c.pending = common.Hash{}
	c.setState(Pending)
	c.mu.Unlock()

	hash, err := c.submitter.Submit(ctx, plan)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		err = Transient(err)
		if errors.Is(err, ErrTransient) {
			c.logger.Warn("Migration submission failed, can be retried", "error", err)
			c.setState(Confirming)
			return common.Hash{}, err
		}
		c.logger.Warn("Migration submission rejected", "error", err)
		c.failure = err
		c.setState(Failed)
		return common.Hash{}, err
	}

	c.pending = hash
	c.logger.Info("Migration submitted", "tx", hash, "deadline", plan.Deadline())
	return hash, nil
}

// Observe applies the chain status of the pending migration together with
// the latest share balance. Success needs both a confirmed transaction and
// an emptied balance.
func (c *Controller) Observe(status TxStatus, shareBalance *big.Int) ExecutionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Pending {
		return c.state
	}

	switch status {
	case TxConfirmed:
		if shareBalance != nil && shareBalance.Sign() == 0 {
			c.logger.Info("Migration succeeded", "tx", c.pending)
			c.setState(Succeeded)
			break
		}
		c.logger.Debug("Migration confirmed, waiting for the share balance to empty", "tx", c.pending, "balance", shareBalance)
	case TxReverted:
		c.failure = fmt.Errorf("%w: %s", ErrTransactionReverted, c.pending.Hex())
		c.logger.Warn("Migration reverted", "tx", c.pending)
		c.pending = common.Hash{}
		c.setState(Failed)
	}
	return c.state
}
