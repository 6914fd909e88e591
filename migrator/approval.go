package migrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ApprovalState tracks how the migrator is allowed to pull the share token.
type ApprovalState uint8

const (
	NotApproved ApprovalState = iota
	// ApprovalPending means an approve transaction was sent and is not yet mined.
	ApprovalPending
	Approved
	SignedPermit
)

func (s ApprovalState) String() string {
	switch s {
	case NotApproved:
		return "not_approved"
	case ApprovalPending:
		return "pending"
	case Approved:
		return "approved"
	case SignedPermit:
		return "signed_permit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ApprovalRequest carries what either approval path needs.
type ApprovalRequest struct {
	ChainID uint64
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
	// Deadline bounds a permit signature.
	Deadline uint64
	// Canonical is false for forked pairs, which are never asked for a permit.
	Canonical bool
}

func (r ApprovalRequest) validate() error {
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return ErrNoBalance
	}
	if r.Token == (common.Address{}) || r.Spender == (common.Address{}) || r.Owner == (common.Address{}) {
		return fmt.Errorf("%w: approval request needs token, owner and spender", ErrInput)
	}
	return nil
}

// ApprovalOutcome is the part of the approval state a plan is built from.
type ApprovalOutcome struct {
	State  ApprovalState
	Permit *PermitSignature
}

// Ready reports whether the migrator may pull the shares.
func (o ApprovalOutcome) Ready() bool {
	return o.State == Approved || o.State == SignedPermit
}

var errApprovalBusy = fmt.Errorf("%w: an approval request is already in flight", ErrInput)

// ApprovalMachine moves the share token from NotApproved to Approved (via an
// on-chain approve) or SignedPermit (via an off-chain signature).
type ApprovalMachine struct {
	mu      sync.Mutex
	state   ApprovalState
	permit  *PermitSignature
	pending common.Hash
	busy    bool

	service AllowanceService
	logger  Logger
}

// NewApprovalMachine returns a machine in NotApproved.
func NewApprovalMachine(service AllowanceService, logger Logger) *ApprovalMachine {
	return &ApprovalMachine{service: service, logger: logger}
}

// State returns the current state.
func (m *ApprovalMachine) State() ApprovalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsReady reports whether the state is Approved or SignedPermit.
func (m *ApprovalMachine) IsReady() bool {
	return m.Outcome().Ready()
}

// Outcome returns a copy of the state and any held permit.
func (m *ApprovalMachine) Outcome() ApprovalOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := ApprovalOutcome{State: m.state}
	if m.permit != nil {
		p := *m.permit
		out.Permit = &p
	}
	return out
}

// PendingApproval returns the approve transaction awaiting inclusion.
func (m *ApprovalMachine) PendingApproval() (common.Hash, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.state == ApprovalPending
}

// begin claims the machine for one request. It reports false when the state
// already needs no request.
func (m *ApprovalMachine) begin() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false, errApprovalBusy
	}
	if m.state != NotApproved {
		return false, nil
	}
	m.busy = true
	return true, nil
}

func (m *ApprovalMachine) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// RequestApproval sends an approve transaction. On success the machine is
// ApprovalPending until ObserveApproval or Sync sees it land.
func (m *ApprovalMachine) RequestApproval(ctx context.Context, req ApprovalRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	ok, err := m.begin()
	if !ok {
		return err
	}
	defer m.end()
	return m.approve(ctx, req)
}

func (m *ApprovalMachine) approve(ctx context.Context, req ApprovalRequest) error {
	hash, err := m.service.Approve(ctx, req.Token, req.Spender, req.Amount)
	if err != nil {
		m.logger.Warn("Approval request failed", "token", req.Token, "error", err)
		return Transient(err)
	}

	m.mu.Lock()
	m.state = ApprovalPending
	m.pending = hash
	m.mu.Unlock()

	m.logger.Info("Approval submitted", "token", req.Token, "spender", req.Spender, "tx", hash)
	return nil
}

// RequestPermit asks for a permit signature. Forked pairs skip straight to an
// approve transaction. A declined signature leaves the machine NotApproved;
// any other signing failure falls back to one approve transaction.
func (m *ApprovalMachine) RequestPermit(ctx context.Context, req ApprovalRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	ok, err := m.begin()
	if !ok {
		return err
	}
	defer m.end()

	if !req.Canonical {
		m.logger.Info("Pair is not canonical, using approval instead of permit", "token", req.Token)
		return m.approve(ctx, req)
	}

	sig, err := m.service.SignPermit(ctx, PermitRequest{
		ChainID:  req.ChainID,
		Token:    req.Token,
		Owner:    req.Owner,
		Spender:  req.Spender,
		Value:    req.Amount,
		Deadline: req.Deadline,
	})
	switch {
	case err == nil:
		m.mu.Lock()
		m.state = SignedPermit
		m.permit = &sig
		m.mu.Unlock()
		m.logger.Info("Permit signed", "token", req.Token, "deadline", sig.Deadline)
		return nil
	case errors.Is(err, ErrUserRejected):
		m.logger.Info("Permit signature declined", "token", req.Token)
		return err
	default:
		m.logger.Warn("Permit signing failed, falling back to approval", "token", req.Token, "error", err)
		if approveErr := m.approve(ctx, req); approveErr != nil {
			return fmt.Errorf("permit: %v; approval fallback: %w", err, approveErr)
		}
		return nil
	}
}

// ObserveApproval applies the chain status of the pending approve transaction.
func (m *ApprovalMachine) ObserveApproval(status TxStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != ApprovalPending {
		return
	}
	switch status {
	case TxConfirmed:
		m.state = Approved
		m.pending = common.Hash{}
	case TxReverted:
		m.state = NotApproved
		m.pending = common.Hash{}
	}
}

// Sync reconciles the machine with the chain: an allowance covering required
// approves, a shrunken allowance revokes, and a permit that expired at now or
// no longer covers required is dropped.
func (m *ApprovalMachine) Sync(allowance, required *big.Int, now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	covered := allowance != nil && required != nil && required.Sign() > 0 && allowance.Cmp(required) >= 0
	switch m.state {
	case NotApproved, ApprovalPending:
		if covered {
			m.state = Approved
			m.pending = common.Hash{}
		}
	case Approved:
		if !covered {
			m.state = NotApproved
		}
	case SignedPermit:
		if m.permit.Deadline <= now || (required != nil && m.permit.Value.Cmp(required) < 0) {
			m.state = NotApproved
			m.permit = nil
			if covered {
				m.state = Approved
			}
		}
	}
}

// ConsumePermit drops a permit once a migration has used its nonce.
func (m *ApprovalMachine) ConsumePermit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == SignedPermit {
		m.state = NotApproved
		m.permit = nil
	}
}
