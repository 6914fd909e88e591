package migrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/defistate/defistate-migrator-go/chains"
	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// SessionConfig holds the collaborators of one migration session.
type SessionConfig struct {
	Pair       common.Address
	Deployment chains.Deployment

	Reserves   ReserveOracle
	Pools      PoolReader
	Allowances AllowanceService
	Submitter  Submitter
	Observer   Observer

	// TickMath defaults to the Uniswap v3 math when nil.
	TickMath TickMath
	Policy   Policy
	Logger   Logger
	Registry prometheus.Registerer
}

func (c *SessionConfig) validate() error {
	if c.Pair == (common.Address{}) {
		return errors.New("config: Pair is required")
	}
	if err := c.Deployment.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Reserves == nil {
		return errors.New("config: Reserves is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.Allowances == nil {
		return errors.New("config: Allowances is required")
	}
	if c.Submitter == nil {
		return errors.New("config: Submitter is required")
	}
	if c.Observer == nil {
		return errors.New("config: Observer is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if err := c.Policy.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Params are the user's choices for a migration.
type Params struct {
	Fee       uniswapv3.FeeAmount
	Range     PriceRange
	Tolerance SlippageTolerance
}

// Session migrates one account's position in one pair. It owns the only two
// pieces of state that outlive a calculation: the approval machine and the
// execution controller.
type Session struct {
	cfg        SessionConfig
	projector  *Projector
	approval   *ApprovalMachine
	controller *Controller
	metrics    *Metrics
	logger     Logger

	mu     sync.Mutex
	last   *Snapshot
	inputs Inputs
}

// NewSession validates cfg and returns an idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Registry)
	logger := cfg.Logger
	s := &Session{
		cfg:       cfg,
		projector: NewProjector(cfg.TickMath),
		approval:  NewApprovalMachine(cfg.Allowances, logger),
		metrics:   metrics,
		logger:    logger,
	}
	s.controller = NewController(cfg.Submitter, logger, func(_, to ExecutionState) {
		metrics.transitions.WithLabelValues(to.String()).Inc()
	})
	return s, nil
}

// State returns the approval and execution states.
func (s *Session) State() (ApprovalState, ExecutionState) {
	return s.approval.State(), s.controller.State()
}

// Last returns the most recent snapshot.
func (s *Session) Last() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Snapshot{}, false
	}
	return *s.last, true
}

// Failure returns why the last migration attempt failed.
func (s *Session) Failure() error {
	return s.controller.Failure()
}

// Recalculate reads fresh chain state, advances both state machines from it
// and recomputes the snapshot. A read failure leaves every state untouched.
func (s *Session) Recalculate(ctx context.Context, net engine.NetworkContext, params Params) (snap Snapshot, err error) {
	start := time.Now()
	defer func() {
		s.metrics.recalcDuration.WithLabelValues(resultLabel(err)).Observe(time.Since(start).Seconds())
	}()

	// deadlines and the snapshot height come from the head
	if !net.HasBlock() {
		return Snapshot{}, ErrNoBlock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.cfg.Reserves.GetPair(ctx, s.cfg.Pair)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading pair %s: %w", s.cfg.Pair.Hex(), Transient(err))
	}
	balance, err := s.cfg.Reserves.GetShareBalance(ctx, net.Account, s.cfg.Pair)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading share balance: %w", Transient(err))
	}
	dest, err := s.cfg.Pools.GetPool(ctx, pair.Token0, pair.Token1, params.Fee)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading destination pool: %w", Transient(err))
	}
	allowance, err := s.cfg.Allowances.Allowance(ctx, s.cfg.Pair, net.Account, s.cfg.Deployment.Migrator)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading allowance: %w", Transient(err))
	}

	var approvalStatus, migrationStatus TxStatus
	approvalTx, approvalPending := s.approval.PendingApproval()
	if approvalPending {
		if approvalStatus, err = s.cfg.Observer.Observe(ctx, approvalTx); err != nil {
			return Snapshot{}, fmt.Errorf("observing approval %s: %w", approvalTx.Hex(), Transient(err))
		}
	}
	migrationTx, migrationPending := s.controller.PendingTx()
	if migrationPending {
		if migrationStatus, err = s.cfg.Observer.Observe(ctx, migrationTx); err != nil {
			return Snapshot{}, fmt.Errorf("observing migration %s: %w", migrationTx.Hex(), Transient(err))
		}
	}

	// every read succeeded; advance the machines
	if approvalPending {
		s.approval.ObserveApproval(approvalStatus)
	}
	s.approval.Sync(allowance, balance, net.Block.Timestamp)
	if migrationPending {
		if s.controller.Observe(migrationStatus, balance) == Succeeded {
			s.approval.ConsumePermit()
		}
	}

	in := Inputs{
		Network:          net,
		Pair:             pair,
		Balance:          balance,
		Dest:             dest,
		Fee:              params.Fee,
		Range:            params.Range,
		Tolerance:        params.Tolerance,
		CanonicalFactory: s.cfg.Deployment.V2Factory,
		Policy:           s.cfg.Policy,
	}
	snap, err = Compute(in, s.projector)
	if err != nil {
		if errors.Is(err, ErrInvariant) {
			s.logger.Error("Migration aborted on inconsistent numbers", "pair", s.cfg.Pair, "error", err)
		}
		s.controller.Update(Readiness{Approved: s.approval.IsReady()})
		s.last = nil
		return Snapshot{}, err
	}

	snap.ExecutionState = s.controller.Update(Readiness{
		Approved: s.approval.IsReady(),
		Complete: snap.submittable(),
	})
	snap.ApprovalState = s.approval.State()
	if snap.Divergence != nil {
		s.metrics.divergenceBps.Set(float64(snap.Divergence.BasisPoints()))
		if snap.Divergence.IsLarge {
			s.logger.Warn("Large price divergence between source and destination",
				"pair", s.cfg.Pair,
				"fee", params.Fee,
				"percent", snap.Divergence.Decimal(2).String(),
			)
		}
	}

	s.last = &snap
	s.inputs = in
	return snap, nil
}

func (s *Session) approvalRequest(net engine.NetworkContext) (ApprovalRequest, error) {
	if !net.HasBlock() {
		return ApprovalRequest{}, ErrNoBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return ApprovalRequest{}, ErrNoSnapshot
	}
	return ApprovalRequest{
		ChainID:   net.ChainID,
		Token:     s.cfg.Pair,
		Owner:     net.Account,
		Spender:   s.cfg.Deployment.Migrator,
		Amount:    new(big.Int).Set(s.last.Balance),
		Deadline:  net.Deadline(s.cfg.Policy.DeadlineWindow),
		Canonical: s.last.Venue == VenueCanonical,
	}, nil
}

// RequestApproval sends an on-chain approval of the share balance.
func (s *Session) RequestApproval(ctx context.Context, net engine.NetworkContext) error {
	req, err := s.approvalRequest(net)
	if err != nil {
		return err
	}
	return s.approval.RequestApproval(ctx, req)
}

// RequestPermit asks for a permit signature, falling back to an approval as
// the approval machine decides.
func (s *Session) RequestPermit(ctx context.Context, net engine.NetworkContext) error {
	req, err := s.approvalRequest(net)
	if err != nil {
		return err
	}
	return s.approval.RequestPermit(ctx, req)
}

// SubmitMigration builds a fresh plan from the last snapshot and submits it.
func (s *Session) SubmitMigration(ctx context.Context, net engine.NetworkContext) (hash common.Hash, err error) {
	defer func() {
		s.metrics.submissions.WithLabelValues(resultLabel(err)).Inc()
	}()

	if !net.HasBlock() {
		return common.Hash{}, ErrNoBlock
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return common.Hash{}, ErrNoSnapshot
	}
	snap := *s.last
	if snap.RangeErr != nil {
		return common.Hash{}, snap.RangeErr
	}

	outcome := s.approval.Outcome()
	if s.controller.Update(Readiness{Approved: outcome.Ready(), Complete: snap.submittable()}) != Confirming {
		return common.Hash{}, fmt.Errorf("%w: approval %s, execution %s", ErrNotReady, outcome.State, s.controller.State())
	}

	plan, err := BuildPlan(outcome, PlanInputs{
		Network:    net,
		Pair:       s.inputs.Pair.Address,
		Token0:     s.inputs.Pair.Token0,
		Token1:     s.inputs.Pair.Token1,
		Fee:        s.inputs.Fee,
		Balance:    snap.Balance,
		Projection: *snap.Projection,
		Minimums:   *snap.Minimums,
		Deadline:   net.Deadline(s.cfg.Policy.DeadlineWindow),
		Policy:     s.cfg.Policy,
	})
	if err != nil {
		return common.Hash{}, err
	}

	s.logger.Info("Submitting migration",
		"pair", s.cfg.Pair,
		"actions", fmt.Sprint(plan.Kinds()),
		"fee", s.inputs.Fee,
		"tickLower", snap.Projection.TickLower,
		"tickUpper", snap.Projection.TickUpper,
	)
	return s.controller.Submit(ctx, plan)
}
