package migrator

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

// ActionKind tags a migration action.
type ActionKind uint8

const (
	ActionPermit ActionKind = iota
	ActionInitializePool
	ActionMigrate
)

func (k ActionKind) String() string {
	switch k {
	case ActionPermit:
		return "permit"
	case ActionInitializePool:
		return "initialize_pool"
	case ActionMigrate:
		return "migrate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Action is one call inside the migration multicall.
type Action interface {
	Kind() ActionKind
	isAction()
}

// PermitAction lets the migrator spend the shares via a signed permit.
type PermitAction struct {
	Signature PermitSignature
}

// InitializePoolAction creates the destination pool if needed and sets its price.
type InitializePoolAction struct {
	Token0       common.Address
	Token1       common.Address
	Fee          uniswapv3.FeeAmount
	SqrtPriceX96 *big.Int
}

// MigrateParams mirrors the migrator contract's migrate argument.
type MigrateParams struct {
	Pair                common.Address
	LiquidityToMigrate  *big.Int
	PercentageToMigrate uint8
	Token0              common.Address
	Token1              common.Address
	Fee                 uniswapv3.FeeAmount
	TickLower           int64
	TickUpper           int64
	Amount0Min          *big.Int
	Amount1Min          *big.Int
	Recipient           common.Address
	Deadline            uint64
	RefundAsETH         bool
}

// MigrateAction burns the shares and mints the new position.
type MigrateAction struct {
	Params MigrateParams
}

func (PermitAction) Kind() ActionKind         { return ActionPermit }
func (InitializePoolAction) Kind() ActionKind { return ActionInitializePool }
func (MigrateAction) Kind() ActionKind        { return ActionMigrate }

func (PermitAction) isAction()         {}
func (InitializePoolAction) isAction() {}
func (MigrateAction) isAction()        {}

// Plan is an ordered, immutable list of actions submitted as one
// transaction. A plan can be submitted once.
type Plan struct {
	actions  []Action
	deadline uint64
	consumed atomic.Bool
}

// Actions returns a copy of the actions in execution order.
func (p *Plan) Actions() []Action {
	return append([]Action(nil), p.actions...)
}

// Kinds lists the action kinds in order.
func (p *Plan) Kinds() []ActionKind {
	return lo.Map(p.actions, func(a Action, _ int) ActionKind { return a.Kind() })
}

// Deadline is the deadline carried by the migrate action.
func (p *Plan) Deadline() uint64 {
	return p.deadline
}

// Migrate returns the plan's migrate action.
func (p *Plan) Migrate() MigrateAction {
	return p.actions[len(p.actions)-1].(MigrateAction)
}

// consume marks the plan submitted. It fails on every call after the first.
func (p *Plan) consume() error {
	if !p.consumed.CompareAndSwap(false, true) {
		return ErrPlanConsumed
	}
	return nil
}

// PlanInputs is everything a plan is built from besides the approval outcome.
type PlanInputs struct {
	Network    engine.NetworkContext
	Pair       common.Address
	Token0     common.Address
	Token1     common.Address
	Fee        uniswapv3.FeeAmount
	Balance    *big.Int
	Projection Projection
	Minimums   Amounts
	// Deadline is the user's deadline, absolute seconds.
	Deadline uint64
	Policy   Policy
}

// BuildPlan assembles permit, pool initialization and migrate in that order.
// The permit is included only for a signed outcome and the pool
// initialization only when the destination has no price. The migrate deadline
// is the tighter of the user's and the permit's.
func BuildPlan(outcome ApprovalOutcome, in PlanInputs) (*Plan, error) {
	if !outcome.Ready() {
		return nil, ErrNotReady
	}
	if in.Balance == nil || in.Balance.Sign() <= 0 {
		return nil, ErrNoBalance
	}
	if !in.Minimums.valid() {
		return nil, fmt.Errorf("%w: minimums missing", ErrInvariant)
	}

	deadline := in.Deadline
	var actions []Action

	if outcome.State == SignedPermit {
		if outcome.Permit == nil {
			return nil, fmt.Errorf("%w: signed state without a permit", ErrInvariant)
		}
		actions = append(actions, PermitAction{Signature: *outcome.Permit})
		deadline = min(deadline, outcome.Permit.Deadline)
	}
	if deadline <= in.Network.Block.Timestamp {
		return nil, fmt.Errorf("%w: deadline %d, block time %d", ErrDeadlineExpired, deadline, in.Network.Block.Timestamp)
	}

	if in.Projection.FirstProvider {
		if in.Projection.SqrtPriceX96 == nil || in.Projection.SqrtPriceX96.Sign() <= 0 {
			return nil, fmt.Errorf("%w: first provider without a price", ErrInvariant)
		}
		actions = append(actions, InitializePoolAction{
			Token0:       in.Token0,
			Token1:       in.Token1,
			Fee:          in.Fee,
			SqrtPriceX96: new(big.Int).Set(in.Projection.SqrtPriceX96),
		})
	}

	actions = append(actions, MigrateAction{Params: MigrateParams{
		Pair:                in.Pair,
		LiquidityToMigrate:  new(big.Int).Set(in.Balance),
		PercentageToMigrate: in.Policy.PercentageToMigrate,
		Token0:              in.Token0,
		Token1:              in.Token1,
		Fee:                 in.Fee,
		TickLower:           in.Projection.TickLower,
		TickUpper:           in.Projection.TickUpper,
		Amount0Min:          new(big.Int).Set(in.Minimums.Amount0),
		Amount1Min:          new(big.Int).Set(in.Minimums.Amount1),
		Recipient:           in.Network.Account,
		Deadline:            deadline,
		RefundAsETH:         in.Policy.RefundAsETH,
	}})

	if err := checkOrder(actions); err != nil {
		return nil, err
	}
	return &Plan{actions: actions, deadline: deadline}, nil
}

// checkOrder enforces: a permit only first, pool initialization before
// migrate, exactly one migrate and it is last.
func checkOrder(actions []Action) error {
	kinds := lo.Map(actions, func(a Action, _ int) ActionKind { return a.Kind() })

	if n := lo.Count(kinds, ActionMigrate); n != 1 {
		return fmt.Errorf("%w: %d migrate actions", ErrPlanOrdering, n)
	}
	if kinds[len(kinds)-1] != ActionMigrate {
		return fmt.Errorf("%w: migrate is not last", ErrPlanOrdering)
	}
	if i := lo.LastIndexOf(kinds, ActionPermit); i > 0 {
		return fmt.Errorf("%w: permit at position %d", ErrPlanOrdering, i)
	}
	if lo.Count(kinds, ActionInitializePool) > 1 {
		return fmt.Errorf("%w: pool initialized twice", ErrPlanOrdering)
	}
	return nil
}
