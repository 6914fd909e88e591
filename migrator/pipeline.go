package migrator

import (
	"errors"
	"math/big"

	"github.com/defistate/defistate-migrator-go/engine"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv2"
	v2calculator "github.com/defistate/defistate-migrator-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/sqrtpricemath"
	"github.com/ethereum/go-ethereum/common"
)

// Inputs is one consistent read of everything a snapshot depends on.
type Inputs struct {
	Network engine.NetworkContext
	Pair    uniswapv2.Pool
	Balance *big.Int
	Dest    uniswapv3.PoolViewMinimal

	Fee       uniswapv3.FeeAmount
	Range     PriceRange
	Tolerance SlippageTolerance

	// CanonicalFactory decides whether Pair is a fork.
	CanonicalFactory common.Address
	Policy           Policy
}

// Snapshot is the full result of one recalculation.
type Snapshot struct {
	Block   uint64   `json:"block"`
	Venue   Venue    `json:"venue"`
	Balance *big.Int `json:"balance"`
	Valued  Amounts  `json:"valued"`
	// Migratable is Valued scaled by the policy's percentage to migrate.
	Migratable  Amounts  `json:"migratable"`
	SourcePrice *big.Rat `json:"-"`
	DestPrice   *big.Rat `json:"-"`

	DestState  uniswapv3.PoolState `json:"destState"`
	Divergence *Divergence         `json:"divergence,omitempty"`

	// Projection, Minimums and Refund are nil when RangeErr is set.
	Projection *Projection `json:"projection,omitempty"`
	Minimums   *Amounts    `json:"minimums,omitempty"`
	Refund     *Amounts    `json:"refund,omitempty"`
	RangeErr   error       `json:"-"`

	ApprovalState  ApprovalState  `json:"approvalState"`
	ExecutionState ExecutionState `json:"executionState"`
}

// Complete reports whether the snapshot carries everything a plan needs.
func (s Snapshot) Complete() bool {
	return s.RangeErr == nil && s.Projection != nil && s.Minimums != nil && s.Refund != nil
}

func (s Snapshot) submittable() bool {
	return s.Complete() && s.Balance != nil && s.Balance.Sign() > 0
}

// FirstProvider reports whether the migration creates the destination price.
func (s Snapshot) FirstProvider() bool {
	return s.Projection != nil && s.Projection.FirstProvider
}

// OutOfRange reports whether the deposit is single-sided.
func (s Snapshot) OutOfRange() bool {
	return s.Projection != nil && s.Projection.OutOfRange
}

// Compute runs the whole calculation from scratch. It holds no state, so it
// is safe to call concurrently and repeatedly on fresh inputs. An invalid
// range is reported on the snapshot rather than as an error so the valuation
// stays visible; every other failure is returned.
func Compute(in Inputs, projector *Projector) (Snapshot, error) {
	if err := in.Policy.validate(); err != nil {
		return Snapshot{}, err
	}
	if err := in.Tolerance.Validate(); err != nil {
		return Snapshot{}, err
	}

	valued, err := Valuate(in.Balance, in.Pair)
	if err != nil {
		return Snapshot{}, err
	}
	migratable, err := Migratable(valued, in.Policy.PercentageToMigrate)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Venue:      VenueFork,
		Balance:    new(big.Int).Set(in.Balance),
		Valued:     valued,
		Migratable: migratable,
		DestState:  in.Dest.State,
	}
	if in.Network.Block.Number != nil {
		snap.Block = in.Network.Block.Number.Uint64()
	}
	if in.Pair.IsCanonical(in.CanonicalFactory) {
		snap.Venue = VenueCanonical
	}

	// an empty pair has no price; only a first provider needs one
	if price, err := v2calculator.GetSpotPrice(in.Pair); err == nil {
		snap.SourcePrice = price
	}
	if in.Dest.HasPrice() {
		if price, err := sqrtpricemath.PriceX192(in.Dest.SqrtPriceX96); err == nil {
			snap.DestPrice = price
		}
	}
	snap.Divergence = DetectDivergence(snap.SourcePrice, snap.DestPrice, in.Policy.DivergenceThresholdPercent)

	proj, err := projector.Project(migratable, in.Range, in.Fee, in.Dest, snap.SourcePrice)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			snap.RangeErr = err
			return snap, nil
		}
		return Snapshot{}, err
	}

	minimums, err := Minimums(proj.Position, in.Tolerance)
	if err != nil {
		return Snapshot{}, err
	}
	// the pair burns the whole balance; whatever is not deposited comes back
	refund, err := Refund(valued, proj.Position)
	if err != nil {
		return Snapshot{}, err
	}

	snap.Projection = &proj
	snap.Minimums = &minimums
	snap.Refund = &refund
	return snap, nil
}
