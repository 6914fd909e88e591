package migrator

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
)

// Amounts is a pair of raw token amounts, token0 first.
type Amounts struct {
	Amount0 *big.Int `json:"amount0"`
	Amount1 *big.Int `json:"amount1"`
}

// NewAmounts copies a and b into a new Amounts.
func NewAmounts(a, b *big.Int) Amounts {
	return Amounts{Amount0: new(big.Int).Set(a), Amount1: new(big.Int).Set(b)}
}

func (a Amounts) valid() bool {
	return a.Amount0 != nil && a.Amount1 != nil && a.Amount0.Sign() >= 0 && a.Amount1.Sign() >= 0
}

// LessOrEqual reports whether a ≤ b componentwise.
func (a Amounts) LessOrEqual(b Amounts) bool {
	return a.Amount0.Cmp(b.Amount0) <= 0 && a.Amount1.Cmp(b.Amount1) <= 0
}

// Equal reports whether both components match.
func (a Amounts) Equal(b Amounts) bool {
	return a.Amount0.Cmp(b.Amount0) == 0 && a.Amount1.Cmp(b.Amount1) == 0
}

// IsZero reports whether both components are zero.
func (a Amounts) IsZero() bool {
	return a.Amount0.Sign() == 0 && a.Amount1.Sign() == 0
}

func (a Amounts) String() string {
	return fmt.Sprintf("{%s, %s}", a.Amount0, a.Amount1)
}

// PriceRange is a tick range. Both bounds nil selects the full range of the
// fee tier; any other nil combination is invalid.
type PriceRange struct {
	Lower *int64 `json:"lower,omitempty"`
	Upper *int64 `json:"upper,omitempty"`
}

// TickRange builds a bounded PriceRange.
func TickRange(lower, upper int64) PriceRange {
	return PriceRange{Lower: &lower, Upper: &upper}
}

// FullRange is the unbounded PriceRange.
func FullRange() PriceRange {
	return PriceRange{}
}

// IsFull reports whether no bound was chosen.
func (r PriceRange) IsFull() bool {
	return r.Lower == nil && r.Upper == nil
}

// SlippageTolerance is expressed in basis points.
type SlippageTolerance int64

// MaxSlippageTolerance is 100%.
const MaxSlippageTolerance SlippageTolerance = 10000

// Validate checks the tolerance is within [0, 10000].
func (t SlippageTolerance) Validate() error {
	if t < 0 || t > MaxSlippageTolerance {
		return fmt.Errorf("%w: got %d", ErrInvalidTolerance, int64(t))
	}
	return nil
}

// Venue tells whether the source pair comes from the canonical factory.
type Venue string

const (
	VenueCanonical Venue = "v2"
	VenueFork      Venue = "fork"
)

// TxStatus is what the chain reports for a submitted transaction.
type TxStatus uint8

const (
	TxPending TxStatus = iota
	TxConfirmed
	TxReverted
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxConfirmed:
		return "confirmed"
	case TxReverted:
		return "reverted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

const (
	// DefaultDivergenceThresholdPercent flags a source/destination price gap as large.
	DefaultDivergenceThresholdPercent = 2
	// DefaultPercentageToMigrate withdraws the whole share balance.
	DefaultPercentageToMigrate = 100
	// DefaultDeadlineWindow is how long, in seconds past the current block, a
	// migration stays executable.
	DefaultDeadlineWindow = 30 * 60
	// DefaultFee is the fee tier targeted when none is chosen.
	DefaultFee = uniswapv3.FeeMedium
)

// Policy holds the constants that shape a migration. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	// DivergenceThresholdPercent is inclusive.
	DivergenceThresholdPercent int64 `yaml:"divergenceThresholdPercent"`
	PercentageToMigrate        uint8 `yaml:"percentageToMigrate"`
	RefundAsETH                bool  `yaml:"refundAsETH"`
	// DeadlineWindow is in seconds.
	DeadlineWindow uint64 `yaml:"deadlineWindow"`
}

// DefaultPolicy returns the policy the migrator ships with.
func DefaultPolicy() Policy {
	return Policy{
		DivergenceThresholdPercent: DefaultDivergenceThresholdPercent,
		PercentageToMigrate:        DefaultPercentageToMigrate,
		RefundAsETH:                true,
		DeadlineWindow:             DefaultDeadlineWindow,
	}
}

func (p Policy) validate() error {
	if p.DivergenceThresholdPercent <= 0 {
		return fmt.Errorf("%w: divergence threshold must be positive", ErrInput)
	}
	if p.PercentageToMigrate == 0 || p.PercentageToMigrate > 100 {
		return fmt.Errorf("%w: percentage to migrate must be within (0, 100]", ErrInput)
	}
	if p.DeadlineWindow == 0 {
		return fmt.Errorf("%w: deadline window must be positive", ErrInput)
	}
	return nil
}
