package migrator

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = big.NewRat(100, 1)

// Divergence is the absolute percentage gap between the destination and the
// source spot price, measured relative to the source.
type Divergence struct {
	Percent *big.Rat `json:"-"`
	IsLarge bool     `json:"isLarge"`
}

// DetectDivergence computes |dest/source - 1| * 100 and flags it when it is at
// least thresholdPercent. It returns nil when either price is unavailable.
// The measure is not symmetric: swapping source and dest changes the base.
func DetectDivergence(source, dest *big.Rat, thresholdPercent int64) *Divergence {
	if source == nil || dest == nil || source.Sign() <= 0 || dest.Sign() <= 0 {
		return nil
	}

	d := new(big.Rat).Quo(dest, source)
	d.Sub(d, big.NewRat(1, 1))
	d.Mul(d, hundred)
	d.Abs(d)

	return &Divergence{
		Percent: d,
		IsLarge: d.Cmp(big.NewRat(thresholdPercent, 1)) >= 0,
	}
}

// Decimal returns the percentage rounded to places decimals for display.
func (d *Divergence) Decimal(places int32) decimal.Decimal {
	if d == nil || d.Percent == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(d.Percent, places)
}

// BasisPoints returns the percentage in basis points, truncated.
func (d *Divergence) BasisPoints() int64 {
	if d == nil || d.Percent == nil {
		return 0
	}
	bps := new(big.Rat).Mul(d.Percent, hundred)
	return new(big.Int).Quo(bps.Num(), bps.Denom()).Int64()
}
