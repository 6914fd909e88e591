package migrator

import (
	"fmt"
	"math/big"
)

// Refund is what the migrator sends back: valued minus deposited, per side.
// A negative side means the projection overspent and is never clamped.
func Refund(valued, position Amounts) (Amounts, error) {
	if !valued.valid() || !position.valid() {
		return Amounts{}, fmt.Errorf("%w: refund of incomplete amounts", ErrInvariant)
	}
	refund := Amounts{
		Amount0: new(big.Int).Sub(valued.Amount0, position.Amount0),
		Amount1: new(big.Int).Sub(valued.Amount1, position.Amount1),
	}
	if refund.Amount0.Sign() < 0 || refund.Amount1.Sign() < 0 {
		return Amounts{}, fmt.Errorf("%w: valued %s, deposited %s", ErrNegativeRefund, valued, position)
	}
	return refund, nil
}
