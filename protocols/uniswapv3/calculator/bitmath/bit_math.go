package bitmath

import (
	"errors"
	"math/big"
)

var (
	ErrInputIsZero = errors.New("input must be greater than zero")
	ErrInputIsNil  = errors.New("input cannot be nil")
)

// MostSignificantBit returns the index of the highest set bit of x, so that
// 2^msb <= x < 2^(msb+1). Only positive inputs below 2^256 are accepted.
func MostSignificantBit(x *big.Int) (uint8, error) {
	if x == nil {
		return 0, ErrInputIsNil
	}
	if x.Sign() <= 0 {
		return 0, ErrInputIsZero
	}
	if x.BitLen() > 256 {
		return 0, errors.New("input exceeds 256 bits")
	}
	return uint8(x.BitLen() - 1), nil
}
