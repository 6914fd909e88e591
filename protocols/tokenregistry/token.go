package tokenregistry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token is the immutable identity of a fungible asset: where it lives and how
// many decimals its raw amounts carry.
type Token struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Amount converts a raw integer amount to its decimal value.
func (t Token) Amount(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.Decimals))
}

// Format renders a raw amount with the token's precision, trailing zeros trimmed.
func (t Token) Format(raw *big.Int) string {
	return t.Amount(raw).String()
}

// Label is the symbol when known, the address otherwise.
func (t Token) Label() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
