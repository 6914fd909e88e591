package bitmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMostSignificantBit(t *testing.T) {
	testCases := []struct {
		name     string
		input    *big.Int
		expected uint8
		err      error
	}{
		{"one", big.NewInt(1), 0, nil},
		{"three", big.NewInt(3), 1, nil},
		{"256", big.NewInt(256), 8, nil},
		{"min sqrt ratio", big.NewInt(4295128739), 32, nil},
		{"2^96", new(big.Int).Lsh(big.NewInt(1), 96), 96, nil},
		{"2^256 - 1", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 255, nil},
		{"zero", big.NewInt(0), 0, ErrInputIsZero},
		{"negative", big.NewInt(-4), 0, ErrInputIsZero},
		{"nil", nil, 0, ErrInputIsNil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := MostSignificantBit(tc.input)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}

	_, err := MostSignificantBit(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)
}

func TestMostSignificantBit_Bracket(t *testing.T) {
	for i := uint(0); i < 256; i += 7 {
		x := new(big.Int).Lsh(big.NewInt(1), i)
		x.Add(x, big.NewInt(int64(i)))

		msb, err := MostSignificantBit(x)
		require.NoError(t, err)

		low := new(big.Int).Lsh(big.NewInt(1), uint(msb))
		high := new(big.Int).Lsh(big.NewInt(1), uint(msb)+1)
		assert.True(t, x.Cmp(low) >= 0 && x.Cmp(high) < 0, "x=%s msb=%d", x, msb)
	}
}
