package uniswapv3

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqrtAt(t *testing.T, tick int64) *big.Int {
	t.Helper()
	sqrtP, err := tickmath.SqrtRatioAtTick(tick)
	require.NoError(t, err)
	return sqrtP
}

func TestPriceToClosestTick(t *testing.T) {
	testCases := []struct {
		name     string
		price    *big.Rat
		expected int64
	}{
		{"1:1", big.NewRat(1, 1), 0},
		// floor tick is 6931; 6932 is closer
		{"2:1 rounds to nearest, not down", big.NewRat(2, 1), 6932},
		{"3:2", big.NewRat(3, 2), 4055},
		{"1e12:1", new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)), 276324},
		{"1:1e12", new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)), -276324},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tick, err := PriceToClosestTick(tc.price)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, tick)
		})
	}
}

func TestPriceToClosestTick_ExactTickPrice(t *testing.T) {
	for _, tick := range []int64{-887000, -60, -1, 0, 1, 60, 887000} {
		price, err := TickPrice(tick)
		require.NoError(t, err)
		got, err := PriceToClosestTick(price)
		require.NoError(t, err)
		assert.Equal(t, tick, got)
	}
}

func TestPriceToClosestTick_IsNearest(t *testing.T) {
	prices := []*big.Rat{big.NewRat(2, 1), big.NewRat(3, 2), big.NewRat(1, 7), big.NewRat(123456789, 1000)}
	for _, price := range prices {
		tick, err := PriceToClosestTick(price)
		require.NoError(t, err)

		dist := func(tk int64) *big.Rat {
			p, err := TickPrice(tk)
			require.NoError(t, err)
			return new(big.Rat).Abs(new(big.Rat).Sub(p, price))
		}
		assert.True(t, dist(tick).Cmp(dist(tick-1)) <= 0, "price %s", price)
		assert.True(t, dist(tick).Cmp(dist(tick+1)) <= 0, "price %s", price)
	}
}

func TestPriceToClosestTick_Errors(t *testing.T) {
	_, err := PriceToClosestTick(big.NewRat(0, 1))
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	_, err = PriceToClosestTick(nil)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	tooLow := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 140))
	_, err = PriceToClosestTick(tooLow)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)
}

func TestNearestUsableTick(t *testing.T) {
	testCases := []struct {
		tick, spacing, expected int64
	}{
		{0, 60, 0},
		{29, 60, 0},
		{30, 60, 60},
		{-29, 60, 0},
		{-30, 60, 0},
		{-31, 60, -60},
		{6932, 60, 6960},
		{6932, 10, 6930},
		{6932, 1, 6932},
		{tickmath.MaxTick, 60, 887220},
		{tickmath.MinTick, 60, -887220},
	}

	for _, tc := range testCases {
		got, err := NearestUsableTick(tc.tick, tc.spacing)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, got, "tick %d spacing %d", tc.tick, tc.spacing)
	}

	_, err := NearestUsableTick(0, 0)
	assert.ErrorIs(t, err, ErrInvalidSpacing)
	_, err = NearestUsableTick(tickmath.MaxTick+1, 60)
	assert.ErrorIs(t, err, tickmath.ErrTickOutOfBounds)
}

func TestUsableTickBounds(t *testing.T) {
	assert.Equal(t, int64(-887220), MinUsableTick(60))
	assert.Equal(t, int64(887220), MaxUsableTick(60))
	assert.Equal(t, int64(-887200), MinUsableTick(200))
	assert.Equal(t, int64(887200), MaxUsableTick(200))
	assert.Equal(t, tickmath.MinTick, MinUsableTick(1))
}

func TestPositionFromAmounts(t *testing.T) {
	testCases := []struct {
		name         string
		tickCurrent  int64
		tickLower    int64
		tickUpper    int64
		amount0      int64
		amount1      int64
		expectedL    int64
		expectedAmt0 int64
		expectedAmt1 int64
	}{
		{
			name:        "full range at the 2:1 tick",
			tickCurrent: 6932, tickLower: -887220, tickUpper: 887220,
			amount0: 10_000, amount1: 20_000,
			expectedL: 14142, expectedAmt0: 9999, expectedAmt1: 19999,
		},
		{
			name:        "narrow range around price",
			tickCurrent: 0, tickLower: -60, tickUpper: 60,
			amount0: 10_000, amount1: 10_000,
			expectedL: 3338502, expectedAmt0: 9999, expectedAmt1: 9999,
		},
		{
			name:        "range above price takes only token0",
			tickCurrent: 0, tickLower: 60, tickUpper: 120,
			amount0: 10_000, amount1: 10_000,
			expectedL: 3348532, expectedAmt0: 9999, expectedAmt1: 0,
		},
		{
			name:        "range below price takes only token1",
			tickCurrent: 0, tickLower: -120, tickUpper: -60,
			amount0: 10_000, amount1: 10_000,
			expectedL: 3348532, expectedAmt0: 0, expectedAmt1: 9999,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := PositionFromAmounts(
				sqrtAt(t, tc.tickCurrent),
				tc.tickCurrent,
				tc.tickLower,
				tc.tickUpper,
				big.NewInt(tc.amount0),
				big.NewInt(tc.amount1),
			)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedL, pos.Liquidity.Int64())
			assert.Equal(t, tc.expectedAmt0, pos.Amount0.Int64())
			assert.Equal(t, tc.expectedAmt1, pos.Amount1.Int64())
			assert.LessOrEqual(t, pos.Amount0.Int64(), tc.amount0)
			assert.LessOrEqual(t, pos.Amount1.Int64(), tc.amount1)
		})
	}
}

func TestPositionFromAmounts_Errors(t *testing.T) {
	sqrtP := sqrtAt(t, 0)

	_, err := PositionFromAmounts(sqrtP, 0, 60, 60, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidTicks)

	_, err = PositionFromAmounts(sqrtP, 0, tickmath.MinTick-1, 60, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, tickmath.ErrTickOutOfBounds)

	_, err = PositionFromAmounts(sqrtP, 0, -60, 60, nil, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNilAmount)
}
