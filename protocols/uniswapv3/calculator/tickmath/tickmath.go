package tickmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator/bitmath"
	"github.com/holiman/uint256"
)

const (
	// MinTick is the minimum tick that may be passed to GetSqrtRatioAtTick.
	MinTick = int64(-887272)
	// MaxTick is the maximum tick that may be passed to GetSqrtRatioAtTick.
	MaxTick = int64(887272)
)

var (
	// MinSqrtRatio is the value returned by GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio, _ = new(big.Int).SetString("4295128739", 10)
	// MaxSqrtRatio is the value returned by GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	one        = uint256.NewInt(1)
	maxUint256 = new(uint256.Int).SetAllOne()
	lowMask    = uint256.NewInt(0xffffffff)
	q128       = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	// magicRatios[i] is 2^128 / sqrt(1.0001^(2^i)) in Q128.128, for i in 0..19.
	magicRatios = [20]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
)

// scratch holds reusable fixed-width integers so the hot path does not allocate.
type scratch struct {
	ratio     *uint256.Int
	rem       *uint256.Int
	candidate *big.Int
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{
			ratio:     new(uint256.Int),
			rem:       new(uint256.Int),
			candidate: new(big.Int),
		}
	},
}

// GetSqrtRatioAtTick writes sqrt(1.0001^tick) * 2^96 into dest, rounded up
// exactly as the pool contract does.
func GetSqrtRatioAtTick(dest *big.Int, tick int64) error {
	if tick < MinTick || tick > MaxTick {
		return ErrTickOutOfBounds
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	s.sqrtRatioAtTick(tick)
	s.ratio.IntoBig(&dest)
	return nil
}

// SqrtRatioAtTick is the allocating form of GetSqrtRatioAtTick.
func SqrtRatioAtTick(tick int64) (*big.Int, error) {
	dest := new(big.Int)
	if err := GetSqrtRatioAtTick(dest, tick); err != nil {
		return nil, err
	}
	return dest, nil
}

func (s *scratch) sqrtRatioAtTick(tick int64) {
	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	if absTick&1 != 0 {
		s.ratio.Set(magicRatios[0])
	} else {
		s.ratio.Set(q128)
	}
	for i := 1; i < len(magicRatios); i++ {
		if absTick&(1<<i) != 0 {
			s.ratio.Mul(s.ratio, magicRatios[i]).Rsh(s.ratio, 128)
		}
	}

	// the table is for negative ticks; positive ticks take the reciprocal
	if tick > 0 {
		s.ratio.Div(maxUint256, s.ratio)
	}

	// Q128.128 -> Q64.96, rounding up
	s.rem.And(s.ratio, lowMask)
	s.ratio.Rsh(s.ratio, 32)
	if !s.rem.IsZero() {
		s.ratio.Add(s.ratio, one)
	}
}

// GetTickAtSqrtRatio returns the greatest tick such that GetSqrtRatioAtTick(tick) <= sqrtPriceX96.
func GetTickAtSqrtRatio(sqrtPriceX96 *big.Int) (int64, error) {
	if sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	low, high, err := tickBracket(sqrtPriceX96)
	if err != nil {
		return 0, err
	}
	var tick int64
	for low <= high {
		mid := low + (high-low)/2
		s.sqrtRatioAtTick(mid)
		s.ratio.IntoBig(&s.candidate)

		if s.candidate.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	return tick, nil
}

// ticksPerBit bounds how many ticks one doubling of the sqrt price spans; the
// exact figure is 1/log2(sqrt(1.0001)) ~ 13863.3.
const ticksPerBit = 13864

// tickBracket narrows the search to the ticks whose sqrt price shares the
// input's most significant bit, widened by one bit on each side.
func tickBracket(sqrtPriceX96 *big.Int) (int64, int64, error) {
	msb, err := bitmath.MostSignificantBit(sqrtPriceX96)
	if err != nil {
		return 0, 0, err
	}
	log2 := int64(msb) - 96
	low := max((log2-1)*ticksPerBit, MinTick)
	high := min((log2+2)*ticksPerBit, MaxTick)
	return low, high, nil
}
