package fpmath

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// Rounding selects the direction applied when a division is inexact.
type Rounding int

const (
	RoundFloor Rounding = iota
	RoundCeil
)

// ErrOverflow signals that a checked arithmetic step left the int64 range.
// Balance updates must fail with this, never wrap.
var ErrOverflow = errors.New("fpmath: arithmetic overflow")

// ErrDivisionByZero signals a zero denominator in MulDiv.
var ErrDivisionByZero = errors.New("fpmath: division by zero")

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// MulDiv computes a*b/denom with a 128-bit intermediate so the product
// never overflows. The quotient is rounded per the requested direction.
// All inputs must be non-negative.
func MulDiv(a, b, denom int64, rounding Rounding) (int64, error) {
	if denom == 0 {
		return 0, ErrDivisionByZero
	}
	if a < 0 || b < 0 || denom < 0 {
		return 0, ErrOverflow
	}

	num := getBig()
	defer putBig(num)
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getBig()
	rem := getBig()
	defer putBig(quo)
	defer putBig(rem)
	quo.QuoRem(num, big.NewInt(denom), rem)

	if rounding == RoundCeil && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}

	if !quo.IsInt64() {
		return 0, ErrOverflow
	}
	return quo.Int64(), nil
}

// SafeAdd returns a+b or ErrOverflow if the sum leaves the int64 range.
func SafeAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SafeSub returns a-b or ErrOverflow on underflow.
func SafeSub(a, b int64) (int64, error) {
	if b > 0 && a < math.MinInt64+b {
		return 0, ErrOverflow
	}
	if b < 0 && a > math.MaxInt64+b {
		return 0, ErrOverflow
	}
	return a - b, nil
}
