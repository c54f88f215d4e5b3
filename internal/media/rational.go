package media

import (
	"fmt"
	"math/big"
)

// Rational is a time base expressed as Num/Den seconds per tick.
type Rational struct {
	Num int64
	Den int64
}

// Common time bases.
var (
	Microseconds = Rational{1, 1_000_000}
	MPEGClock    = Rational{1, 90_000}
)

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// Rescale converts v from time base from to time base to, rounding to the
// nearest tick with halves away from zero.
func Rescale(v int64, from, to Rational) int64 {
	num := new(big.Int).Mul(big.NewInt(v), big.NewInt(from.Num))
	num.Mul(num, big.NewInt(to.Den))
	den := new(big.Int).Mul(big.NewInt(from.Den), big.NewInt(to.Num))
	if den.Sign() == 0 {
		return 0
	}

	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	m.Abs(m).Lsh(m, 1)
	if m.CmpAbs(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}
