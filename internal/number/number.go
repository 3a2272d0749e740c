// Package number implements the heterogeneous numeric tower described in
// spec.md §4.2: Fixnum/Integer/Rational/Float with promotion rules, IEEE
// classification, and a total order. Grounded on
// _examples/original_source/src/arithmetic.rs, which this package follows
// operation-for-operation (Div always promotes to Float, // truncates,
// div floors, rdiv yields Rational, and so on).
package number

import (
	"math"
	"math/big"

	"github.com/remyoudompheng/bigfft"
	"wam/internal/wamerrors"
)

// Kind tags which representation a Number currently holds.
type Kind uint8

const (
	KindFixnum Kind = iota
	KindInteger
	KindRational
	KindFloat
)

// bigMulThreshold is the bit-length above which we prefer bigfft's
// multiplication (which is asymptotically faster than big.Int's built-in
// schoolbook/Karatsuba multiply for very large operands) over (*big.Int).Mul.
const bigMulThreshold = 1 << 12

// Number is a tagged sum of the four Prolog arithmetic representations.
// Only the field matching Kind is meaningful.
type Number struct {
	Kind  Kind
	Fix   int64
	Int   *big.Int
	Rat   *big.Rat
	Float float64
}

func Fixnum(n int64) Number   { return Number{Kind: KindFixnum, Fix: n} }
func Integer(n *big.Int) Number { return Number{Kind: KindInteger, Int: n} }
func Rational(r *big.Rat) Number { return Number{Kind: KindRational, Rat: r} }
func Float(f float64) Number  { return Number{Kind: KindFloat, Float: f} }

var (
	E       = Float(math.E)
	Pi      = Float(math.Pi)
	Epsilon = Float(2.220446049250313e-16) // math.Nextafter(1,2)-1, i.e. f64::EPSILON
)

func (n Number) asBigInt() *big.Int {
	switch n.Kind {
	case KindFixnum:
		return big.NewInt(n.Fix)
	case KindInteger:
		return n.Int
	default:
		panic("asBigInt on non-integral Number")
	}
}

func (n Number) asBigRat() *big.Rat {
	switch n.Kind {
	case KindFixnum:
		return new(big.Rat).SetInt64(n.Fix)
	case KindInteger:
		return new(big.Rat).SetInt(n.Int)
	case KindRational:
		return n.Rat
	default:
		panic("asBigRat on Float")
	}
}

// ToF64 lossily converts any representation to a float64 (rnd_f, §9.1.4.1).
func ToF64(n Number) float64 {
	switch n.Kind {
	case KindFixnum:
		return float64(n.Fix)
	case KindInteger:
		f, _ := new(big.Float).SetInt(n.Int).Float64()
		return f
	case KindRational:
		f, _ := n.Rat.Float64()
		return f
	case KindFloat:
		return n.Float
	}
	panic("unreachable")
}

func mulBigInt(a, b *big.Int) *big.Int {
	if a.BitLen() > bigMulThreshold && b.BitLen() > bigMulThreshold {
		return bigfft.Mul(a, b)
	}
	return new(big.Int).Mul(a, b)
}

// rank orders the tower for promotion: higher rank wins a mixed operation.
func (k Kind) rank() int {
	switch k {
	case KindFixnum:
		return 0
	case KindInteger:
		return 1
	case KindRational:
		return 2
	case KindFloat:
		return 3
	}
	return -1
}

// promote returns a, b widened to a common representation per §4.2:
// Fixnum,Integer -> Integer; Integer,Rational -> Rational; anything with
// Float -> Float.
func promote(a, b Number) (Number, Number) {
	if a.Kind.rank() == b.Kind.rank() {
		return a, b
	}
	hi := a
	lo := b
	if b.Kind.rank() > a.Kind.rank() {
		hi, lo = b, a
	}
	var widened Number
	switch hi.Kind {
	case KindInteger:
		widened = Integer(lo.asBigInt())
	case KindRational:
		widened = Rational(lo.asBigRat())
	case KindFloat:
		widened = Float(ToF64(lo))
	}
	if a.Kind.rank() < b.Kind.rank() {
		return widened, hi
	}
	return hi, widened
}

func classifyFloat(f float64) (float64, error) {
	switch {
	case math.IsNaN(f):
		return 0, wamerrors.NewUndefined(wamerrors.Location{})
	case math.IsInf(f, 0):
		if f == math.MaxFloat64 || f == -math.MaxFloat64 {
			return f, nil
		}
		return 0, wamerrors.NewFloatOverflow(wamerrors.Location{})
	default:
		return f, nil
	}
}

// ClassifyFloat exposes classifyFloat for the arithmetic compiler's runtime
// instruction semantics and for tests.
func ClassifyFloat(f float64) (float64, error) { return classifyFloat(f) }

func addF(a, b float64) (Number, error) { f, err := classifyFloat(a + b); return Float(f), err }
func subF(a, b float64) (Number, error) { f, err := classifyFloat(a - b); return Float(f), err }
func mulF(a, b float64) (Number, error) { f, err := classifyFloat(a * b); return Float(f), err }

func divF(a, b float64) (Number, error) {
	if b == 0 {
		return Number{}, wamerrors.NewZeroDivisor(wamerrors.Location{})
	}
	f, err := classifyFloat(a / b)
	return Float(f), err
}

// Add implements +.
func Add(a, b Number) (Number, error) {
	a, b = promote(a, b)
	switch a.Kind {
	case KindFixnum:
		// fixnums are inline small integers; widen on overflow the same way
		// the teacher VM promotes int->float on overflow (vmregister ADD).
		sum := a.Fix + b.Fix
		if (sum > a.Fix) == (b.Fix > 0) {
			return Fixnum(sum), nil
		}
		return Integer(new(big.Int).Add(big.NewInt(a.Fix), big.NewInt(b.Fix))), nil
	case KindInteger:
		return Integer(new(big.Int).Add(a.Int, b.Int)), nil
	case KindRational:
		return Rational(new(big.Rat).Add(a.Rat, b.Rat)), nil
	case KindFloat:
		return addF(a.Float, b.Float)
	}
	panic("unreachable")
}

// Sub implements -.
func Sub(a, b Number) (Number, error) {
	a, b = promote(a, b)
	switch a.Kind {
	case KindFixnum:
		return Fixnum(a.Fix - b.Fix), nil
	case KindInteger:
		return Integer(new(big.Int).Sub(a.Int, b.Int)), nil
	case KindRational:
		return Rational(new(big.Rat).Sub(a.Rat, b.Rat)), nil
	case KindFloat:
		return subF(a.Float, b.Float)
	}
	panic("unreachable")
}

// Mul implements *.
func Mul(a, b Number) (Number, error) {
	a, b = promote(a, b)
	switch a.Kind {
	case KindFixnum:
		hi, lo := mulOverflows(a.Fix, b.Fix)
		if !hi {
			return Fixnum(lo), nil
		}
		return Integer(mulBigInt(big.NewInt(a.Fix), big.NewInt(b.Fix))), nil
	case KindInteger:
		return Integer(mulBigInt(a.Int, b.Int)), nil
	case KindRational:
		return Rational(new(big.Rat).Mul(a.Rat, b.Rat)), nil
	case KindFloat:
		return mulF(a.Float, b.Float)
	}
	panic("unreachable")
}

func mulOverflows(a, b int64) (overflow bool, res int64) {
	if a == 0 || b == 0 {
		return false, 0
	}
	res = a * b
	if res/b != a {
		return true, 0
	}
	return false, res
}

// Div implements / — always yields Float (§4.2).
func Div(a, b Number) (Number, error) {
	return divF(ToF64(a), ToF64(b))
}

// IDiv implements // — truncating integer division, yields Integer/Fixnum.
func IDiv(a, b Number) (Number, error) {
	if a.Kind == KindFloat || b.Kind == KindFloat {
		// the original truncates through the float domain when either
		// operand is a float, matching IEEE truncation semantics.
		f, err := classifyFloat(ToF64(a) / ToF64(b))
		if err != nil {
			return Number{}, err
		}
		return Fixnum(int64(f)), nil
	}
	ai, bi := a.asBigInt(), b.asBigInt()
	if bi.Sign() == 0 {
		return Number{}, wamerrors.NewZeroDivisor(wamerrors.Location{})
	}
	q := new(big.Int).Quo(ai, bi) // Quo truncates toward zero
	return normalizeInt(q), nil
}

// FloorDiv implements div/2 — floor division.
func FloorDiv(a, b Number) (Number, error) {
	ai, bi := a.asBigInt(), b.asBigInt()
	if bi.Sign() == 0 {
		return Number{}, wamerrors.NewZeroDivisor(wamerrors.Location{})
	}
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(ai, bi, m) // Euclidean; adjust to floor semantics below
	if bi.Sign() < 0 && m.Sign() != 0 {
		q.Sub(q, big.NewInt(1))
	}
	return normalizeInt(q), nil
}

// RDiv implements rdiv/2 — always yields Rational.
func RDiv(a, b Number) (Number, error) {
	br := b.asBigRat()
	if br.Sign() == 0 {
		return Number{}, wamerrors.NewZeroDivisor(wamerrors.Location{})
	}
	return Rational(new(big.Rat).Quo(a.asBigRat(), br)), nil
}

// Mod implements mod/2 — result has the sign of the divisor.
func Mod(a, b Number) (Number, error) {
	ai, bi := a.asBigInt(), b.asBigInt()
	if bi.Sign() == 0 {
		return Number{}, wamerrors.NewZeroDivisor(wamerrors.Location{})
	}
	m := new(big.Int).Mod(ai, bi) // Go's Mod is Euclidean (always >= 0)
	if bi.Sign() < 0 && m.Sign() != 0 {
		m.Add(m, bi)
	}
	return normalizeInt(m), nil
}

// Rem implements rem/2 — result has the sign of the dividend.
func Rem(a, b Number) (Number, error) {
	ai, bi := a.asBigInt(), b.asBigInt()
	if bi.Sign() == 0 {
		return Number{}, wamerrors.NewZeroDivisor(wamerrors.Location{})
	}
	return normalizeInt(new(big.Int).Rem(ai, bi)), nil
}

// Gcd implements gcd/2.
func Gcd(a, b Number) (Number, error) {
	ai, bi := a.asBigInt(), b.asBigInt()
	g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(ai), new(big.Int).Abs(bi))
	return normalizeInt(g), nil
}

// Shl / Shr / And / Or / Xor implement <<, >>, /\, \/, xor.
func Shl(a, b Number) (Number, error) {
	return normalizeInt(new(big.Int).Lsh(a.asBigInt(), uint(b.Fix))), nil
}
func Shr(a, b Number) (Number, error) {
	return normalizeInt(new(big.Int).Rsh(a.asBigInt(), uint(b.Fix))), nil
}
func And(a, b Number) (Number, error) {
	return normalizeInt(new(big.Int).And(a.asBigInt(), b.asBigInt())), nil
}
func Or(a, b Number) (Number, error) {
	return normalizeInt(new(big.Int).Or(a.asBigInt(), b.asBigInt())), nil
}
func Xor(a, b Number) (Number, error) {
	return normalizeInt(new(big.Int).Xor(a.asBigInt(), b.asBigInt())), nil
}

// Max / Min implement max/2, min/2 using the total order.
func Max(a, b Number) (Number, error) {
	if Cmp(a, b) >= 0 {
		return a, nil
	}
	return b, nil
}
func Min(a, b Number) (Number, error) {
	if Cmp(a, b) <= 0 {
		return a, nil
	}
	return b, nil
}

// Pow implements ** — always yields Float.
func Pow(a, b Number) (Number, error) {
	f, err := classifyFloat(math.Pow(ToF64(a), ToF64(b)))
	return Float(f), err
}

// IntPow implements ^ — integer base/exponent yields Integer via
// square-and-multiply (binary_pow in arithmetic.rs); otherwise behaves like **.
func IntPow(a, b Number) (Number, error) {
	if (a.Kind == KindFixnum || a.Kind == KindInteger) && (b.Kind == KindFixnum || b.Kind == KindInteger) {
		exp := b.asBigInt()
		if exp.Sign() < 0 {
			return Pow(a, b)
		}
		return normalizeInt(binaryPow(a.asBigInt(), exp)), nil
	}
	return Pow(a, b)
}

// binaryPow computes n^|power| by right-to-left square-and-multiply,
// ignoring the sign of power — ported from arithmetic.rs's binary_pow.
// The caller is responsible for handling a negative exponent.
func binaryPow(n *big.Int, power *big.Int) *big.Int {
	p := new(big.Int).Abs(power)
	if p.Sign() == 0 {
		return big.NewInt(1)
	}
	base := new(big.Int).Set(n)
	oddand := big.NewInt(1)
	one := big.NewInt(1)
	for p.Cmp(one) > 0 {
		if p.Bit(0) == 1 {
			oddand = mulBigInt(oddand, base)
		}
		base = mulBigInt(base, base)
		p.Rsh(p, 1)
	}
	return mulBigInt(base, oddand)
}

// Neg implements unary -.
func Neg(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum:
		return Fixnum(-a.Fix), nil
	case KindInteger:
		return Integer(new(big.Int).Neg(a.Int)), nil
	case KindRational:
		return Rational(new(big.Rat).Neg(a.Rat)), nil
	case KindFloat:
		f, err := classifyFloat(-a.Float)
		return Float(f), err
	}
	panic("unreachable")
}

// Abs implements abs/1.
func Abs(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum:
		if a.Fix < 0 {
			return Fixnum(-a.Fix), nil
		}
		return a, nil
	case KindInteger:
		return Integer(new(big.Int).Abs(a.Int)), nil
	case KindRational:
		return Rational(new(big.Rat).Abs(a.Rat)), nil
	case KindFloat:
		return Float(math.Abs(a.Float)), nil
	}
	panic("unreachable")
}

// Sign implements sign/1.
func Sign(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum:
		return Fixnum(int64(sign(a.Fix))), nil
	case KindInteger:
		return Fixnum(int64(a.Int.Sign())), nil
	case KindRational:
		return Fixnum(int64(a.Rat.Sign())), nil
	case KindFloat:
		switch {
		case a.Float > 0:
			return Float(1), nil
		case a.Float < 0:
			return Float(-1), nil
		default:
			return Float(0), nil
		}
	}
	panic("unreachable")
}

func sign(n int64) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

// unaryFloat applies an f64->f64 transcendental function with classification.
func unaryFloat(a Number, fn func(float64) float64) (Number, error) {
	f, err := classifyFloat(fn(ToF64(a)))
	return Float(f), err
}

func Cos(a Number) (Number, error)   { return unaryFloat(a, math.Cos) }
func Sin(a Number) (Number, error)   { return unaryFloat(a, math.Sin) }
func Tan(a Number) (Number, error)   { return unaryFloat(a, math.Tan) }
func ACos(a Number) (Number, error)  { return unaryFloat(a, math.Acos) }
func ASin(a Number) (Number, error)  { return unaryFloat(a, math.Asin) }
func ATan(a Number) (Number, error)  { return unaryFloat(a, math.Atan) }
func Exp(a Number) (Number, error)   { return unaryFloat(a, math.Exp) }
func Sqrt(a Number) (Number, error)  { return unaryFloat(a, math.Sqrt) }

func Log(a Number) (Number, error) {
	f := ToF64(a)
	if f <= 0 {
		return Number{}, wamerrors.NewUndefined(wamerrors.Location{})
	}
	return unaryFloat(a, math.Log)
}

func ATan2(a, b Number) (Number, error) {
	f, err := classifyFloat(math.Atan2(ToF64(a), ToF64(b)))
	return Float(f), err
}

// FloatConv implements float/1: convert any Number to Float (lossy).
func FloatConv(a Number) (Number, error) {
	f, err := classifyFloat(ToF64(a))
	return Float(f), err
}

// Truncate implements truncate/1.
func Truncate(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum, KindInteger:
		return a, nil
	case KindRational:
		q := new(big.Int).Quo(a.Rat.Num(), a.Rat.Denom())
		return normalizeInt(q), nil
	case KindFloat:
		return Fixnum(int64(math.Trunc(a.Float))), nil
	}
	panic("unreachable")
}

// Round implements round/1 (round-half-away-from-zero, matching big.Float).
func Round(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum, KindInteger:
		return a, nil
	case KindRational:
		f, _ := a.Rat.Float64()
		return Fixnum(int64(math.Round(f))), nil
	case KindFloat:
		return Fixnum(int64(math.Round(a.Float))), nil
	}
	panic("unreachable")
}

func Ceiling(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum, KindInteger:
		return a, nil
	case KindRational:
		f, _ := a.Rat.Float64()
		return Fixnum(int64(math.Ceil(f))), nil
	case KindFloat:
		return Fixnum(int64(math.Ceil(a.Float))), nil
	}
	panic("unreachable")
}

func Floor(a Number) (Number, error) {
	switch a.Kind {
	case KindFixnum, KindInteger:
		return a, nil
	case KindRational:
		f, _ := a.Rat.Float64()
		return Fixnum(int64(math.Floor(f))), nil
	case KindFloat:
		return Fixnum(int64(math.Floor(a.Float))), nil
	}
	panic("unreachable")
}

// BitwiseComplement implements \/1.
func BitwiseComplement(a Number) (Number, error) {
	return normalizeInt(new(big.Int).Not(a.asBigInt())), nil
}

// RndI implements rnd_i (§9.1.3.1): Integer/Fixnum pass through unchanged,
// Float floors to a Fixnum, Rational floors to an Integer.
func RndI(n Number) Number {
	switch n.Kind {
	case KindFixnum, KindInteger:
		return n
	case KindFloat:
		return Fixnum(int64(math.Floor(n.Float)))
	case KindRational:
		num, den := n.Rat.Num(), n.Rat.Denom()
		q := new(big.Int)
		m := new(big.Int)
		q.DivMod(num, den, m)
		return normalizeInt(q)
	}
	panic("unreachable")
}

// RndF implements rnd_f (§9.1.4.1).
func RndF(n Number) float64 { return ToF64(n) }

// normalizeInt demotes a big.Int back to Fixnum when it fits in int64, the
// way the original keeps small integers inline rather than arena-allocated.
func normalizeInt(z *big.Int) Number {
	if z.IsInt64() {
		return Fixnum(z.Int64())
	}
	return Integer(z)
}

// Eq reports Number equality across representations:
// Fixnum(3) == Integer(3) == Rational(3/1) == Float(3.0).
func Eq(a, b Number) bool { return Cmp(a, b) == 0 }

// Cmp implements the tower's total order (NaN is excluded by classifyFloat
// at construction time, so it never reaches here).
func Cmp(a, b Number) int {
	if a.Kind == KindFloat || b.Kind == KindFloat {
		fa, fb := ToF64(a), ToF64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	ra, rb := a.asBigRat(), b.asBigRat()
	return ra.Cmp(rb)
}
