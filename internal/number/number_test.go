package number

import (
	"math"
	"math/big"
	"testing"
)

func TestEqualityAcrossRepresentations(t *testing.T) {
	fix := Fixnum(3)
	intg := Integer(big.NewInt(3))
	rat := Rational(big.NewRat(3, 1))
	flt := Float(3.0)

	pairs := []Number{fix, intg, rat, flt}
	for i := range pairs {
		for j := range pairs {
			if !Eq(pairs[i], pairs[j]) {
				t.Fatalf("expected %+v == %+v", pairs[i], pairs[j])
			}
		}
	}
}

func TestRndIIdempotent(t *testing.T) {
	cases := []Number{Fixnum(5), Float(5.9), Rational(big.NewRat(11, 2))}
	for _, n := range cases {
		once := RndI(n)
		twice := RndI(once)
		if !Eq(once, twice) {
			t.Fatalf("rnd_i not idempotent for %+v: %+v != %+v", n, once, twice)
		}
	}
}

func TestDivAlwaysFloat(t *testing.T) {
	r, err := Div(Fixnum(6), Fixnum(3))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != KindFloat {
		t.Fatalf("expected Float, got %v", r.Kind)
	}
	if r.Float != 2.0 {
		t.Fatalf("expected 2.0, got %v", r.Float)
	}
}

func TestIDivTruncates(t *testing.T) {
	r, err := IDiv(Fixnum(-7), Fixnum(2))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != KindFixnum || r.Fix != -3 {
		t.Fatalf("expected -3, got %+v", r)
	}
}

func TestFloorDivFloors(t *testing.T) {
	r, err := FloorDiv(Fixnum(-7), Fixnum(2))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != KindFixnum || r.Fix != -4 {
		t.Fatalf("expected -4, got %+v", r)
	}
}

func TestZeroDivisor(t *testing.T) {
	if _, err := Div(Fixnum(1), Fixnum(0)); err == nil {
		t.Fatal("expected ZeroDivisor")
	}
	if _, err := IDiv(Fixnum(1), Fixnum(0)); err == nil {
		t.Fatal("expected ZeroDivisor")
	}
}

func TestFloatOverflow(t *testing.T) {
	_, err := Mul(Float(1.0e308), Float(10.0))
	if err == nil {
		t.Fatal("expected FloatOverflow")
	}
}

func TestFloatUndefined(t *testing.T) {
	_, err := ClassifyFloat(math.NaN())
	if err == nil {
		t.Fatal("expected Undefined for NaN")
	}
}

func TestIntPowSquareAndMultiply(t *testing.T) {
	r, err := IntPow(Fixnum(2), Fixnum(10))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != KindFixnum || r.Fix != 1024 {
		t.Fatalf("expected 1024, got %+v", r)
	}
}

func TestRdivYieldsRational(t *testing.T) {
	r, err := RDiv(Fixnum(1), Fixnum(3))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != KindRational {
		t.Fatalf("expected Rational, got %v", r.Kind)
	}
}

func TestModSignFollowsDivisor(t *testing.T) {
	r, err := Mod(Fixnum(-7), Fixnum(3))
	if err != nil {
		t.Fatal(err)
	}
	if r.Fix != 2 {
		t.Fatalf("expected 2, got %+v", r)
	}
}

func TestRemSignFollowsDividend(t *testing.T) {
	r, err := Rem(Fixnum(-7), Fixnum(3))
	if err != nil {
		t.Fatal(err)
	}
	if r.Fix != -1 {
		t.Fatalf("expected -1, got %+v", r)
	}
}
