package instr

import (
	"testing"

	"wam/internal/number"
)

func TestOpStringKnownAndUnknown(t *testing.T) {
	if OpGetConstant.String() != "get_constant" {
		t.Fatalf("got %q", OpGetConstant.String())
	}
	if OpExecute.String() != "execute" {
		t.Fatalf("got %q", OpExecute.String())
	}
	unknown := Op(250)
	if unknown.String() != "Op(250)" {
		t.Fatalf("expected fallback format, got %q", unknown.String())
	}
}

func TestConstantKeyDistinguishesKindsAndValues(t *testing.T) {
	a1 := ConstAtom(1)
	a2 := ConstAtom(2)
	n3 := ConstNumber(number.Fixnum(3))
	n3b := ConstNumber(number.Fixnum(3))
	n4 := ConstNumber(number.Fixnum(4))

	if a1.Key() == a2.Key() {
		t.Fatal("distinct atom ids must key distinctly")
	}
	if n3.Key() != n3b.Key() {
		t.Fatalf("equal fixnums must share a key: %q vs %q", n3.Key(), n3b.Key())
	}
	if n3.Key() == n4.Key() {
		t.Fatal("distinct fixnums must key distinctly")
	}
	if a1.Key() == n3.Key() {
		t.Fatal("an atom and a number must never collide")
	}
}

func TestCodeLen(t *testing.T) {
	c := Code{{Op: OpProceed}, {Op: OpFail}}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}
