package arith

import (
	"testing"

	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/number"
	"wam/internal/register"
)

// buildExpr builds the heap term for "2 + 3 * 4": +(2, *(3,4)). Compound
// subterms are addressed indirectly through a Str cell whose Value points
// at the functor; the returned root is itself such a Str reference, the
// same shape compile_arith_expr's caller would hand in for a nested or
// top-level structure.
func buildExpr(h *cell.Heap, atoms *atomtable.Table) int {
	plus := atoms.BuildWith("+")
	star := atoms.BuildWith("*")

	mulIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(star), Arity: 2})
	h.Push(cell.Cell{Tag: cell.Fixnum, Value: 3})
	h.Push(cell.Cell{Tag: cell.Fixnum, Value: 4})
	mulRef := h.Push(cell.Cell{Tag: cell.Str, Value: int64(mulIdx)})

	addIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(plus), Arity: 2})
	h.Push(cell.Cell{Tag: cell.Fixnum, Value: 2})
	h.Push(h.Get(mulRef))
	addRef := h.Push(cell.Cell{Tag: cell.Str, Value: int64(addIdx)})

	return addRef
}

func noBinding(int) (register.Register, bool) { return register.Register{}, false }

func TestCompileMulThenAddWithIntermReuse(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	root := buildExpr(h, atoms)

	ev := NewEvaluator(h, atoms, noBinding)
	res, err := ev.CompileArithExpr(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Instrs) != 2 {
		t.Fatalf("expected 2 instructions (mul, add), got %d: %+v", len(res.Instrs), res.Instrs)
	}
	if res.Instrs[0].Op != OpMul {
		t.Fatalf("expected first instruction to be mul, got %v", res.Instrs[0].Op)
	}
	if res.Instrs[1].Op != OpAdd {
		t.Fatalf("expected second instruction to be add, got %v", res.Instrs[1].Op)
	}
	// add must reuse mul's Interm destination slot rather than allocating a
	// fresh one (spec.md §4.3's binary reuse rule).
	if res.Instrs[1].Dest != res.Instrs[0].Dest {
		t.Fatalf("expected add to reuse mul's interm slot %d, got %d", res.Instrs[0].Dest, res.Instrs[1].Dest)
	}
	if res.Final.Kind != KindInterm || res.Final.Interm != res.Instrs[1].Dest {
		t.Fatalf("expected final operand to reference add's dest slot, got %+v", res.Final)
	}

	val, err := Eval(res.Instrs, res.Final, func(register.Register) (number.Number, bool) { return number.Number{}, false })
	if err != nil {
		t.Fatal(err)
	}
	if val.Kind != number.KindFixnum || val.Fix != 14 {
		t.Fatalf("expected 2+3*4=14, got %+v", val)
	}
}

func TestUninstantiatedVarErrors(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	varIdx := h.PushVar()

	ev := NewEvaluator(h, atoms, noBinding)
	_, err := ev.CompileArithExpr(varIdx)
	if err == nil {
		t.Fatal("expected UninstantiatedVar error")
	}
}

func TestNonEvaluableFunctor(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	fooAtom := atoms.BuildWith("foo")
	idx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(fooAtom), Arity: 0})

	ev := NewEvaluator(h, atoms, noBinding)
	_, err := ev.CompileArithExpr(idx)
	if err == nil {
		t.Fatal("expected NonEvaluableFunctor error")
	}
}

func TestUnaryPlusIsIdentity(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	plus := atoms.BuildWith("+")
	fIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(plus), Arity: 1})
	h.Push(cell.Cell{Tag: cell.Fixnum, Value: 7})
	fRef := h.Push(cell.Cell{Tag: cell.Str, Value: int64(fIdx)})

	ev := NewEvaluator(h, atoms, noBinding)
	res, err := ev.CompileArithExpr(fRef)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Instrs) != 0 {
		t.Fatalf("expected unary + to emit no instructions, got %+v", res.Instrs)
	}
	if res.Final.Kind != KindNumber || res.Final.Num.Fix != 7 {
		t.Fatalf("expected literal 7 passthrough, got %+v", res.Final)
	}
}

func TestVariableResolvesToRegister(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()

	// A variable the evaluator has not itself bound on the heap, but whose
	// register the allocator has already assigned.
	target := h.PushVar()
	bindTo := register.TempReg(3)
	binding := func(idx int) (register.Register, bool) {
		if idx == target {
			return bindTo, true
		}
		return register.Register{}, false
	}

	ev := NewEvaluator(h, atoms, binding)
	res, err := ev.CompileArithExpr(target)
	if err != nil {
		t.Fatal(err)
	}
	if res.Final.Kind != KindReg || res.Final.Reg != bindTo {
		t.Fatalf("expected Reg(Temp(3)), got %+v", res.Final)
	}
}
