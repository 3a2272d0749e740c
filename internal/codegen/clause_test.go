package codegen

import (
	"testing"

	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/instr"
	"wam/internal/register"
)

// TestCompileFactSimple builds the heap for "p(1, X)." and checks it
// compiles to get_constant A1,1; get_variable X1,A2; proceed — spec.md
// §8 scenario 1.
func TestCompileFactSimple(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()

	oneIdx := h.Push(cell.Cell{Tag: cell.Fixnum, Value: 1})
	varIdx := h.PushVar()

	varNum := func(idx int) int { return idx }

	code, err := CompileFact(h, atoms, []int{oneIdx, varIdx}, varNum)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 3 {
		t.Fatalf("expected 3 instructions, got %d: %+v", len(code), code)
	}
	if code[0].Op != instr.OpGetConstant {
		t.Fatalf("expected get_constant first, got %v", code[0].Op)
	}
	if code[1].Op != instr.OpGetVariable {
		t.Fatalf("expected get_variable second, got %v", code[1].Op)
	}
	if code[2].Op != instr.OpProceed {
		t.Fatalf("expected proceed last, got %v", code[2].Op)
	}
}

func TestCompileFactNestedStructure(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	fAtom := atoms.BuildWith("f")
	aAtom := atoms.BuildWith("a")

	fIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(fAtom), Arity: 2})
	h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(aAtom), Arity: 0})
	h.PushVar()
	fRef := h.Push(cell.Cell{Tag: cell.Str, Value: int64(fIdx)})

	varNum := func(idx int) int { return idx }
	code, err := CompileFact(h, atoms, []int{fRef}, varNum)
	if err != nil {
		t.Fatal(err)
	}
	if code[0].Op != instr.OpGetStructure {
		t.Fatalf("expected get_structure first, got %+v", code[0])
	}
	if code[0].Arity != 2 {
		t.Fatalf("expected arity 2, got %d", code[0].Arity)
	}
	// unify_constant(a), unify_variable(X), proceed
	if code[1].Op != instr.OpUnifyConstant {
		t.Fatalf("expected unify_constant second, got %v", code[1].Op)
	}
	if code[2].Op != instr.OpUnifyVariable {
		t.Fatalf("expected unify_variable third, got %v", code[2].Op)
	}
	if code[len(code)-1].Op != instr.OpProceed {
		t.Fatalf("expected proceed last, got %+v", code[len(code)-1])
	}
}

// TestCompileRuleBodyChainsCalls builds "q(X) :- r(X), s(X)." and checks
// the body compiles two calls, the last as execute, and that X — read
// again after the intervening call to r/1 — was promoted to a permanent
// (frame) register rather than left Temp, per spec.md §8 scenario 2: a
// Temp register does not survive a call, so X must live in the frame by
// the time r/1 runs.
func TestCompileRuleBodyChainsCalls(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()

	headVar := h.PushVar()
	bodyVar1 := h.PushVar() // r(X)'s arg occurrence
	bodyVar2 := h.PushVar() // s(X)'s arg occurrence

	// all three heap cells denote the same logical variable X; tie them
	// to one varNum so the allocator treats repeat occurrences correctly.
	varNum := func(idx int) int {
		if idx == bodyVar1 || idx == bodyVar2 {
			return headVar
		}
		return idx
	}

	body := []ClauseItem{
		{Kind: ItemChunk, Goals: []Goal{
			{Kind: GoalCall, PredName: "r", PredArity: 1, Args: []int{bodyVar1}},
		}},
		{Kind: ItemChunk, Goals: []Goal{
			{Kind: GoalCall, PredName: "s", PredArity: 1, Args: []int{bodyVar2}},
		}},
	}

	code, err := CompileRule(h, atoms, []int{headVar}, body, varNum)
	if err != nil {
		t.Fatal(err)
	}

	var calls, execs, allocates, deallocates int
	var getVar, putVal instr.Instruction
	for _, in := range code {
		switch in.Op {
		case instr.OpCall:
			calls++
		case instr.OpExecute:
			execs++
		case instr.OpAllocate:
			allocates++
		case instr.OpDeallocate:
			deallocates++
		case instr.OpGetVariable:
			getVar = in
		case instr.OpPutValue:
			putVal = in
		}
	}
	if calls != 1 || execs != 1 {
		t.Fatalf("expected exactly 1 call and 1 execute, got calls=%d execs=%d: %+v", calls, execs, code)
	}
	if allocates != 1 || deallocates != 1 {
		t.Fatalf("expected exactly 1 allocate and 1 deallocate (X crosses a call), got allocate=%d deallocate=%d: %+v", allocates, deallocates, code)
	}
	if getVar.Reg.Kind != register.Perm {
		t.Fatalf("expected X's head occurrence to bind a Perm register, got %+v: %+v", getVar, code)
	}
	if putVal.Reg != getVar.Reg {
		t.Fatalf("expected the body's last put_value (s(X)'s argument) to read back the same Perm register X was bound to, got put_value reg %+v vs get_variable reg %+v", putVal.Reg, getVar.Reg)
	}
}

func TestArgKeyFromHeadClassifiesVarConstStruct(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()

	v := h.PushVar()
	aAtom := atoms.BuildWith("a")
	c := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(aAtom), Arity: 0})
	fAtom := atoms.BuildWith("f")
	fIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(fAtom), Arity: 1})
	h.PushVar()
	fRef := h.Push(cell.Cell{Tag: cell.Str, Value: int64(fIdx)})

	if k := ArgKeyFromHead(h, v); !k.IsVar {
		t.Fatalf("expected IsVar, got %+v", k)
	}
	if k := ArgKeyFromHead(h, c); k.IsVar || k.IsStruct || k.IsList {
		t.Fatalf("expected plain constant, got %+v", k)
	}
	if k := ArgKeyFromHead(h, fRef); !k.IsStruct || k.Struct.Arity != 1 {
		t.Fatalf("expected struct arity 1, got %+v", k)
	}
}

func TestCompilePredicateConstantRunGetsSwitchOnTermPrelude(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	aAtom := atoms.BuildWith("a")
	bAtom := atoms.BuildWith("b")

	aIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(aAtom), Arity: 0})
	factA, err := CompileFact(h, atoms, []int{aIdx}, func(i int) int { return i })
	if err != nil {
		t.Fatal(err)
	}

	bIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(bAtom), Arity: 0})
	factB, err := CompileFact(h, atoms, []int{bIdx}, func(i int) int { return i })
	if err != nil {
		t.Fatal(err)
	}

	clauses := []CompiledClause{
		{Code: factA, ArgKey: ArgKeyFromHead(h, aIdx)},
		{Code: factB, ArgKey: ArgKeyFromHead(h, bIdx)},
	}

	skel, err := CompilePredicate("p", 1, clauses, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(skel.Clauses) != 2 {
		t.Fatalf("expected 2 clause entries, got %d", len(skel.Clauses))
	}
	if skel.Code[0].Op != instr.OpSwitchOnTerm {
		t.Fatalf("expected a switch_on_term prelude, got %v", skel.Code[0].Op)
	}
}
