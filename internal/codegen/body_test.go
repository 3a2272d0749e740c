package codegen

import (
	"testing"

	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/instr"
	"wam/internal/register"
)

func TestCompileIsEmitsArithStepsThenIs(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
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

	destIdx := h.PushVar()
	varNum := func(i int) int { return i }

	alloc := register.NewDebrayAllocator(register.NewVarData())
	bc := &bodyCompiler{h: h, atoms: atoms, alloc: alloc, varNum: varNum}

	g := Goal{Kind: GoalIs, IsDestIdx: destIdx, IsExprIdx: addRef}
	code, err := bc.compileIs(g, register.HeadContext())
	if err != nil {
		t.Fatal(err)
	}

	if code[len(code)-1].Op != instr.OpIs {
		t.Fatalf("expected final instruction to be is, got %+v", code[len(code)-1])
	}
	steps := 0
	for _, in := range code {
		if in.Op == instr.OpArithStep {
			steps++
		}
	}
	if steps != 2 {
		t.Fatalf("expected 2 arith steps (mul, add), got %d", steps)
	}
}

func TestBuildDisjunctionTwoArmsJumpsPastFirst(t *testing.T) {
	arm0 := instr.Code{{Op: instr.OpPutConstant}}
	arm1 := instr.Code{{Op: instr.OpPutConstant}}

	block := buildDisjunction([]instr.Code{arm0, arm1})
	// try_me_else, put_constant, jmp_by_call, trust_me, put_constant
	if len(block) != 5 {
		t.Fatalf("expected 5 instructions, got %d: %+v", len(block), block)
	}
	if block[0].Op != instr.OpTryMeElse {
		t.Fatalf("expected try_me_else first, got %v", block[0].Op)
	}
	if block[2].Op != instr.OpJmpByCall {
		t.Fatalf("expected jmp_by_call third, got %v", block[2].Op)
	}
	if block[3].Op != instr.OpTrustMe {
		t.Fatalf("expected trust_me fourth, got %v", block[3].Op)
	}
	// the jmp at index 2 must land exactly at the end of the block (index 5)
	if block[2].Choice.Offset != 5-2 {
		t.Fatalf("expected jmp offset %d, got %d", 5-2, block[2].Choice.Offset)
	}
	// try_me_else at index 0 must point at trust_me's position (index 3)
	if block[0].Choice.Offset != 3 {
		t.Fatalf("expected try_me_else offset 3, got %d", block[0].Choice.Offset)
	}
}

// TestCompileBodyDisjunctionEndToEnd compiles spec.md §8 scenario 4's
// shape, u(X) :- (X = a ; X = b), v(X)., through the full CompileBody
// loop rather than exercising buildDisjunction in isolation.
func TestCompileBodyDisjunctionEndToEnd(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	aAtom := atoms.BuildWith("a")
	bAtom := atoms.BuildWith("b")

	xIdx := h.PushVar()
	aIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(aAtom), Arity: 0})
	bIdx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(bAtom), Arity: 0})

	varNum := func(i int) int { return i }
	alloc := register.NewDebrayAllocator(register.NewVarData())

	items := []ClauseItem{
		{Kind: ItemFirstBranch, Arms: 2},
		{Kind: ItemChunk, Goals: []Goal{
			{Kind: GoalCall, PredName: "=", PredArity: 2, Args: []int{xIdx, aIdx}},
		}},
		{Kind: ItemNextBranch},
		{Kind: ItemChunk, Goals: []Goal{
			{Kind: GoalCall, PredName: "=", PredArity: 2, Args: []int{xIdx, bIdx}},
		}},
		{Kind: ItemBranchEnd, Depth: 1},
		{Kind: ItemChunk, Goals: []Goal{
			{Kind: GoalCall, PredName: "v", PredArity: 1, Args: []int{xIdx}},
		}},
	}

	code, err := CompileBody(h, atoms, alloc, varNum, items, true)
	if err != nil {
		t.Fatal(err)
	}

	var sawTry, sawTrust, sawJmp bool
	lastCall := instr.Instruction{}
	for _, in := range code {
		switch in.Op {
		case instr.OpTryMeElse:
			sawTry = true
		case instr.OpTrustMe:
			sawTrust = true
		case instr.OpJmpByCall:
			sawJmp = true
		case instr.OpCall, instr.OpExecute:
			lastCall = in
		}
	}
	if !sawTry || !sawTrust || !sawJmp {
		t.Fatalf("expected a try_me_else/jmp_by_call/trust_me disjunction, got %+v", code)
	}
	if lastCall.PredName != "v" || lastCall.PredArity != 1 {
		t.Fatalf("expected the final call to be v/1 after the disjunction joins, got %+v", lastCall)
	}
	if code[len(code)-1].Op != instr.OpExecute && code[len(code)-1].Op != instr.OpProceed {
		t.Fatalf("expected the body to end in a tail call or proceed, got %+v", code[len(code)-1])
	}
}

func TestCompileInlineTestStaticallyDecided(t *testing.T) {
	h := cell.New()
	atoms := atomtable.New()
	aAtom := atoms.BuildWith("a")
	idx := h.Push(cell.Cell{Tag: cell.Atom, AtomID: uint32(aAtom), Arity: 0})

	alloc := register.NewDebrayAllocator(register.NewVarData())
	bc := &bodyCompiler{h: h, atoms: atoms, alloc: alloc, varNum: func(i int) int { return i }}

	g := Goal{Kind: GoalInlineTest, TestOp: instr.OpAtom, TestArgIdx: idx}
	code, err := bc.compileInlineTest(g, register.HeadContext(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 1 || code[0].Op != instr.OpSucceed {
		t.Fatalf("expected a single statically-decided $succeed, got %+v", code)
	}
}
