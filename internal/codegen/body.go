// This file implements clause body compilation: the goal dispatch of
// spec.md §4.7 (cut, is/2, inlined type tests, calls) and the disjunction
// join bookkeeping of §4.5. Grounded on spec.md §4.7/§4.5 and the
// ClauseItem/QueryTerm vocabulary it names; the defining source
// (machine/chunked_terms.rs) was not part of the retrieved excerpt.
package codegen

import (
	"sort"

	"wam/internal/arith"
	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/instr"
	"wam/internal/register"
)

// GoalKind classifies one body goal for dispatch in compileGoal.
type GoalKind uint8

const (
	GoalCut GoalKind = iota
	GoalIs
	GoalInlineTest
	GoalCall
	GoalFail
	GoalSucceed
)

// CutKind distinguishes the four cut-adjacent instructions of §4.7.
type CutKind uint8

const (
	CutGetLevel CutKind = iota
	CutGetCutPoint
	CutLocal
	CutGlobal
)

// Goal is one body item a clause compiles, already resolved down to heap
// indices (no parsing happens here — spec.md's Non-goals exclude it).
type Goal struct {
	Kind GoalKind

	CutVarNum int
	CutKind   CutKind

	IsDestIdx int // heap index of X in "X is Expr"
	IsExprIdx int // heap index of Expr

	TestOp     instr.Op // atom/compound/var/nonvar/integer/float/... §4.7's inlined type tests
	TestArgIdx int

	PredName string
	PredArity int
	Args      []int // heap indices of call arguments
}

// ItemKind classifies one entry of a clause body's ClauseItem sequence.
type ItemKind uint8

const (
	ItemChunk ItemKind = iota
	ItemFirstBranch
	ItemNextBranch
	ItemBranchEnd
)

// ClauseItem is one element of the body's Chunk/FirstBranch/NextBranch/
// BranchEnd sequence (§4.7).
type ClauseItem struct {
	Kind ItemKind

	Goals []Goal // ItemChunk
	Arms  int    // ItemFirstBranch: number of arms in the disjunction
	Depth int    // ItemBranchEnd: nesting depth being closed
}

// bodyCompiler threads the shared state body compilation needs across
// goals and branch frames.
type bodyCompiler struct {
	h      *cell.Heap
	atoms  *atomtable.Table
	alloc  *register.DebrayAllocator
	varNum VarNumOf
	stack  []*armBuffer
	out    instr.Code
}

type armBuffer struct {
	arms []instr.Code
	cur  int
}

func (bc *bodyCompiler) emit(c instr.Code) {
	if len(bc.stack) == 0 {
		bc.out = append(bc.out, c...)
		return
	}
	top := bc.stack[len(bc.stack)-1]
	top.arms[top.cur] = append(top.arms[top.cur], c...)
}

// CompileBody walks a clause's ClauseItem sequence and returns the
// compiled instruction stream (not yet prefixed with allocate n — the
// caller does that once alloc.PermCount() is known after the whole body,
// per §4.6's rule compilation).
func CompileBody(h *cell.Heap, atoms *atomtable.Table, alloc *register.DebrayAllocator, varNum VarNumOf, items []ClauseItem, tailEnabled bool) (instr.Code, error) {
	bc := &bodyCompiler{h: h, atoms: atoms, alloc: alloc, varNum: varNum}

	lastChunk := -1
	for i, it := range items {
		if it.Kind == ItemChunk {
			lastChunk = i
		}
	}

	for i, it := range items {
		switch it.Kind {
		case ItemChunk:
			isLastChunk := i == lastChunk
			for gi, g := range it.Goals {
				isLastGoal := isLastChunk && gi == len(it.Goals)-1
				inTail := tailEnabled && isLastGoal && len(bc.stack) == 0
				ctx := register.MidContext(alloc.ChunkNum())
				if inTail {
					ctx = register.LastContext(alloc.ChunkNum())
				}
				gc, err := bc.compileGoal(g, ctx, inTail)
				if err != nil {
					return nil, err
				}
				bc.emit(gc)
			}
			alloc.NewChunk()

		case ItemFirstBranch:
			alloc.PushBranchFrame(it.Arms)
			bc.stack = append(bc.stack, &armBuffer{arms: make([]instr.Code, it.Arms)})

		case ItemNextBranch:
			top := bc.stack[len(bc.stack)-1]
			top.cur++

		case ItemBranchEnd:
			top := bc.stack[len(bc.stack)-1]
			bc.stack = bc.stack[:len(bc.stack)-1]

			missing, _ := alloc.PushMissingVars(it.Depth)
			for _, m := range missing {
				top.arms[m.Arm] = append(top.arms[m.Arm], instr.Instruction{Op: instr.OpPutVariable, Reg: m.Reg})
			}
			alloc.PopBranchFrame()

			bc.emit(buildDisjunction(top.arms))
		}
	}
	return bc.out, nil
}

// classifyVars runs the chunk pre-pass spec.md §4.4/§8 scenario 2 requires:
// every clause variable's chunk-occurrence set must be known before any
// instruction is compiled, so a variable read after an intervening call
// is classified Perm (not left Temp, which a call would clobber) from its
// very first occurrence onward. Mirrors the chunk numbering CompileBody
// itself advances (one step per ItemChunk, head counted as chunk 0) so the
// two passes agree on which chunk each occurrence falls in.
func classifyVars(h *cell.Heap, alloc *register.DebrayAllocator, varNum VarNumOf, headArgs []int, items []ClauseItem) {
	occ := map[int]map[int]bool{}

	for _, a := range headArgs {
		collectVarNums(h, varNum, a, 0, occ)
	}

	chunk := 0
	for _, it := range items {
		if it.Kind != ItemChunk {
			continue
		}
		for _, g := range it.Goals {
			switch g.Kind {
			case GoalIs:
				collectVarNums(h, varNum, g.IsDestIdx, chunk, occ)
				collectVarNums(h, varNum, g.IsExprIdx, chunk, occ)
			case GoalInlineTest:
				collectVarNums(h, varNum, g.TestArgIdx, chunk, occ)
			case GoalCall:
				for _, a := range g.Args {
					collectVarNums(h, varNum, a, chunk, occ)
				}
				// GoalCut's CutVarNum is deliberately not collected here:
				// MarkCutVar classifies the cut handle independently, always
				// Perm and rooted at chunk 0, and folding it into this pass
				// would let a stray later chunk override that rule.
			}
		}
		chunk++
	}

	for vn, set := range occ {
		chunks := make([]int, 0, len(set))
		for c := range set {
			chunks = append(chunks, c)
		}
		sort.Ints(chunks)
		alloc.VarData.Classify(vn, chunks)
	}
}

// collectVarNums walks one term rooted at idx, recording the chunk it
// occurs in for every variable found, including ones nested inside
// structures and list cells.
func collectVarNums(h *cell.Heap, varNum VarNumOf, idx, chunk int, occ map[int]map[int]bool) {
	idx = h.Deref(idx)
	c := h.Get(idx)

	switch c.Tag {
	case cell.Var, cell.AttrVar:
		vn := varNum(idx)
		set, ok := occ[vn]
		if !ok {
			set = map[int]bool{}
			occ[vn] = set
		}
		set[chunk] = true

	case cell.Atom:
		for i := 1; i <= c.Arity; i++ {
			collectVarNums(h, varNum, idx+i, chunk, occ)
		}

	case cell.Str:
		fIdx := int(c.Value)
		fc := h.Get(fIdx)
		for i := 1; i <= fc.Arity; i++ {
			collectVarNums(h, varNum, fIdx+i, chunk, occ)
		}

	case cell.Lis:
		headIdx := int(c.Value)
		collectVarNums(h, varNum, headIdx, chunk, occ)
		collectVarNums(h, varNum, headIdx+1, chunk, occ)
	}
}

// buildDisjunction interleaves try_me_else/retry_me_else/trust_me with
// each arm's code and threads jmp_by_call offsets so every arm but the
// last skips past the rest after it succeeds — §4.5 steps 3-4.
func buildDisjunction(arms []instr.Code) instr.Code {
	n := len(arms)
	if n == 0 {
		return nil
	}
	segLens := make([]int, n)
	for i, a := range arms {
		l := 1 + len(a)
		if i < n-1 {
			l++
		}
		segLens[i] = l
	}
	starts := make([]int, n)
	pos := 0
	for i := range arms {
		starts[i] = pos
		pos += segLens[i]
	}
	total := pos

	var block instr.Code
	for i, a := range arms {
		var op instr.Op
		switch {
		case n == 1:
			op = instr.OpTrustMe
		case i == 0:
			op = instr.OpTryMeElse
		case i == n-1:
			op = instr.OpTrustMe
		default:
			op = instr.OpRetryMeElse
		}
		choiceInstr := instr.Instruction{Op: op}
		if op != instr.OpTrustMe {
			choiceInstr.Choice = instr.ChoiceTarget{Offset: starts[i+1] - starts[i]}
		}
		block = append(block, choiceInstr)
		block = append(block, a...)
		if i < n-1 {
			jmpPos := starts[i] + segLens[i] - 1
			block = append(block, instr.Instruction{Op: instr.OpJmpByCall, Choice: instr.ChoiceTarget{Offset: total - jmpPos}})
		}
	}
	return block
}

func (bc *bodyCompiler) compileGoal(g Goal, ctx register.GenContext, inTail bool) (instr.Code, error) {
	switch g.Kind {
	case GoalCut:
		return bc.compileCut(g, ctx, inTail)
	case GoalIs:
		return bc.compileIs(g, ctx)
	case GoalInlineTest:
		return bc.compileInlineTest(g, ctx, inTail)
	case GoalFail:
		return instr.Code{{Op: instr.OpFail}}, nil
	case GoalSucceed:
		code := instr.Code{{Op: instr.OpSucceed}}
		if inTail {
			code = append(code, bc.tailEpilogue()...)
		}
		return code, nil
	default:
		return bc.compileCall(g, ctx, inTail)
	}
}

func (bc *bodyCompiler) tailEpilogue() instr.Code {
	if bc.alloc.PermCount() > 0 {
		return instr.Code{{Op: instr.OpDeallocate}, {Op: instr.OpProceed}}
	}
	return instr.Code{{Op: instr.OpProceed}}
}

func (bc *bodyCompiler) compileCut(g Goal, ctx register.GenContext, inTail bool) (instr.Code, error) {
	var code instr.Code
	switch g.CutKind {
	case CutGetLevel, CutGetCutPoint:
		reg, err := bc.alloc.MarkCutVar(g.CutVarNum)
		if err != nil {
			return nil, err
		}
		op := instr.OpGetLevel
		if g.CutKind == CutGetCutPoint {
			op = instr.OpGetCutPoint
		}
		code = append(code, instr.Instruction{Op: op, Reg: reg})
	case CutLocal, CutGlobal:
		reg := bc.alloc.GetVarBinding(g.CutVarNum)
		op := instr.OpLocalCut
		if g.CutKind == CutGlobal {
			op = instr.OpGlobalCut
		}
		code = append(code, instr.Instruction{Op: op, Reg: reg})
	}
	if inTail {
		code = append(code, bc.tailEpilogue()...)
	}
	return code, nil
}

func (bc *bodyCompiler) compileIs(g Goal, ctx register.GenContext) (instr.Code, error) {
	binding := func(heapIdx int) (register.Register, bool) {
		varNum := bc.varNum(heapIdx)
		reg := bc.alloc.GetVarBinding(varNum)
		return reg, reg.Valid()
	}
	ev := arith.NewEvaluator(bc.h, bc.atoms, binding)
	res, err := ev.CompileArithExpr(g.IsExprIdx)
	if err != nil {
		return nil, err
	}

	destVarNum := bc.varNum(g.IsDestIdx)
	destReg, err := bc.alloc.MarkVar(destVarNum, ctx)
	if err != nil {
		return nil, err
	}

	var code instr.Code
	for _, step := range res.Instrs {
		code = append(code, instr.Instruction{
			Op: instr.OpArithStep, ArithOp: step.Op, ArithArgs: step.Operands, ArithDest: step.Dest,
		})
	}
	code = append(code, instr.Instruction{Op: instr.OpIs, Reg: destReg, ArithFinal: res.Final})
	return code, nil
}

func (bc *bodyCompiler) compileInlineTest(g Goal, ctx register.GenContext, inTail bool) (instr.Code, error) {
	idx := bc.h.Deref(g.TestArgIdx)
	c := bc.h.Get(idx)

	if decided, ok := staticTypeTestResult(g.TestOp, c); ok {
		op := instr.OpFail
		if decided {
			op = instr.OpSucceed
		}
		code := instr.Code{{Op: op}}
		if inTail {
			code = append(code, bc.tailEpilogue()...)
		}
		return code, nil
	}

	varNum := bc.varNum(idx)
	reg, err := bc.alloc.MarkNonCallable(varNum, 0, ctx)
	if err != nil {
		return nil, err
	}
	code := instr.Code{{Op: g.TestOp, Reg: reg, IsLast: inTail}}
	if inTail {
		code = append(code, bc.tailEpilogue()...)
	}
	return code, nil
}

// staticTypeTestResult decides an inlined type test from the heap cell's
// tag alone when possible (e.g. atom(foo) is statically true), per §4.7's
// "emit $succeed or $fail if statically decidable".
func staticTypeTestResult(op instr.Op, c cell.Cell) (result bool, decided bool) {
	switch op {
	case instr.OpVar:
		return false, c.Tag != cell.Var && c.Tag != cell.AttrVar
	case instr.OpNonVar:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return true, true
	case instr.OpAtom:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag == cell.Atom && c.Arity == 0, true
	case instr.OpCompound:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag == cell.Str || c.Tag == cell.Lis || (c.Tag == cell.Atom && c.Arity > 0), true
	case instr.OpNumber:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag == cell.Fixnum || c.Tag == cell.F64 || c.Tag == cell.Cons, true
	case instr.OpInteger:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag == cell.Fixnum, false
	case instr.OpFloat:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag == cell.F64, true
	case instr.OpAtomic:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag != cell.Str && c.Tag != cell.Lis && !(c.Tag == cell.Atom && c.Arity > 0), true
	case instr.OpCallable:
		if c.Tag == cell.Var || c.Tag == cell.AttrVar {
			return false, false
		}
		return c.Tag == cell.Atom || c.Tag == cell.Str, true
	}
	return false, false
}

func (bc *bodyCompiler) compileCall(g Goal, ctx register.GenContext, inTail bool) (instr.Code, error) {
	w := &walker{h: bc.h, atoms: bc.atoms, alloc: bc.alloc, varNum: bc.varNum, tgt: queryTarget, ctx: ctx}
	code, err := w.compileArgs(g.Args)
	if err != nil {
		return nil, err
	}

	op := instr.OpCall
	if inTail {
		op = instr.OpExecute
	}
	if inTail && bc.alloc.PermCount() > 0 {
		code = append(code, instr.Instruction{Op: instr.OpDeallocate})
	}
	code = append(code, instr.Instruction{Op: op, PredName: g.PredName, PredArity: g.PredArity})
	return code, nil
}
