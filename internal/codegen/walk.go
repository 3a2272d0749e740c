// This file implements the shared fact/query term walker of spec.md §4.6's
// "Target specialization": one breadth-first traversal, parameterized by a
// small target table that picks the get/unify vs put/set opcode family.
// Grounded on spec.md §4.6 and the general WAM compilation algorithm (the
// Rust source's own target/queue machinery was not part of the retrieved
// excerpt, so this follows the classical breadth-first get_structure/
// unify_* decomposition rather than a line-for-line port).
package codegen

import (
	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/instr"
	"wam/internal/number"
	"wam/internal/register"
)

func numberFromFixnum(v int64) number.Number { return number.Fixnum(v) }
func numberFromFloat(v float64) number.Number { return number.Float(v) }

// target picks the opcode family for one traversal: fact/rule heads use
// get/unify, queries use put/set (spec.md §4.6).
type target struct {
	isQuery bool

	opConstant  instr.Op
	opList      instr.Op
	opStructure instr.Op
	opValue     instr.Op
	opVariable  instr.Op

	opUConstant instr.Op
	opUVariable instr.Op
	opUValue    instr.Op
}

var factTarget = target{
	isQuery:     false,
	opConstant:  instr.OpGetConstant,
	opList:      instr.OpGetList,
	opStructure: instr.OpGetStructure,
	opValue:     instr.OpGetValue,
	opVariable:  instr.OpGetVariable,
	opUConstant: instr.OpUnifyConstant,
	opUVariable: instr.OpUnifyVariable,
	opUValue:    instr.OpUnifyValue,
}

var queryTarget = target{
	isQuery:     true,
	opConstant:  instr.OpPutConstant,
	opList:      instr.OpPutList,
	opStructure: instr.OpPutStructure,
	opValue:     instr.OpPutValue,
	opVariable:  instr.OpPutVariable,
	opUConstant: instr.OpSetConstant,
	opUVariable: instr.OpSetVariable,
	opUValue:    instr.OpSetValue,
}

// VarNumOf maps a heap index (of a variable cell) to the stable variable
// number the register allocator and branch-safety bookkeeping key on.
type VarNumOf func(heapIdx int) int

type walker struct {
	h       *cell.Heap
	atoms   *atomtable.Table
	alloc   *register.DebrayAllocator
	varNum  VarNumOf
	tgt     target
	ctx     register.GenContext
	pending []pendingTerm
}

type pendingTerm struct {
	reg register.Register
	idx int // heap index of a term already known to be compound (Lis or Str)
}

func constantFromCell(c cell.Cell) instr.Constant {
	switch c.Tag {
	case cell.Fixnum:
		return instr.ConstNumber(numberFromFixnum(c.Value))
	case cell.F64:
		return instr.ConstNumber(numberFromFloat(c.Float))
	case cell.Atom:
		return instr.ConstAtom(c.AtomID)
	default:
		return instr.Constant{}
	}
}

// firstOccurrence reports whether varNum has not yet been bound to a
// register — used to choose get_variable/put_variable (bind) vs
// get_value/put_value (test) for a repeat occurrence.
func (w *walker) firstOccurrence(varNum int) bool {
	rec, ok := w.alloc.VarData.Records[varNum]
	return !ok || rec.RunningCount == 0
}

// compileArgs walks arity top-level head/query arguments, each bound to
// the corresponding A-register (TempReg(1..arity)), and returns the
// emitted instructions.
func (w *walker) compileArgs(args []int) (instr.Code, error) {
	var code instr.Code
	w.alloc.ReserveTopRegs(len(args))

	for i, argIdx := range args {
		reg := register.TempReg(i + 1)
		c, err := w.emitOuter(reg, argIdx, &code)
		if err != nil {
			return nil, err
		}
		_ = c
	}

	for len(w.pending) > 0 {
		item := w.pending[0]
		w.pending = w.pending[1:]
		if _, err := w.emitOuter(item.reg, item.idx, &code); err != nil {
			return nil, err
		}
	}
	return code, nil
}

// emitOuter processes one term (a top-level argument, or a previously
// deferred compound subterm) addressed at reg: constants/atoms emit a
// Constant instruction, variables a Variable/Value instruction, and
// Lis/Str cells a List/Structure instruction followed by inner
// decomposition of their direct children.
func (w *walker) emitOuter(reg register.Register, idx int, code *instr.Code) (register.Register, error) {
	idx = w.h.Deref(idx)
	c := w.h.Get(idx)

	switch c.Tag {
	case cell.Var, cell.AttrVar:
		varNum := w.varNum(idx)
		bound, first := w.alloc.BindArgVar(varNum, reg)
		op := w.tgt.opValue
		if first {
			op = w.tgt.opVariable
		}
		*code = append(*code, instr.Instruction{Op: op, Reg: bound})
		return bound, nil

	case cell.Fixnum, cell.F64:
		*code = append(*code, instr.Instruction{Op: w.tgt.opConstant, Reg: reg, Const: constantFromCell(c)})
		return reg, nil

	case cell.Atom:
		if c.Arity == 0 {
			*code = append(*code, instr.Instruction{Op: w.tgt.opConstant, Reg: reg, Const: constantFromCell(c)})
			return reg, nil
		}
		return reg, w.emitStructure(reg, c.AtomID, c.Arity, idx, code)

	case cell.Str:
		fIdx := int(c.Value)
		fc := w.h.Get(fIdx)
		return reg, w.emitStructure(reg, fc.AtomID, fc.Arity, fIdx, code)

	case cell.Lis:
		*code = append(*code, instr.Instruction{Op: w.tgt.opList, Reg: reg})
		headIdx := int(c.Value)
		tailIdx := headIdx + 1
		if err := w.emitInnerChild(headIdx, code); err != nil {
			return register.Register{}, err
		}
		if err := w.emitInnerChild(tailIdx, code); err != nil {
			return register.Register{}, err
		}
		return reg, nil

	default:
		*code = append(*code, instr.Instruction{Op: w.tgt.opConstant, Reg: reg, Const: constantFromCell(c)})
		return reg, nil
	}
}

func (w *walker) emitStructure(reg register.Register, atomID uint32, arity, functorIdx int, code *instr.Code) error {
	*code = append(*code, instr.Instruction{Op: w.tgt.opStructure, Reg: reg, Atom: atomID, Arity: arity})
	for i := 1; i <= arity; i++ {
		childIdx := functorIdx + i
		if err := w.emitInnerChild(childIdx, code); err != nil {
			return err
		}
	}
	return nil
}

// emitInnerChild decomposes one direct child of a Lis/Str cell just
// emitted: atomic children get an inline unify_constant/set_constant,
// variable children a unify_variable/unify_value (or set_ equivalent), and
// compound children a fresh register plus a deferred (reg, idx) entry for
// later get_structure/get_list processing.
func (w *walker) emitInnerChild(idx int, code *instr.Code) error {
	idx = w.h.Deref(idx)
	c := w.h.Get(idx)

	switch c.Tag {
	case cell.Var, cell.AttrVar:
		varNum := w.varNum(idx)
		first := w.firstOccurrence(varNum)
		reg, err := w.alloc.MarkVar(varNum, w.ctx)
		if err != nil {
			return err
		}
		op := w.tgt.opUValue
		if first {
			op = w.tgt.opUVariable
		}
		*code = append(*code, instr.Instruction{Op: op, Reg: reg})
		return nil

	case cell.Fixnum, cell.F64:
		*code = append(*code, instr.Instruction{Op: w.tgt.opUConstant, Const: constantFromCell(c)})
		return nil

	case cell.Atom:
		if c.Arity == 0 {
			*code = append(*code, instr.Instruction{Op: w.tgt.opUConstant, Const: constantFromCell(c)})
			return nil
		}
		fallthrough

	case cell.Str, cell.Lis:
		freshNum := -(idx + 1) // synthetic var-number space for compiler-introduced temporaries
		w.alloc.VarData.Classify(freshNum, []int{w.ctx.Chunk})
		reg, err := w.alloc.MarkVar(freshNum, w.ctx)
		if err != nil {
			return err
		}
		*code = append(*code, instr.Instruction{Op: w.tgt.opUVariable, Reg: reg})
		w.pending = append(w.pending, pendingTerm{reg: reg, idx: idx})
		return nil

	default:
		*code = append(*code, instr.Instruction{Op: w.tgt.opUConstant, Const: constantFromCell(c)})
		return nil
	}
}
