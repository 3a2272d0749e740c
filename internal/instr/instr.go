// Package instr defines the linear instruction stream the code generator
// emits: the WAM opcode family (get/put/unify/set, call/execute, choice
// instructions, cut, arithmetic/indexing support) plus the Code vector and
// PredicateSkeleton bookkeeping consumed by the assert/retract subsystem
// (out of scope here). Grounded on spec.md §3/§6 and the instruction names
// referenced throughout _examples/original_source/src/codegen.rs; the
// defining enum (machine/instructions.rs) was not part of the retrieved
// excerpt, so the opcode shapes below follow spec.md's end-to-end
// scenarios (§8) and the call sites visible in codegen.rs rather than a
// direct port.
package instr

import (
	"fmt"

	"wam/internal/arith"
	"wam/internal/number"
	"wam/internal/register"
)

// Level names a saved choice-point depth a cut instruction reads from.
type Level int

// ArgIndex is a 1-based argument register position (A1, A2, ...).
type ArgIndex int

// Op identifies an instruction's opcode.
type Op uint8

const (
	// Head (get) family.
	OpGetConstant Op = iota
	OpGetList
	OpGetStructure
	OpGetValue
	OpGetVariable
	OpGetPStr

	// Nested-head (unify) family.
	OpUnifyConstant
	OpUnifyVariable
	OpUnifyValue
	OpUnifyLocalValue
	OpUnifyVoid

	// Query (put) family.
	OpPutConstant
	OpPutList
	OpPutStructure
	OpPutValue
	OpPutUnsafeValue
	OpPutVariable
	OpPutPStr

	// Nested-query (set) family.
	OpSetConstant
	OpSetVariable
	OpSetValue
	OpSetLocalValue
	OpSetVoid

	// Control.
	OpCall
	OpExecute
	OpProceed
	OpAllocate
	OpDeallocate

	// Cut.
	OpGetLevel
	OpGetCutPoint
	OpGetPrevLevel
	OpLocalCut
	OpGlobalCut

	// Choice instructions (internal = not counted for inference metering;
	// external = counted, used at the outer run-level chain, per §4.8).
	OpTryMeElse
	OpRetryMeElse
	OpTrustMe
	OpDefaultRetryMeElse
	OpDefaultTrustMe
	OpDynamicElse
	OpDynamicInternalElse
	OpJmpByCall

	// Arithmetic / type tests.
	OpArithStep
	OpIs
	OpAtom
	OpAtomic
	OpCompound
	OpCallable
	OpNumber
	OpVar
	OpNonVar
	OpInteger
	OpFloat
	OpSucceed
	OpFail

	// Indexing.
	OpSwitchOnTerm
	OpSwitchOnConstant
	OpSwitchOnStructure
)

var opNames = map[Op]string{
	OpGetConstant: "get_constant", OpGetList: "get_list", OpGetStructure: "get_structure",
	OpGetValue: "get_value", OpGetVariable: "get_variable", OpGetPStr: "get_pstr",
	OpUnifyConstant: "unify_constant", OpUnifyVariable: "unify_variable",
	OpUnifyValue: "unify_value", OpUnifyLocalValue: "unify_local_value", OpUnifyVoid: "unify_void",
	OpPutConstant: "put_constant", OpPutList: "put_list", OpPutStructure: "put_structure",
	OpPutValue: "put_value", OpPutUnsafeValue: "put_unsafe_value", OpPutVariable: "put_variable",
	OpPutPStr: "put_pstr",
	OpSetConstant: "set_constant", OpSetVariable: "set_variable",
	OpSetValue: "set_value", OpSetLocalValue: "set_local_value", OpSetVoid: "set_void",
	OpCall: "call", OpExecute: "execute", OpProceed: "proceed",
	OpAllocate: "allocate", OpDeallocate: "deallocate",
	OpGetLevel: "get_level", OpGetCutPoint: "get_cut_point", OpGetPrevLevel: "get_prev_level",
	OpLocalCut: "local_cut", OpGlobalCut: "global_cut",
	OpTryMeElse: "try_me_else", OpRetryMeElse: "retry_me_else", OpTrustMe: "trust_me",
	OpDefaultRetryMeElse: "default_retry_me_else", OpDefaultTrustMe: "default_trust_me",
	OpDynamicElse: "dynamic_else", OpDynamicInternalElse: "dynamic_internal_else",
	OpJmpByCall: "jmp_by_call",
	OpArithStep: "arith_step",
	OpIs:        "is", OpAtom: "atom", OpAtomic: "atomic", OpCompound: "compound",
	OpCallable: "callable", OpNumber: "number", OpVar: "var", OpNonVar: "nonvar",
	OpInteger: "integer", OpFloat: "float", OpSucceed: "$succeed", OpFail: "$fail",
	OpSwitchOnTerm: "switch_on_term", OpSwitchOnConstant: "switch_on_constant",
	OpSwitchOnStructure: "switch_on_structure",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Constant is a head/query literal argument: an atom (by id), a number, or
// a partial-string segment.
type Constant struct {
	AtomID  uint32
	HasAtom bool
	Num     number.Number
	HasNum  bool
	PStr    string
	HasPStr bool
}

func ConstAtom(id uint32) Constant       { return Constant{AtomID: id, HasAtom: true} }
func ConstNumber(n number.Number) Constant { return Constant{Num: n, HasNum: true} }
func ConstPStr(s string) Constant        { return Constant{PStr: s, HasPStr: true} }

// ChoiceTarget carries the offset(s) a choice instruction threads through
// jmp_by_call; Offset is relative to the instruction's own position.
type ChoiceTarget struct {
	Offset       int
	ClockTick    int // only meaningful for Dynamic*Else variants
	IsExtensible bool
}

// Instruction is one entry in a Code vector. Not every field is populated
// for every Op; codegen only ever sets the ones its Op needs, and
// internal/diag only ever prints the ones that are set.
type Instruction struct {
	Op Op

	Reg   register.Register // get_variable/put_variable/... target or source
	Arg   ArgIndex           // get_constant/get_list/... argument position
	Const Constant           // get_constant/put_constant/...
	Arity int                // get_structure/put_structure functor arity
	Atom  uint32             // get_structure/put_structure/switch_on_structure functor name

	Level Level // get_level/get_cut_point/get_prev_level target slot

	PredName  string // call/execute target predicate
	PredArity int

	FrameSize int // allocate n

	Choice ChoiceTarget // try_me_else/retry_me_else/trust_me/jmp_by_call

	IsLast bool // Is/type-test done in tail position (rewritten to execute semantics upstream)

	SwitchVar    int // switch_on_term branch offsets (0 = absent)
	SwitchConst  int
	SwitchList   int
	SwitchStruct int

	ConstTable  map[string]int    // switch_on_constant, keyed by Constant.Key()
	StructTable map[StructKey]int // switch_on_structure

	// Arithmetic (OpArithStep / OpIs): compiled expression micro-steps,
	// carried directly from internal/arith's Result (§4.3), plus the
	// destination register for the final is/2 test.
	ArithOp     arith.Op
	ArithArgs   []arith.Operand
	ArithDest   int
	ArithFinal  arith.Operand
}

// Key renders a constant as a stable map key for indexing tables — atoms
// key by id, numbers by kind+value, partial strings by their byte content.
func (c Constant) Key() string {
	switch {
	case c.HasAtom:
		return fmt.Sprintf("a:%d", c.AtomID)
	case c.HasNum:
		switch c.Num.Kind {
		case number.KindFixnum:
			return fmt.Sprintf("n:fix:%d", c.Num.Fix)
		case number.KindFloat:
			return fmt.Sprintf("n:float:%v", c.Num.Float)
		case number.KindInteger:
			return fmt.Sprintf("n:int:%s", c.Num.Int.String())
		case number.KindRational:
			return fmt.Sprintf("n:rat:%s", c.Num.Rat.String())
		}
		return "n:?"
	case c.HasPStr:
		return fmt.Sprintf("s:%s", c.PStr)
	default:
		return "?"
	}
}

// StructKey names one functor (name/arity) entry of a switch_on_structure
// table.
type StructKey struct {
	AtomID uint32
	Arity  int
}

// Code is the flat, PC-addressed instruction stream one predicate (or
// clause, before splicing into a predicate) compiles to.
type Code []Instruction

// Len is a thin alias kept for readability at call sites that reason about
// offsets (jmp_by_call(len(code)-p)).
func (c Code) Len() int { return len(c) }

// ClauseEntry records where one clause's compiled code begins within a
// predicate's Code vector, and the first-argument key used to route to it
// during indexing (assert/retract patches these when a predicate is
// extended at runtime).
type ClauseEntry struct {
	StartOffset int
	ArgKey      ArgKey
}

// ArgKey classifies the first argument of a clause head for indexing
// purposes: an unbound variable (matches everything), a constant, a list
// cell, or a structure (name/arity).
type ArgKey struct {
	IsVar    bool
	IsList   bool
	IsStruct bool
	Const    Constant
	Struct   StructKey
}

// PredicateSkeleton is what compile_predicate hands back to a caller that
// needs to patch offsets later (assert/retract, out of scope here): the
// full compiled Code plus the per-clause start offsets and keys that made
// up the indexing prelude.
type PredicateSkeleton struct {
	Name    string
	Arity   int
	Code    Code
	Clauses []ClauseEntry
	// IsDynamic records the caller's dynamic flag. CompilePredicate emits
	// the same try_me_else family for dynamic and static predicates; it
	// does not emit DynamicElse/DynamicInternalElse.
	IsDynamic   bool
	IsExtensible bool
}
