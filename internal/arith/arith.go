// Package arith implements the arithmetic expression compiler of spec.md
// §4.3: it lowers a heap-resident Prolog arithmetic term into a flat
// sequence of three-address arithmetic instructions with intermediate
// result slots, ready to feed an is/2 or comparison opcode. Grounded on
// _examples/original_source/src/machine/arithmetic.rs (ArithmeticEvaluator,
// the unary/binary operator tables, interm-slot reuse) and, for Go
// idiom (typed opcode enums, explicit error returns), the teacher repo's
// internal/vmregister package.
package arith

import (
	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/number"
	"wam/internal/register"
	"wam/internal/wamerrors"
)

// OperandKind distinguishes the three shapes an ArithmeticTerm can take.
type OperandKind uint8

const (
	KindReg OperandKind = iota
	KindInterm
	KindNumber
)

// Operand is a compiled arithmetic operand: Reg(RegType), Interm(k), or
// Number(n) — spec.md §3's ArithmeticTerm.
type Operand struct {
	Kind   OperandKind
	Reg    register.Register
	Interm int
	Num    number.Number
}

func RegOperand(r register.Register) Operand { return Operand{Kind: KindReg, Reg: r} }
func IntermOperand(k int) Operand            { return Operand{Kind: KindInterm, Interm: k} }
func NumberOperand(n number.Number) Operand  { return Operand{Kind: KindNumber, Num: n} }

// Op is one arithmetic instruction opcode. The VM-facing "default/counted/
// to_execute" variants (spec.md §3) are a property of how the caller
// threads this stream into the surrounding Code, not of this compiler, so
// Op only names the operation.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpRDiv
	OpMod
	OpRem
	OpGcd
	OpShl
	OpShr
	OpAnd
	OpOr
	OpXor
	OpPow
	OpIntPow
	OpNeg
	OpAbs
	OpSin
	OpCos
	OpTan
	OpASin
	OpACos
	OpATan
	OpATan2
	OpExp
	OpLog
	OpSqrt
	OpTruncate
	OpRound
	OpCeiling
	OpFloor
	OpSign
	OpFloat
	OpBitComp
)

var opNames = map[Op]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpIDiv: "idiv",
	OpRDiv: "rdiv", OpMod: "mod", OpRem: "rem", OpGcd: "gcd", OpShl: "shl",
	OpShr: "shr", OpAnd: "and", OpOr: "or", OpXor: "xor", OpPow: "pow",
	OpIntPow: "intpow", OpNeg: "neg", OpAbs: "abs", OpSin: "sin", OpCos: "cos",
	OpTan: "tan", OpASin: "asin", OpACos: "acos", OpATan: "atan",
	OpATan2: "atan2", OpExp: "exp", OpLog: "log", OpSqrt: "sqrt",
	OpTruncate: "truncate", OpRound: "round", OpCeiling: "ceiling",
	OpFloor: "floor", OpSign: "sign", OpFloat: "float", OpBitComp: "bitcomp",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "?"
}

// unaryOps excludes "+": unary plus is the identity and is special-cased in
// compileStruct before this table is consulted.
var unaryOps = map[string]Op{
	"abs": OpAbs, "-": OpNeg, "cos": OpCos,
	"sin": OpSin, "tan": OpTan, "log": OpLog, "exp": OpExp, "sqrt": OpSqrt,
	"acos": OpACos, "asin": OpASin, "atan": OpATan, "float": OpFloat,
	"truncate": OpTruncate, "round": OpRound, "ceiling": OpCeiling,
	"floor": OpFloor, "sign": OpSign, "\\": OpBitComp,
}

var binaryOps = map[string]Op{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "//": OpIDiv, "div": opFloorDiv,
	"rdiv": OpRDiv, "max": 0xff, "min": 0xfe, "**": OpPow, "^": OpIntPow,
	">>": OpShr, "<<": OpShl, "/\\": OpAnd, "\\/": OpOr, "xor": OpXor,
	"mod": OpMod, "rem": OpRem, "gcd": OpGcd, "atan2": OpATan2,
}

// sentinel binary opcodes outside the named Op set: max/min (comparisons,
// which apply evaluates with number.Cmp) and div (floor division, which
// apply evaluates with number.FloorDiv; // stays truncating OpIDiv).
const (
	opMax      Op = 0xff
	opMin      Op = 0xfe
	opFloorDiv Op = 0xfd
)

// Instr is one emitted arithmetic instruction: dest = op(operands...).
type Instr struct {
	Op       Op
	Operands []Operand
	Dest     int // destination Interm slot
}

// Result is the output of compiling one arithmetic expression: the
// instruction stream plus the final operand to feed into is/2 or a
// comparison opcode.
type Result struct {
	Instrs []Instr
	Final  Operand
}

// Binding resolves a heap variable (by heap index) to its allocated
// register. ok is false when the register is not yet allocated (register
// number 0), which the evaluator reports as UninstantiatedVar.
type Binding func(heapIdx int) (reg register.Register, ok bool)

// Evaluator compiles heap-resident arithmetic expressions, grounded on
// ArithmeticEvaluator in arithmetic.rs: a post-order walk over the heap
// term, an Interm counter, and an operand stack with slot-reuse rules.
type Evaluator struct {
	Heap    *cell.Heap
	Atoms   *atomtable.Table
	Binding Binding

	nextInterm int
}

// NewEvaluator constructs an Evaluator over a heap and atom table, using
// resolve to map variable heap cells to already-allocated registers.
func NewEvaluator(h *cell.Heap, atoms *atomtable.Table, resolve Binding) *Evaluator {
	return &Evaluator{Heap: h, Atoms: atoms, Binding: resolve}
}

// CompileArithExpr walks the term rooted at heapIdx (compile_arith_expr in
// spec.md §6) and returns the arithmetic instruction stream plus the final
// operand.
func (e *Evaluator) CompileArithExpr(heapIdx int) (Result, error) {
	var instrs []Instr
	final, err := e.compile(heapIdx, &instrs)
	if err != nil {
		return Result{}, err
	}
	return Result{Instrs: instrs, Final: final}, nil
}

func (e *Evaluator) compile(heapIdx int, instrs *[]Instr) (Operand, error) {
	idx := e.Heap.Deref(heapIdx)
	c := e.Heap.Get(idx)

	switch c.Tag {
	case cell.Var, cell.AttrVar:
		// A Var cell at compile time names a clause variable, not a runtime
		// binding: it is self-referential until the register allocator
		// assigns it a slot (spec.md §4.3's variable-resolution rule).
		reg, ok := e.Binding(idx)
		if !ok || !reg.Valid() {
			return Operand{}, wamerrors.NewUninstantiatedVar(wamerrors.Location{})
		}
		return RegOperand(reg), nil

	case cell.Fixnum:
		return NumberOperand(number.Fixnum(c.Value)), nil

	case cell.F64:
		return NumberOperand(number.Float(c.Float)), nil

	case cell.Cons:
		av := e.Heap.ArenaAt(c)
		switch av.Tag {
		case cell.ArenaInteger, cell.ArenaRational:
			return NumberOperand(av.Number), nil
		default:
			return Operand{}, wamerrors.NewNonEvaluableFunctor("<code-index>", 0, wamerrors.Location{})
		}

	case cell.Atom:
		name := e.Atoms.Text(atomtable.Atom(c.AtomID))
		if c.Arity == 0 {
			switch name {
			case "e":
				return NumberOperand(number.E), nil
			case "pi":
				return NumberOperand(number.Pi), nil
			case "epsilon":
				return NumberOperand(number.Epsilon), nil
			}
			return Operand{}, wamerrors.NewNonEvaluableFunctor(name, 0, wamerrors.Location{})
		}
		return Operand{}, wamerrors.NewNonEvaluableFunctor(name, c.Arity, wamerrors.Location{})

	case cell.Str:
		// Str cells are indirection: Value holds the heap index where the
		// functor (name/arity cell followed by its argument slots) actually
		// lives.
		return e.compileStruct(int(c.Value), instrs)

	default:
		return Operand{}, wamerrors.NewNonEvaluableFunctor("<term>", 0, wamerrors.Location{})
	}
}

func (e *Evaluator) compileStruct(strIdx int, instrs *[]Instr) (Operand, error) {
	functorCell := e.Heap.Get(strIdx)
	name := e.Atoms.Text(atomtable.Atom(functorCell.AtomID))
	arity := functorCell.Arity

	switch arity {
	case 1:
		if name == "+" {
			// unary plus is the identity; no instruction emitted.
			return e.compile(strIdx+1, instrs)
		}

		op, ok := unaryOps[name]
		if !ok {
			return Operand{}, wamerrors.NewNonEvaluableFunctor(name, 1, wamerrors.Location{})
		}
		argOperand, err := e.compile(strIdx+1, instrs)
		if err != nil {
			return Operand{}, err
		}

		dest := e.destSlotFor(argOperand)
		*instrs = append(*instrs, Instr{Op: op, Operands: []Operand{argOperand}, Dest: dest})
		return IntermOperand(dest), nil

	case 2:
		op, ok := binaryOps[name]
		if !ok {
			return Operand{}, wamerrors.NewNonEvaluableFunctor(name, 2, wamerrors.Location{})
		}
		lhs, err := e.compile(strIdx+1, instrs)
		if err != nil {
			return Operand{}, err
		}
		rhs, err := e.compile(strIdx+2, instrs)
		if err != nil {
			return Operand{}, err
		}

		dest := e.destSlotForPair(lhs, rhs)
		*instrs = append(*instrs, Instr{Op: op, Operands: []Operand{lhs, rhs}, Dest: dest})
		return IntermOperand(dest), nil

	default:
		return Operand{}, wamerrors.NewNonEvaluableFunctor(name, arity, wamerrors.Location{})
	}
}

// destSlotFor implements the unary reuse rule (spec.md §4.3): reuse the
// operand's Interm slot if it has one, else allocate a fresh slot.
func (e *Evaluator) destSlotFor(operand Operand) int {
	if operand.Kind == KindInterm {
		return operand.Interm
	}
	return e.allocInterm()
}

// destSlotForPair implements the binary reuse rule: reuse the
// smaller-numbered Interm slot among the two operands, if either has one.
func (e *Evaluator) destSlotForPair(lhs, rhs Operand) int {
	lhsInterm := lhs.Kind == KindInterm
	rhsInterm := rhs.Kind == KindInterm

	switch {
	case lhsInterm && rhsInterm:
		if lhs.Interm <= rhs.Interm {
			return lhs.Interm
		}
		return rhs.Interm
	case lhsInterm:
		return lhs.Interm
	case rhsInterm:
		return rhs.Interm
	default:
		return e.allocInterm()
	}
}

func (e *Evaluator) allocInterm() int {
	e.nextInterm++
	return e.nextInterm
}

// Eval evaluates a compiled instruction stream against a register-value
// environment, producing the concrete Number for Final. This is a
// convenience used by tests and by any constant-folding the caller wants to
// perform at compile time; the VM has its own runtime evaluator.
func Eval(instrs []Instr, final Operand, regValue func(register.Register) (number.Number, bool)) (number.Number, error) {
	slots := map[int]number.Number{}

	resolve := func(o Operand) (number.Number, error) {
		switch o.Kind {
		case KindNumber:
			return o.Num, nil
		case KindInterm:
			n, ok := slots[o.Interm]
			if !ok {
				return number.Number{}, wamerrors.NewUninstantiatedVar(wamerrors.Location{})
			}
			return n, nil
		case KindReg:
			n, ok := regValue(o.Reg)
			if !ok {
				return number.Number{}, wamerrors.NewUninstantiatedVar(wamerrors.Location{})
			}
			return n, nil
		}
		return number.Number{}, wamerrors.NewUninstantiatedVar(wamerrors.Location{})
	}

	for _, instr := range instrs {
		operands := make([]number.Number, len(instr.Operands))
		for i, o := range instr.Operands {
			n, err := resolve(o)
			if err != nil {
				return number.Number{}, err
			}
			operands[i] = n
		}

		result, err := apply(instr.Op, operands)
		if err != nil {
			return number.Number{}, err
		}
		slots[instr.Dest] = result
	}

	return resolve(final)
}

func apply(op Op, args []number.Number) (number.Number, error) {
	switch op {
	case OpAdd:
		return number.Add(args[0], args[1])
	case OpSub:
		return number.Sub(args[0], args[1])
	case OpMul:
		return number.Mul(args[0], args[1])
	case OpDiv:
		return number.Div(args[0], args[1])
	case OpIDiv:
		return number.IDiv(args[0], args[1])
	case opFloorDiv:
		return number.FloorDiv(args[0], args[1])
	case OpRDiv:
		return number.RDiv(args[0], args[1])
	case OpMod:
		return number.Mod(args[0], args[1])
	case OpRem:
		return number.Rem(args[0], args[1])
	case OpGcd:
		return number.Gcd(args[0], args[1])
	case OpShl:
		return number.Shl(args[0], args[1])
	case OpShr:
		return number.Shr(args[0], args[1])
	case OpAnd:
		return number.And(args[0], args[1])
	case OpOr:
		return number.Or(args[0], args[1])
	case OpXor:
		return number.Xor(args[0], args[1])
	case OpPow:
		return number.Pow(args[0], args[1])
	case OpIntPow:
		return number.IntPow(args[0], args[1])
	case OpNeg:
		return number.Neg(args[0])
	case OpAbs:
		return number.Abs(args[0])
	case OpSign:
		return number.Sign(args[0])
	case OpFloat:
		return number.FloatConv(args[0])
	case OpTruncate:
		return number.Truncate(args[0])
	case OpRound:
		return number.Round(args[0])
	case OpCeiling:
		return number.Ceiling(args[0])
	case OpFloor:
		return number.Floor(args[0])
	case OpBitComp:
		return number.BitwiseComplement(args[0])
	case OpSin:
		return number.Sin(args[0])
	case OpCos:
		return number.Cos(args[0])
	case OpTan:
		return number.Tan(args[0])
	case OpASin:
		return number.ASin(args[0])
	case OpACos:
		return number.ACos(args[0])
	case OpATan:
		return number.ATan(args[0])
	case OpATan2:
		return number.ATan2(args[0], args[1])
	case OpExp:
		return number.Exp(args[0])
	case OpLog:
		return number.Log(args[0])
	case OpSqrt:
		return number.Sqrt(args[0])
	case opMax:
		if number.Cmp(args[0], args[1]) >= 0 {
			return args[0], nil
		}
		return args[1], nil
	case opMin:
		if number.Cmp(args[0], args[1]) <= 0 {
			return args[0], nil
		}
		return args[1], nil
	default:
		return number.Number{}, wamerrors.NewNonEvaluableFunctor(op.String(), len(args), wamerrors.Location{})
	}
}
