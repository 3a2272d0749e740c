// This file implements the Debray-style chunked register allocator of
// spec.md §4.4 and the disjunction variable-safety bookkeeping of §4.5.
// Grounded on the call sites into DebrayAllocator visible from
// _examples/original_source/src/codegen.rs (get_var_binding, mark_var,
// mark_non_callable, increment_running_count, add_reg_to_free_list,
// max_reg_allocated, branch_stack, hits/shallow_safety/deep_safety) — the
// allocator's own source file was not part of the retrieved excerpt, so the
// algorithm here follows spec.md §4.4/§4.5's prose directly rather than a
// line-for-line port.
package register

import (
	"wam/internal/wamerrors"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// minSlot returns the smallest value in a non-empty slice along with its
// index — the free-list always hands out the lowest-numbered register, so
// reuse picks the same slot a hand-rolled comparison loop would.
func minSlot[T constraints.Ordered](xs []T) (idx int, val T) {
	idx, val = 0, xs[0]
	for i, v := range xs {
		if v < val {
			idx, val = i, v
		}
	}
	return idx, val
}

// AllocKind says whether a variable record has been classified as temp-only
// or as a (possibly still-pending) permanent.
type AllocKind uint8

const (
	AllocUnset AllocKind = iota
	AllocTemp
	AllocPermPending
	AllocPermDone
)

// Allocation is a variable's current register assignment.
type Allocation struct {
	Kind AllocKind
	Num  int // 0 until a slot has actually been assigned
}

// AsRegType converts the allocation to a Register, or the zero Register if
// nothing has been assigned yet.
func (a Allocation) AsRegType() Register {
	switch a.Kind {
	case AllocTemp:
		return TempReg(a.Num)
	case AllocPermPending, AllocPermDone:
		return PermReg(a.Num)
	default:
		return Register{}
	}
}

// VarRecord is the per-variable bookkeeping of spec.md §3's "Variable
// records": occurrence counts, chunk membership, allocation state, and
// post-branch safety bits.
type VarRecord struct {
	NumOccurrences int
	RunningCount   int
	FirstChunk     int
	LastChunk      int
	Allocation     Allocation
	ShallowSafe    bool
	DeepSafe       bool
}

// VarData holds every variable record for one clause compilation, keyed by
// a caller-assigned variable number (typically the heap index of the
// variable's first occurrence).
type VarData struct {
	Records map[int]*VarRecord
}

func NewVarData() *VarData {
	return &VarData{Records: map[int]*VarRecord{}}
}

func (vd *VarData) recordFor(varNum int) *VarRecord {
	rec, ok := vd.Records[varNum]
	if !ok {
		rec = &VarRecord{}
		vd.Records[varNum] = rec
	}
	return rec
}

// Classify sets a variable's initial allocation kind from the chunks it
// appears in: appearing in more than one chunk makes it Perm (Pending);
// otherwise it stays Temp (spec.md §4.4's chunk definition).
func (vd *VarData) Classify(varNum int, chunksAppearingIn []int) {
	rec := vd.recordFor(varNum)
	rec.NumOccurrences = len(chunksAppearingIn)
	if len(chunksAppearingIn) == 0 {
		return
	}
	rec.FirstChunk = chunksAppearingIn[0]
	rec.LastChunk = chunksAppearingIn[len(chunksAppearingIn)-1]
	if rec.FirstChunk != rec.LastChunk {
		rec.Allocation = Allocation{Kind: AllocPermPending}
	} else {
		rec.Allocation = Allocation{Kind: AllocTemp}
	}
}

// Level distinguishes a direct (shallow) argument from a nested (deep)
// subterm — spec.md §4.6's fact-walk terminology.
type Level uint8

const (
	Shallow Level = iota
	Deep
)

// GenContext is the body-compilation position of the current goal: the
// clause head, a mid-body chunk, or the last (tail-call) chunk.
type GenContext struct {
	Chunk  int
	IsLast bool
}

func HeadContext() GenContext           { return GenContext{} }
func MidContext(chunk int) GenContext   { return GenContext{Chunk: chunk} }
func LastContext(chunk int) GenContext  { return GenContext{Chunk: chunk, IsLast: true} }

// BranchFrame is one disjunction arm-set's tracking state: which
// variables were written in which arm (hits), and which variables are
// now safe to read from any arm (spec.md §4.5's branch-stack entry).
type BranchFrame struct {
	NumArms       int
	Hits          map[int]*ArmBits
	ShallowSafety map[int]bool
	DeepSafety    map[int]bool
}

func NewBranchFrame(numArms int) *BranchFrame {
	return &BranchFrame{
		NumArms:       numArms,
		Hits:          map[int]*ArmBits{},
		ShallowSafety: map[int]bool{},
		DeepSafety:    map[int]bool{},
	}
}

// AddBranchOccurrence records that varNum was written in the current arm of
// this frame (propagated up from a nested frame when push_missing_vars
// resolves it, or set directly by the codegen loop as it compiles an arm).
func (bf *BranchFrame) AddBranchOccurrence(varNum, armIdx int) {
	bits, ok := bf.Hits[varNum]
	if !ok {
		bits = NewArmBits(bf.NumArms)
		bf.Hits[varNum] = bits
	}
	bits.Set(armIdx)
}

// ArmBits is a small fixed-width bitmap over the arms of one disjunction,
// equivalent to the hits bitset in push_missing_vars.
type ArmBits struct {
	bits []bool
}

func NewArmBits(n int) ArmBits { return ArmBits{bits: make([]bool, n)} }

func (b *ArmBits) Set(i int) { b.bits[i] = true }

func (b ArmBits) All() bool {
	for _, v := range b.bits {
		if !v {
			return false
		}
	}
	return true
}

// ZeroIndices returns the arm indices that were not hit, in ascending
// order — push_missing_vars's `branches.iter_zeros()`.
func (b ArmBits) ZeroIndices() []int {
	var out []int
	for i, v := range b.bits {
		if !v {
			out = append(out, i)
		}
	}
	return out
}

func (b ArmBits) Len() int { return len(b.bits) }

// DebrayAllocator assigns Temp/Perm registers to variables chunk by chunk
// and tracks the branch-safety bookkeeping needed at disjunction joins.
type DebrayAllocator struct {
	VarData     *VarData
	BranchStack []*BranchFrame

	freeTemp  []int
	maxReg    int
	permCount int
	chunkNum  int
}

func NewDebrayAllocator(vd *VarData) *DebrayAllocator {
	return &DebrayAllocator{VarData: vd}
}

// ResetTempFreeList re-seeds the temp free-list to {1..argCount}. The code
// generator does not call it: NewChunk empties the free-list between
// chunks, and compileArgs reserves argument registers with ReserveTopRegs.
func (d *DebrayAllocator) ResetTempFreeList(argCount int) {
	d.freeTemp = d.freeTemp[:0]
	for i := 1; i <= argCount; i++ {
		d.freeTemp = append(d.freeTemp, i)
	}
	if argCount > d.maxReg {
		d.maxReg = argCount
	}
}

// ReserveTopRegs marks {1..n} as the clause's argument registers without
// adding them to the free-list: while a head term is still being walked,
// its own A-registers must stay live, so nested-subterm temporaries have
// to be allocated above them rather than drawn from the same free slots.
func (d *DebrayAllocator) ReserveTopRegs(n int) {
	if n > d.maxReg {
		d.maxReg = n
	}
}

// AddRegToFreeList returns a temp register to the free-list once its
// sibling subterm no longer needs it (the add_reg_to_free_list call sites
// in codegen.rs, gated by the fact/query AddToFreeList capability).
func (d *DebrayAllocator) AddRegToFreeList(r Register) {
	if r.Kind != Temp {
		return
	}
	for _, n := range d.freeTemp {
		if n == r.Num {
			return
		}
	}
	d.freeTemp = append(d.freeTemp, r.Num)
}

func (d *DebrayAllocator) allocateTemp() int {
	if len(d.freeTemp) > 0 {
		minIdx, minVal := minSlot(d.freeTemp)
		d.freeTemp = append(d.freeTemp[:minIdx], d.freeTemp[minIdx+1:]...)
		if minVal > d.maxReg {
			d.maxReg = minVal
		}
		return minVal
	}
	d.maxReg++
	return d.maxReg
}

// MaxRegAllocated reports the highest register number handed out so far.
func (d *DebrayAllocator) MaxRegAllocated() int { return d.maxReg }

// GetVarBinding returns the register currently bound to varNum, or the zero
// Register if none has been allocated yet.
func (d *DebrayAllocator) GetVarBinding(varNum int) Register {
	rec, ok := d.VarData.Records[varNum]
	if !ok {
		return Register{}
	}
	return rec.Allocation.AsRegType()
}

// BindArgVar binds varNum to reg on its first occurrence (a head or query
// top-level argument register — always a fixed A-register, not one the
// free-list allocator should pick) and reports whether this was the first
// occurrence; on a repeat occurrence it returns the register the variable
// was already bound to instead (the caller then emits a get_value/
// put_value test against that register rather than rebinding).
func (d *DebrayAllocator) BindArgVar(varNum int, reg Register) (bound Register, first bool) {
	rec := d.VarData.recordFor(varNum)

	switch rec.Allocation.Kind {
	case AllocPermDone:
		d.IncrementRunningCount(varNum)
		return rec.Allocation.AsRegType(), false

	case AllocTemp:
		if rec.Allocation.Num != 0 {
			d.IncrementRunningCount(varNum)
			return rec.Allocation.AsRegType(), false
		}
		// Classify left this single-chunk variable AllocTemp but unbound —
		// this is its real first occurrence, fall through to bind it below.

	case AllocPermPending:
		// Classify already determined this variable spans more than one
		// chunk, so its very first occurrence gets a genuine frame slot
		// instead of the caller's argument register (spec.md §4.4/§8
		// scenario 2) — a Temp register would not survive the intervening
		// call that makes this variable multi-chunk in the first place.
		d.permCount++
		rec.Allocation = Allocation{Kind: AllocPermDone, Num: d.permCount}
		d.IncrementRunningCount(varNum)
		return PermReg(d.permCount), true
	}

	kind := AllocTemp
	if reg.Kind == Perm {
		kind = AllocPermDone
	}
	rec.Allocation = Allocation{Kind: kind, Num: reg.Num}
	if reg.Num > d.maxReg {
		d.maxReg = reg.Num
	}
	d.IncrementRunningCount(varNum)
	return reg, true
}

func (d *DebrayAllocator) IncrementRunningCount(varNum int) {
	if rec, ok := d.VarData.Records[varNum]; ok {
		rec.RunningCount++
	}
}

func (d *DebrayAllocator) FreeVar(chunkNum, varNum int) {
	rec, ok := d.VarData.Records[varNum]
	if !ok || rec.Allocation.Kind != AllocTemp {
		return
	}
	d.AddRegToFreeList(TempReg(rec.Allocation.Num))
}

// MarkVar implements the per-chunk allocation rules (spec.md §4.4 steps
// 2-5) for variables not in an argument position (BindArgVar handles
// those): allocate the lowest free temp for body temporaries, allocate a
// fresh perm slot on a
// pending permanent's first use, and — in tail position — let a
// never-yet-used permanent ride a temp register instead of a frame slot.
func (d *DebrayAllocator) MarkVar(varNum int, ctx GenContext) (Register, error) {
	rec := d.VarData.recordFor(varNum)

	switch rec.Allocation.Kind {
	case AllocUnset, AllocTemp:
		if rec.Allocation.Num == 0 {
			rec.Allocation = Allocation{Kind: AllocTemp, Num: d.allocateTemp()}
		}
		reg := TempReg(rec.Allocation.Num)
		if !reg.Valid() {
			return Register{}, wamerrors.NewExceededMaxArity(reg.Num, wamerrors.Location{})
		}
		d.IncrementRunningCount(varNum)
		return reg, nil

	case AllocPermPending:
		if ctx.IsLast && rec.RunningCount == 0 {
			// step 5: nothing will read a frame slot for this variable
			// again, so ride a temp register instead of paying for one.
			n := d.allocateTemp()
			d.IncrementRunningCount(varNum)
			return TempReg(n), nil
		}
		d.permCount++
		rec.Allocation = Allocation{Kind: AllocPermDone, Num: d.permCount}
		d.IncrementRunningCount(varNum)
		return PermReg(d.permCount), nil

	case AllocPermDone:
		d.IncrementRunningCount(varNum)
		reg := PermReg(rec.Allocation.Num)
		if !reg.Valid() {
			return Register{}, wamerrors.NewExceededMaxArity(reg.Num, wamerrors.Location{})
		}
		return reg, nil
	}

	return Register{}, wamerrors.NewExceededMaxArity(0, wamerrors.Location{})
}

// MarkCutVar allocates a register for a cut handle as if it were a
// permanent variable born in chunk 0 (spec.md §4.4's "Cut variable" rule):
// get_level/get_cut_point/get_prev_level all emit into this slot.
func (d *DebrayAllocator) MarkCutVar(varNum int) (Register, error) {
	rec := d.VarData.recordFor(varNum)
	rec.FirstChunk = 0
	if rec.Allocation.Kind == AllocUnset {
		rec.Allocation = Allocation{Kind: AllocPermPending}
	}
	if rec.Allocation.Kind == AllocPermPending {
		d.permCount++
		rec.Allocation = Allocation{Kind: AllocPermDone, Num: d.permCount}
	}
	reg := PermReg(rec.Allocation.Num)
	if !reg.Valid() {
		return Register{}, wamerrors.NewExceededMaxArity(reg.Num, wamerrors.Location{})
	}
	return reg, nil
}

// MarkNonCallable resolves the register for a type-test/inlined-goal
// argument without double counting it as a fresh occurrence when it is
// already Temp or an allocated Perm; ported from the mark_non_callable
// method visible on DebrayAllocator in codegen.rs.
func (d *DebrayAllocator) MarkNonCallable(varNum int, arg int, ctx GenContext) (Register, error) {
	binding := d.GetVarBinding(varNum)
	switch binding.Kind {
	case Temp:
		if binding.Num != 0 {
			return binding, nil
		}
	case Perm:
		if binding.Num != 0 {
			if ctx.IsLast {
				return d.MarkVar(varNum, ctx)
			}
			rec := d.VarData.recordFor(varNum)
			if rec.Allocation.Kind == AllocPermPending {
				return d.MarkVar(varNum, ctx)
			}
			d.IncrementRunningCount(varNum)
			return binding, nil
		}
	}
	return d.MarkVar(varNum, ctx)
}

// PermCount reports how many permanent slots have been assigned so far —
// the frame size an `allocate n` instruction should carry.
func (d *DebrayAllocator) PermCount() int { return d.permCount }

// NewChunk advances the chunk counter and resets per-chunk temp contents,
// mirroring the "after each chunk: increment chunk counter, reset temp
// contents" rule in spec.md §4.7.
func (d *DebrayAllocator) NewChunk() {
	d.chunkNum++
	d.freeTemp = d.freeTemp[:0]
}

func (d *DebrayAllocator) ChunkNum() int { return d.chunkNum }

// PushBranchFrame and PopBranchFrame manage the allocator-side twin of
// BranchCodeStack: a stack of BranchFrame hit-trackers, one per nesting
// depth of the current disjunction chain.
func (d *DebrayAllocator) PushBranchFrame(numArms int) *BranchFrame {
	bf := NewBranchFrame(numArms)
	d.BranchStack = append(d.BranchStack, bf)
	return bf
}

func (d *DebrayAllocator) PopBranchFrame() *BranchFrame {
	if len(d.BranchStack) == 0 {
		return nil
	}
	bf := d.BranchStack[len(d.BranchStack)-1]
	d.BranchStack = d.BranchStack[:len(d.BranchStack)-1]
	return bf
}

// PushMissingVars implements spec.md §4.5 step 1-2: for every variable
// tracked at this depth whose running count hasn't reached its total
// occurrence count, record which arms still need a `put_variable`
// placeholder (the caller emits the actual instructions — this method only
// computes which (varNum, armIdx) pairs need one), marks the variable
// fully safe, and reports which variables should propagate as a hit to the
// enclosing frame.
func (d *DebrayAllocator) PushMissingVars(depth int) (missing []MissingVar, propagate []int) {
	start := len(d.BranchStack) - depth
	if start < 0 {
		start = 0
	}
	seen := map[int]bool{}
	for idx := len(d.BranchStack) - 1; idx >= start; idx-- {
		frame := d.BranchStack[idx]
		varNums := maps.Keys(frame.Hits)
		slices.Sort(varNums)
		for _, varNum := range varNums {
			bits := frame.Hits[varNum]
			rec, ok := d.VarData.Records[varNum]
			if !ok || rec.RunningCount >= rec.NumOccurrences {
				continue
			}
			if !bits.All() {
				frame.DeepSafety[varNum] = true
				frame.ShallowSafety[varNum] = true
				for _, armIdx := range bits.ZeroIndices() {
					if armIdx+1 == bits.Len() && idx+1 != len(d.BranchStack) {
						continue
					}
					missing = append(missing, MissingVar{
						Depth: idx, Arm: armIdx, VarNum: varNum, Reg: rec.Allocation.AsRegType(),
					})
				}
			}
			if idx > start && !seen[varNum] {
				seen[varNum] = true
				propagate = append(propagate, varNum)
			}
		}
	}
	return missing, propagate
}

// MissingVar names one (depth, arm) slot that needs a put_variable
// placeholder inserted for varNum at the end of PushMissingVars.
type MissingVar struct {
	Depth  int
	Arm    int
	VarNum int
	Reg    Register
}
