// Package indexing builds the first-argument dispatch tables of spec.md
// §4.8: predicate splitting into maximal shared-key runs, and the
// SwitchOnTerm/SwitchOnConstant/SwitchOnStructure instructions that route
// a runtime call to the right clause(s) without trying every clause in
// order. Grounded on spec.md §4.8's prose and the switch_on_term/
// switch_on_constant/switch_on_structure call shape referenced in
// _examples/original_source/src/codegen.rs; the defining indexing source
// file was not part of the retrieved excerpt.
package indexing

import "wam/internal/instr"

// Split partitions a predicate's clauses into maximal runs that can share
// one indexing table: a run of clauses all keyed by a concrete (non-var)
// first argument, or a run of clauses whose first argument is an unbound
// variable (which matches everything and so cannot be narrowed by
// indexing — it forces its own try/retry/trust chain, per §4.8's
// "distinct runs get wrapped by an outer chain").
func Split(keys []instr.ArgKey) [][]int {
	var runs [][]int
	var cur []int
	curIsVar := false

	for i, k := range keys {
		if len(cur) == 0 {
			cur = append(cur, i)
			curIsVar = k.IsVar
			continue
		}
		if k.IsVar == curIsVar {
			cur = append(cur, i)
			continue
		}
		runs = append(runs, cur)
		cur = []int{i}
		curIsVar = k.IsVar
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// BuildSwitchOnTerm constructs the switch_on_term instruction for one run:
// it branches on the runtime argument's cell tag to the first entry of the
// matching sub-table. clauseStarts holds the Code offset each clause in
// the run begins at (CompilePredicate passes offsets within the whole
// predicate's Code); keys holds the same-indexed first-argument
// classification.
//
// When the run has more than one distinct constant (or structure
// name/arity), the constant (structure) branch is set to -1 and ConstTable
// (StructTable) maps each distinct key to a start offset; a single
// distinct key is stored as a direct offset instead. Every key, in a table
// or direct, records only the first clause carrying it: later clauses
// with the same key get no entry and no try/retry/trust chain.
func BuildSwitchOnTerm(keys []instr.ArgKey, clauseStarts []int) instr.Instruction {
	var varOffset int
	constOffsets := map[string][]int{}
	var constOrder []string
	structOffsets := map[instr.StructKey][]int{}
	var structOrder []instr.StructKey
	var listOffset int

	for i, k := range keys {
		off := clauseStarts[i]
		switch {
		case k.IsVar:
			if varOffset == 0 {
				varOffset = off
			}
		case k.IsList:
			if listOffset == 0 {
				listOffset = off
			}
		case k.IsStruct:
			if _, ok := structOffsets[k.Struct]; !ok {
				structOrder = append(structOrder, k.Struct)
			}
			structOffsets[k.Struct] = append(structOffsets[k.Struct], off)
		default:
			ck := k.Const.Key()
			if _, ok := constOffsets[ck]; !ok {
				constOrder = append(constOrder, ck)
			}
			constOffsets[ck] = append(constOffsets[ck], off)
		}
	}

	top := instr.Instruction{Op: instr.OpSwitchOnTerm, SwitchVar: varOffset, SwitchList: listOffset}

	if len(constOrder) == 1 {
		top.SwitchConst = constOffsets[constOrder[0]][0]
	} else if len(constOrder) > 1 {
		table := map[string]int{}
		for _, k := range constOrder {
			table[k] = constOffsets[k][0]
		}
		top.ConstTable = table
		top.SwitchConst = -1 // sentinel: resolve via ConstTable, not a direct offset
	}

	if len(structOrder) == 1 {
		top.SwitchStruct = structOffsets[structOrder[0]][0]
	} else if len(structOrder) > 1 {
		table := map[instr.StructKey]int{}
		for _, k := range structOrder {
			table[k] = structOffsets[k][0]
		}
		top.StructTable = table
		top.SwitchStruct = -1
	}

	return top
}

// ChoiceChain wraps a run of ≥2 clause start offsets with a try_me_else/
// retry_me_else/trust_me chain: the internal variants (not counted for
// inference metering, per §4.8) when internal is true, and
// default_retry_me_else/default_trust_me after the leading try_me_else
// otherwise. A lone clause needs no choice instruction unless
// forceExtensible requests a patchable try_me_else 0 stub for later
// assertz/asserta.
func ChoiceChain(starts []int, internal, forceExtensible bool) instr.Code {
	if len(starts) == 1 && !forceExtensible {
		return nil
	}

	retryOp, trustOp := instr.OpRetryMeElse, instr.OpTrustMe
	if !internal {
		retryOp, trustOp = instr.OpDefaultRetryMeElse, instr.OpDefaultTrustMe
	}

	if len(starts) == 1 {
		return instr.Code{{Op: instr.OpTryMeElse, Choice: instr.ChoiceTarget{Offset: 0, IsExtensible: true}}}
	}

	code := make(instr.Code, 0, len(starts))
	code = append(code, instr.Instruction{Op: instr.OpTryMeElse, Choice: instr.ChoiceTarget{Offset: starts[1] - starts[0]}})
	for i := 1; i < len(starts)-1; i++ {
		code = append(code, instr.Instruction{Op: retryOp, Choice: instr.ChoiceTarget{Offset: starts[i+1] - starts[i]}})
	}
	code = append(code, instr.Instruction{Op: trustOp})
	return code
}
