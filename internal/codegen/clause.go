// This file implements top-level clause/predicate compilation (spec.md
// §4.6, §4.8): compile_fact, compile_rule, compile_query_line, and
// compile_predicate (splitting + indexing prelude).
package codegen

import (
	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/indexing"
	"wam/internal/instr"
	"wam/internal/register"
)

// CompileFact walks the head arguments with the get/unify family and
// appends proceed — §4.6's "Fact" rule.
func CompileFact(h *cell.Heap, atoms *atomtable.Table, headArgs []int, varNum VarNumOf) (instr.Code, error) {
	alloc := register.NewDebrayAllocator(register.NewVarData())
	w := &walker{h: h, atoms: atoms, alloc: alloc, varNum: varNum, tgt: factTarget, ctx: register.HeadContext()}
	code, err := w.compileArgs(headArgs)
	if err != nil {
		return nil, err
	}
	code = append(code, instr.Instruction{Op: instr.OpProceed})
	return code, nil
}

// CompileRule compiles the head (without proceed), then the body,
// prefixing `allocate n` once the body has determined how many permanent
// slots were needed — §4.6's "Rule" rule.
func CompileRule(h *cell.Heap, atoms *atomtable.Table, headArgs []int, body []ClauseItem, varNum VarNumOf) (instr.Code, error) {
	alloc := register.NewDebrayAllocator(register.NewVarData())
	classifyVars(h, alloc, varNum, headArgs, body)

	w := &walker{h: h, atoms: atoms, alloc: alloc, varNum: varNum, tgt: factTarget, ctx: register.HeadContext()}
	headCode, err := w.compileArgs(headArgs)
	if err != nil {
		return nil, err
	}

	bodyCode, err := CompileBody(h, atoms, alloc, varNum, body, true)
	if err != nil {
		return nil, err
	}

	var code instr.Code
	if alloc.PermCount() > 0 {
		code = append(code, instr.Instruction{Op: instr.OpAllocate, FrameSize: alloc.PermCount()})
	}
	code = append(code, headCode...)
	code = append(code, bodyCode...)
	return code, nil
}

// CompileQuery compiles a top-level query goal: put/set for the outer/
// nested cells, then the call instruction — §4.6's "Query" rule. No head,
// no proceed.
func CompileQuery(h *cell.Heap, atoms *atomtable.Table, predName string, predArity int, args []int, varNum VarNumOf) (instr.Code, error) {
	alloc := register.NewDebrayAllocator(register.NewVarData())
	w := &walker{h: h, atoms: atoms, alloc: alloc, varNum: varNum, tgt: queryTarget, ctx: register.HeadContext()}
	code, err := w.compileArgs(args)
	if err != nil {
		return nil, err
	}
	code = append(code, instr.Instruction{Op: instr.OpCall, PredName: predName, PredArity: predArity})
	return code, nil
}

// CompiledClause is one already-compiled clause plus the first-argument
// classification indexing needs.
type CompiledClause struct {
	Code   instr.Code
	ArgKey instr.ArgKey
}

// ArgKeyFromHead classifies the head's first argument for indexing
// purposes (§4.8): unbound variable, list cell, structure (name/arity), or
// a plain constant.
func ArgKeyFromHead(h *cell.Heap, firstArgIdx int) instr.ArgKey {
	idx := h.Deref(firstArgIdx)
	c := h.Get(idx)
	switch c.Tag {
	case cell.Var, cell.AttrVar:
		return instr.ArgKey{IsVar: true}
	case cell.Lis:
		return instr.ArgKey{IsList: true}
	case cell.Str:
		fc := h.Get(int(c.Value))
		return instr.ArgKey{IsStruct: true, Struct: instr.StructKey{AtomID: fc.AtomID, Arity: fc.Arity}}
	case cell.Atom:
		if c.Arity > 0 {
			return instr.ArgKey{IsStruct: true, Struct: instr.StructKey{AtomID: c.AtomID, Arity: c.Arity}}
		}
		return instr.ArgKey{Const: instr.ConstAtom(c.AtomID)}
	default:
		return instr.ArgKey{Const: constantFromCell(c)}
	}
}

// CompilePredicate splits clauses into maximal indexable runs, builds the
// indexing prelude for each, and wraps distinct runs with an outer
// external try_me_else/retry_me_else/trust_me chain — §4.8.
func CompilePredicate(name string, arity int, clauses []CompiledClause, dynamic, extensible bool) (instr.PredicateSkeleton, error) {
	keys := make([]instr.ArgKey, len(clauses))
	for i, c := range clauses {
		keys[i] = c.ArgKey
	}

	runs := indexing.Split(keys)

	// A predicate split into more than one indexing run needs an outer
	// choice chain so backtracking can cross run boundaries (§4.8): a
	// variable-headed run following an instantiated-headed one would
	// otherwise be unreachable on retry. ChoiceChain's instruction count
	// for N>=2 runs is always exactly N regardless of where those runs end
	// up, so a same-length placeholder can be reserved up front and
	// backfilled once every run's real entry offset is known.
	outerLen := 0
	if len(runs) > 1 {
		outerLen = len(runs)
	}

	code := make(instr.Code, outerLen)
	var entries []instr.ClauseEntry
	runStarts := make([]int, len(runs))

	for ri, run := range runs {
		runStart := len(code)
		runStarts[ri] = runStart

		var clauseCode instr.Code
		relStarts := make([]int, len(run))
		runKeys := make([]instr.ArgKey, len(run))
		for j, ci := range run {
			relStarts[j] = len(clauseCode)
			runKeys[j] = keys[ci]
			clauseCode = append(clauseCode, clauses[ci].Code...)
		}

		chain := indexing.ChoiceChain(relStarts, true, false)
		chainLen := len(chain)

		absStarts := make([]int, len(run))
		for j := range relStarts {
			absStarts[j] = runStart + 1 + chainLen + relStarts[j]
		}

		idxInstr := indexing.BuildSwitchOnTerm(runKeys, absStarts)

		code = append(code, idxInstr)
		code = append(code, chain...)
		code = append(code, clauseCode...)

		for j, ci := range run {
			entries = append(entries, instr.ClauseEntry{StartOffset: absStarts[j], ArgKey: keys[ci]})
		}
	}

	if outerLen > 0 {
		copy(code, indexing.ChoiceChain(runStarts, false, false))
	}

	return instr.PredicateSkeleton{
		Name: name, Arity: arity, Code: code, Clauses: entries,
		IsDynamic: dynamic, IsExtensible: extensible,
	}, nil
}
