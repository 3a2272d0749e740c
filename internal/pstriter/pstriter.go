// Package pstriter implements the shared heap-traversal primitive described
// in spec.md §4.1: a cycle-safe walk over Prolog's hybrid list/partial-
// string representation, using Brent's algorithm so that both comparison
// and printing of cyclic terms are O(n) and always terminate. Grounded on
// _examples/original_source/src/machine/partial_string.rs (HeapPStrIter,
// the pre-/post-cycle steppers, PStrIteratee) — the Brent-state bookkeeping
// itself lived in that program's system_calls.rs, which was not part of the
// retrieved excerpt, so BrentState below is our own implementation of the
// algorithm spec.md §4.1 and the GLOSSARY name, not a line-for-line port.
package pstriter

import (
	"strings"
	"unicode/utf8"

	"wam/internal/atomtable"
	"wam/internal/cell"
)

// Iteratee is one step of the traversal: either a single decoded character
// or a reference to a run of characters backed by an interned atom.
type Iteratee interface {
	Focus() int
}

// CharItem is yielded when a step crosses a classic './2' cons cell or a
// one-character list element.
type CharItem struct {
	FocusIdx int
	Ch       rune
}

func (c CharItem) Focus() int { return c.FocusIdx }

// SegmentItem is yielded when a step lands on a PStr/CStr/PStrOffset cell;
// Offset lets the caller (or a later resumption) pick up mid-segment.
type SegmentItem struct {
	FocusIdx int
	Atom     atomtable.Atom
	Offset   int
}

func (c SegmentItem) Focus() int { return c.FocusIdx }

// BrentState implements Brent's cycle-detection algorithm: a tortoise/hare
// pair plus a power-of-two schedule (pow) and the current candidate cycle
// length (lam). Stepping costs O(1) amortized and the whole walk costs
// O(rho + lambda) — the tail length plus the cycle length.
type BrentState struct {
	hare, tortoise int
	pow, lam       int
	steps          int
}

func newBrentState(h int) BrentState {
	return BrentState{hare: h, tortoise: h, pow: 1, lam: 1}
}

// step advances the hare to next and reports whether a cycle was just
// detected (next revisits the tortoise's position).
func (b *BrentState) step(next int) bool {
	b.steps++
	if b.tortoise == next {
		return true
	}
	if b.pow == b.lam {
		b.tortoise = next
		b.pow *= 2
		b.lam = 0
	}
	b.lam++
	b.hare = next
	return false
}

func (b *BrentState) numSteps() int { return b.steps }

// Heap is the minimal surface pstriter needs; cell.Heap satisfies it.
type Heap interface {
	Get(i int) cell.Cell
}

// Iter walks a heap term as a sequence of character segments starting at a
// given index, stopping at a non-list tail, an unbound variable, or a
// detected cycle.
type Iter struct {
	heap       Heap
	atoms      *atomtable.Table
	emptyList  atomtable.Atom
	focus      cell.Cell
	origFocus  int
	brent      BrentState
	cycleFound bool

	pending      string
	pendingFocus int
	lastItem     Iteratee
}

// New starts an iterator at heap index h. emptyList must be the atom id for
// the "[]" atom so the iterator can recognize proper list/string endings.
func New(h Heap, atoms *atomtable.Table, emptyList atomtable.Atom, start int) *Iter {
	return &Iter{
		heap:      h,
		atoms:     atoms,
		emptyList: emptyList,
		focus:     h.Get(start),
		origFocus: start,
		brent:     newBrentState(start),
	}
}

// Focus returns the heap index the iterator currently sits on.
func (it *Iter) Focus() int { return it.brent.hare }

// NumSteps reports how many hare steps have been taken so far — used by
// tests to check the O(rho+lambda) bound (spec.md §8 invariant 6).
func (it *Iter) NumSteps() int { return it.brent.numSteps() }

// CycleDetected reports whether the iterator has switched to its
// post-cycle stepper.
func (it *Iter) CycleDetected() bool { return it.cycleFound }

func (it *Iter) isStringTerminator(c cell.Cell) bool {
	return c.Tag == cell.Atom && c.Arity == 0 && atomtable.Atom(c.AtomID) == it.emptyList
}

func (it *Iter) emptyListCell() cell.Cell {
	return cell.Cell{Tag: cell.Atom, AtomID: uint32(it.emptyList), Arity: 0}
}

func (it *Iter) atomText(id uint32) string { return it.atoms.Text(atomtable.Atom(id)) }

type stepResult struct {
	item     Iteratee
	nextHare int
	ok       bool
}

// step implements the dereference/traversal policy of §4.1: follow
// Lis/Str(./2)/PStr/PStrLoc/PStrOffset/CStr/Var links, yielding a Char or
// PStrSegment item, or failing when a non-list tail, an unbound variable,
// or a non-list atom is reached.
func (it *Iter) step(currHare int) stepResult {
	for {
		c := it.heap.Get(currHare)
		switch c.Tag {
		case cell.CStr:
			if it.isStringTerminator(it.focus) {
				return stepResult{}
			}
			return stepResult{SegmentItem{currHare, atomtable.Atom(c.AtomID), 0}, currHare, true}

		case cell.PStrLoc:
			currHare = int(c.Value)
			continue

		case cell.PStr:
			return stepResult{SegmentItem{currHare, atomtable.Atom(c.AtomID), 0}, currHare + 1, true}

		case cell.PStrOffset:
			if it.isStringTerminator(it.focus) {
				return stepResult{}
			}
			segCell := it.heap.Get(int(c.Value))
			offCell := it.heap.Get(currHare + 1)
			n := int(offCell.Value)
			item := SegmentItem{currHare, atomtable.Atom(segCell.AtomID), n}
			if segCell.Tag == cell.CStr {
				return stepResult{item, int(c.Value), true}
			}
			return stepResult{item, int(c.Value) + 1, true}

		case cell.Lis:
			h := int(c.Value)
			if ch, ok := cell.AsChar(it.heap.Get(h), it.atomText); ok {
				return stepResult{CharItem{currHare, ch}, h + 1, true}
			}
			return stepResult{}

		case cell.Str:
			s := int(c.Value)
			functor := it.heap.Get(s)
			if functor.Tag == cell.Atom && functor.Arity == 2 && it.atomText(functor.AtomID) == "." {
				if ch, ok := cell.AsChar(it.heap.Get(s+1), it.atomText); ok {
					return stepResult{CharItem{currHare, ch}, s + 2, true}
				}
			}
			return stepResult{}

		case cell.Atom:
			return stepResult{} // arity-0 atom other than "[]" ends the traversal

		case cell.AttrVar, cell.Var:
			h := int(c.Value)
			if h == currHare {
				return stepResult{} // unbound
			}
			currHare = h
			continue

		default:
			return stepResult{}
		}
	}
}

func (it *Iter) walkHareToCycleEnd() {
	origHare := it.brent.hare

	it.brent.hare = it.origFocus
	it.brent.tortoise = it.origFocus

	for i := 0; i < it.brent.lam; i++ {
		res := it.step(it.brent.hare)
		it.brent.hare = res.nextHare
	}

	for it.brent.hare != it.brent.tortoise {
		tRes := it.step(it.brent.tortoise)
		it.brent.tortoise = tRes.nextHare
		hRes := it.step(it.brent.hare)
		it.brent.hare = hRes.nextHare
	}

	it.focus = it.heap.Get(origHare)
	it.brent.hare = origHare
}

func (it *Iter) preCycleStep() (Iteratee, bool) {
	res := it.step(it.brent.hare)
	if !res.ok {
		return nil, false
	}

	focusIdx := res.item.Focus()
	it.focus = it.heap.Get(focusIdx)

	if it.isStringTerminator(it.focus) {
		it.focus = it.emptyListCell()
		it.brent.hare = focusIdx
		return res.item, true
	}

	if it.brent.step(res.nextHare) {
		it.walkHareToCycleEnd()
		it.cycleFound = true
	} else {
		it.focus = it.heap.Get(res.nextHare)
	}

	return res.item, true
}

func (it *Iter) postCycleStep() (Iteratee, bool) {
	if it.brent.hare == it.brent.tortoise {
		return nil, false
	}

	res := it.step(it.brent.hare)
	if !res.ok {
		return nil, false
	}

	it.focus = it.heap.Get(res.nextHare)
	it.brent.hare = res.nextHare
	return res.item, true
}

// Next produces the next Iteratee, or ok=false when the traversal is done
// (non-list tail, unbound variable, or cycle fully walked).
func (it *Iter) Next() (Iteratee, bool) {
	if it.cycleFound {
		return it.postCycleStep()
	}
	return it.preCycleStep()
}

// nextRune lazily decodes Next()'s items one rune at a time, buffering the
// remainder of a multi-rune segment for the following call.
func (it *Iter) nextRune() (rune, int, bool) {
	for it.pending == "" {
		item, ok := it.Next()
		if !ok {
			return 0, 0, false
		}
		it.lastItem = item
		switch v := item.(type) {
		case CharItem:
			return v.Ch, v.FocusIdx, true
		case SegmentItem:
			it.pending = it.atoms.Text(v.Atom)[v.Offset:]
			it.pendingFocus = v.FocusIdx
		}
	}
	r, size := utf8.DecodeRuneInString(it.pending)
	it.pending = it.pending[size:]
	return r, it.pendingFocus, true
}

// ToString materializes the full traversal as a Go string. Only meaningful
// for acyclic, var-free, proper partial strings; callers must not call this
// on a term known to be cyclic.
func (it *Iter) ToString() string {
	var sb strings.Builder
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		switch v := item.(type) {
		case CharItem:
			sb.WriteRune(v.Ch)
		case SegmentItem:
			sb.WriteString(it.atoms.Text(v.Atom)[v.Offset:])
		}
	}
	return sb.String()
}

// Continuable reports whether at least one more item could be produced
// without fully stepping the iterator — i.e. the focus is a proper list
// cons, a partial-string cell, or a list-of-chars cell. Ported from
// is_continuable in partial_string.rs (see SPEC_FULL.md's supplemented
// features).
func (it *Iter) Continuable() bool {
	focus := it.focus
	for {
		switch focus.Tag {
		case cell.CStr, cell.PStrLoc:
			return true
		case cell.Atom:
			return focus.Arity == 2 && it.atomText(focus.AtomID) == "."
		case cell.Lis:
			inner := it.heap.Get(int(focus.Value))
			if inner.Tag == cell.Atom {
				return inner.Arity == 0
			}
			_, isChar := cell.AsChar(inner, it.atomText)
			return isChar
		case cell.AttrVar, cell.Var:
			h := int(focus.Value)
			if int(focus.Value) == h && focusIsSelfRef(focus, h) {
				return false
			}
			focus = it.heap.Get(h)
		default:
			return false
		}
	}
}

func focusIsSelfRef(c cell.Cell, h int) bool { return int(c.Value) == h }

// PrefixCmpResult is the outcome of ComparePrefixes.
type PrefixCmpResult struct {
	Kind PrefixCmpKind
	Item Iteratee // set for FirstContinuable/SecondContinuable
}

type PrefixCmpKind int

const (
	Less PrefixCmpKind = iota
	Equal
	Greater
	FirstContinuable  // it1 produced an item it2 could not match against (it2 exhausted)
	SecondContinuable // symmetric case: it1 exhausted, it2 still has an item
	Unordered
)

// ComparePrefixes implements compare_pstr_prefixes (spec.md §4.1): advance
// both iterators in lockstep, rune by rune (a run of a PStrSegment is
// consumed incrementally so segment-length mismatches between the two
// sides never desync the comparison), stopping at the first differing
// rune. If one side runs dry first, report which side is still
// continuable. If both run dry at once, fall back to comparing the final
// focus cells.
func ComparePrefixes(it1, it2 *Iter) PrefixCmpResult {
	for {
		r1, _, ok1 := it1.nextRune()
		r2, _, ok2 := it2.nextRune()

		switch {
		case ok1 && ok2:
			switch {
			case r1 < r2:
				return PrefixCmpResult{Kind: Less}
			case r1 > r2:
				return PrefixCmpResult{Kind: Greater}
			}
			// equal rune: keep going
		case ok1 && !ok2:
			return PrefixCmpResult{Kind: FirstContinuable, Item: it1.lastItem}
		case !ok1 && ok2:
			return PrefixCmpResult{Kind: SecondContinuable, Item: it2.lastItem}
		default:
			return finalizeByFocus(it1, it2)
		}
	}
}

func finalizeByFocus(it1, it2 *Iter) PrefixCmpResult {
	f1, f2 := it1.focus, it2.focus
	if cellsEqual(f1, f2) {
		return PrefixCmpResult{Kind: Equal}
	}
	if it1.isStringTerminator(f1) {
		return PrefixCmpResult{Kind: Less}
	}
	if it2.isStringTerminator(f2) {
		return PrefixCmpResult{Kind: Greater}
	}
	return PrefixCmpResult{Kind: Unordered}
}

func cellsEqual(a, b cell.Cell) bool {
	return a.Tag == b.Tag && a.Value == b.Value && a.AtomID == b.AtomID &&
		a.Arity == b.Arity && a.Float == b.Float && a.Offset == b.Offset
}

// ComparePrefixString compares the iterator's remaining traversal against a
// plain Go string, rune by rune, stopping at the first mismatch. This is
// compare_pstr_to_string from partial_string.rs, supplemented into the Go
// core per SPEC_FULL.md: useful for hashing/indexing a prefix of a heap
// string against a constant without building an intermediate Iter for it.
func (it *Iter) ComparePrefixString(s string) (matchedLen int, ok bool) {
	for len(s) > 0 {
		r1, _, ok1 := it.nextRune()
		if !ok1 {
			return matchedLen, true // iterator exhausted within the string: valid prefix
		}
		r2, size := utf8.DecodeRuneInString(s)
		if r1 != r2 {
			return matchedLen, false
		}
		matchedLen += size
		s = s[size:]
	}
	return matchedLen, true
}
