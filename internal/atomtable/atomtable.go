// Package atomtable implements the process-wide symbol interner described
// in spec.md §3: a mapping from UTF-8 strings to compact atom ids, used for
// predicate/functor names and as the backing store for partial-string and
// complete-string heap cells.
package atomtable

import "sync"

// Atom is a compact, comparable handle to an interned string.
type Atom uint32

// NilAtom is never produced by Intern; callers use it as a zero value.
const NilAtom Atom = 0

// Table is a concurrent-safe string interner. The compiler itself is
// single-threaded (spec.md §5), but the table may be shared with the reader
// and the eventual VM, so every write goes through BuildWith under a lock.
type Table struct {
	mu      sync.RWMutex
	byText  map[string]Atom
	byAtom  []string // index 0 unused, so len(byAtom)-1 == last id
}

// New returns an empty table. Atom 0 is reserved (NilAtom) so a zero Atom
// value is recognizably "no atom" rather than aliasing a real entry.
func New() *Table {
	return &Table{
		byText: make(map[string]Atom),
		byAtom: []string{""},
	}
}

// BuildWith interns text, returning its existing id if already present.
// Atoms are immutable once interned: the returned id is stable for the
// lifetime of the table.
func (t *Table) BuildWith(text string) Atom {
	t.mu.RLock()
	if id, ok := t.byText[text]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byText[text]; ok {
		return id
	}
	id := Atom(len(t.byAtom))
	t.byAtom = append(t.byAtom, text)
	t.byText[text] = id
	return id
}

// Text returns the interned string for id, or "" if id is unknown.
func (t *Table) Text(id Atom) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(t.byAtom) {
		return ""
	}
	return t.byAtom[id]
}

// Lookup returns the id for text without interning it.
func (t *Table) Lookup(text string) (Atom, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byText[text]
	return id, ok
}

// Len reports the number of interned atoms (excluding NilAtom).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAtom) - 1
}
