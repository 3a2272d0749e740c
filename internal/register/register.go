// Package register implements the Debray-style chunked register allocator
// of spec.md §4.4–§4.5: Temp/Perm register classification, allocation of
// variables across clause chunks, and variable-safety tracking across
// disjunction arms. The allocator's defining Rust source was not part of
// the retrieved excerpt, so this follows spec.md §4.4/§4.5's description
// directly rather than a ported implementation.
package register

import "fmt"

// MaxArity bounds every register number the core may emit (spec.md §4.4).
const MaxArity = 255

// Kind distinguishes a temporary (chunk-local) register from a permanent
// (frame-resident) one.
type Kind uint8

const (
	Temp Kind = iota
	Perm
)

func (k Kind) String() string {
	if k == Perm {
		return "Perm"
	}
	return "Temp"
}

// Register names one machine register slot.
type Register struct {
	Kind Kind
	Num  int // 1-based
}

func (r Register) String() string {
	return fmt.Sprintf("%s(%d)", r.Kind, r.Num)
}

// Valid reports whether the register number falls within [1, MaxArity].
func (r Register) Valid() bool {
	return r.Num >= 1 && r.Num <= MaxArity
}

// TempReg and PermReg are small constructors used throughout codegen/arith.
func TempReg(n int) Register { return Register{Kind: Temp, Num: n} }
func PermReg(n int) Register { return Register{Kind: Perm, Num: n} }
