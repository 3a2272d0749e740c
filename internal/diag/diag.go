// Package diag renders compiled code and allocator state for debugging: a
// disassembly view of an instr.Code vector, and a per-predicate compile
// session identifier a caller (the REPL / assert-retract subsystem, out of
// scope here) can correlate with the PredicateSkeleton it produced.
// Grounded on the teacher repo's debugging/reporting conventions
// (structured dumps via kr/pretty, indented multi-block text via kr/text,
// human-readable counts via dustin/go-humanize) rather than any
// Prolog-specific source — the original implementation's own disassembler
// was not part of the retrieved excerpt.
package diag

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/kr/pretty"
	"github.com/kr/text"

	"wam/internal/instr"
)

// CompileSession identifies one compile_predicate call so a caller can
// correlate a PredicateSkeleton with the compilation that produced it.
type CompileSession struct {
	ID   uuid.UUID
	Name string
}

// NewCompileSession starts a session for compiling predicate name/arity.
func NewCompileSession(name string, arity int) CompileSession {
	return CompileSession{ID: uuid.New(), Name: fmt.Sprintf("%s/%d", name, arity)}
}

func (s CompileSession) String() string {
	return fmt.Sprintf("%s [%s]", s.Name, s.ID)
}

// Disassemble renders a Code vector as one line per instruction, prefixed
// with its program counter, indented under a clause header.
func Disassemble(header string, code instr.Code) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s instructions)\n", header, humanize.Comma(int64(len(code))))

	var body strings.Builder
	for pc, in := range code {
		fmt.Fprintf(&body, "%4d: %s\n", pc, formatInstruction(in))
	}
	b.WriteString(text.Indent(body.String(), "  "))
	return b.String()
}

func formatInstruction(in instr.Instruction) string {
	switch in.Op {
	case instr.OpGetConstant, instr.OpPutConstant, instr.OpUnifyConstant, instr.OpSetConstant:
		return fmt.Sprintf("%s %s, %s", in.Op, in.Reg, in.Const.Key())
	case instr.OpGetStructure, instr.OpPutStructure:
		return fmt.Sprintf("%s %s, %d/%d", in.Op, in.Reg, in.Atom, in.Arity)
	case instr.OpCall, instr.OpExecute:
		return fmt.Sprintf("%s %s/%d", in.Op, in.PredName, in.PredArity)
	case instr.OpTryMeElse, instr.OpRetryMeElse, instr.OpJmpByCall:
		return fmt.Sprintf("%s %d", in.Op, in.Choice.Offset)
	case instr.OpAllocate:
		return fmt.Sprintf("%s %d", in.Op, in.FrameSize)
	case instr.OpIs:
		return fmt.Sprintf("%s %s, <expr>", in.Op, in.Reg)
	case instr.OpSwitchOnTerm:
		return fmt.Sprintf("%s var=%d const=%d list=%d struct=%d", in.Op, in.SwitchVar, in.SwitchConst, in.SwitchList, in.SwitchStruct)
	default:
		return in.Op.String()
	}
}

// DumpSkeleton renders a PredicateSkeleton's full struct shape for
// debugging (clause offsets, flags) using kr/pretty's %#v-style dumper.
func DumpSkeleton(skel instr.PredicateSkeleton) string {
	return pretty.Sprint(skel)
}
