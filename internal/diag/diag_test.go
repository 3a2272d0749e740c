package diag

import (
	"strings"
	"testing"

	"wam/internal/instr"
)

func TestDisassembleIncludesHeaderAndInstructions(t *testing.T) {
	code := instr.Code{
		{Op: instr.OpGetConstant, Const: instr.ConstAtom(1)},
		{Op: instr.OpProceed},
	}
	out := Disassemble("p/1", code)
	if !strings.Contains(out, "p/1") {
		t.Fatalf("expected header in output, got %q", out)
	}
	if !strings.Contains(out, "proceed") {
		t.Fatalf("expected proceed listed, got %q", out)
	}
}

func TestCompileSessionStringIncludesName(t *testing.T) {
	s := NewCompileSession("foo", 2)
	if !strings.HasPrefix(s.String(), "foo/2") {
		t.Fatalf("expected session string to start with foo/2, got %q", s.String())
	}
}

func TestDumpSkeletonRendersFields(t *testing.T) {
	skel := instr.PredicateSkeleton{Name: "foo", Arity: 2}
	out := DumpSkeleton(skel)
	if !strings.Contains(out, "foo") {
		t.Fatalf("expected predicate name in dump, got %q", out)
	}
}
