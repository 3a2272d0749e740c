// Command wamc is the ambient CLI surface for the compilation core: it has
// no files/env/flags of its own at the core layer (spec.md §6), so this
// binary owns that ambient concern instead. The teacher's own cmd/sentra/
// main.go dispatches subcommands through a sequential if/switch chain; the
// name->function map here is this binary's own simplification of that
// idea, sized to the handful of subcommands a compiler core exposes.
package main

import (
	"flag"
	"fmt"
	"os"

	"wam/internal/atomtable"
	"wam/internal/cell"
	"wam/internal/codegen"
	"wam/internal/diag"
)

type subcommand func(args []string) int

var subcommands = map[string]subcommand{
	"compile":  cmdCompile,
	"disasm":   cmdDisasm,
	"selftest": cmdSelftest,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	cmd, ok := subcommands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "wamc: unknown subcommand %q\n", args[0])
		usage()
		return 2
	}
	return cmd(args[1:])
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wamc <compile|disasm|selftest> [args]")
}

// cmdCompile compiles a built-in fixture (the fact "p(1, X)." by default,
// or the rule "q(X) :- r(X)." with -fixture rule) and prints its
// disassembly, headed by the instruction count; a real front end would instead read a parsed
// heap fixture from testdata (spec.md's Non-goals exclude parsing source
// text at this layer, so there is no source-file flag here).
func cmdCompile(args []string) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	name := fs.String("fixture", "fact", "built-in fixture to compile: fact|rule")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	h := cell.New()
	atoms := atomtable.New()

	switch *name {
	case "fact":
		oneIdx := h.Push(cell.Cell{Tag: cell.Fixnum, Value: 1})
		varIdx := h.PushVar()
		c, err := codegen.CompileFact(h, atoms, []int{oneIdx, varIdx}, func(i int) int { return i })
		if err != nil {
			fmt.Fprintln(os.Stderr, "compile error:", err)
			return 1
		}
		fmt.Println(diag.Disassemble("p/2", c))
		return 0

	case "rule":
		headVar := h.PushVar()
		arg1 := h.PushVar()
		varNum := func(i int) int {
			if i == arg1 {
				return headVar
			}
			return i
		}
		body := []codegen.ClauseItem{{Kind: codegen.ItemChunk, Goals: []codegen.Goal{
			{Kind: codegen.GoalCall, PredName: "r", PredArity: 1, Args: []int{arg1}},
		}}}
		c, err := codegen.CompileRule(h, atoms, []int{headVar}, body, varNum)
		if err != nil {
			fmt.Fprintln(os.Stderr, "compile error:", err)
			return 1
		}
		fmt.Println(diag.Disassemble("q/1", c))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "wamc compile: unknown fixture %q\n", *name)
		return 2
	}
}

// cmdDisasm reads nothing (no wire/file format at this layer) and exists
// as the symmetric counterpart to compile for scripted CLI tests: it
// recompiles the same fixture and prints its disassembly.
func cmdDisasm(args []string) int {
	return cmdCompile(args)
}

// cmdSelftest compiles the fact fixture "p(1, X)." with compile_fact,
// checks that it yields 3 instructions, and reports pass/fail. The rule
// and predicate compilers are not exercised here.
func cmdSelftest(args []string) int {
	h := cell.New()
	atoms := atomtable.New()

	oneIdx := h.Push(cell.Cell{Tag: cell.Fixnum, Value: 1})
	varIdx := h.PushVar()
	factCode, err := codegen.CompileFact(h, atoms, []int{oneIdx, varIdx}, func(i int) int { return i })
	if err != nil {
		fmt.Fprintln(os.Stderr, "selftest: compile_fact failed:", err)
		return 1
	}
	if len(factCode) != 3 {
		fmt.Fprintf(os.Stderr, "selftest: expected 3 instructions for p(1,X), got %d\n", len(factCode))
		return 1
	}

	fmt.Println("selftest: OK")
	return 0
}
