package fuzz

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/xid"

	"github.com/sarchlab/armjit/insts"
)

// ANSI sequences used for highlighted reports.
const (
	highlightOn  = "\x1b[1;31m"
	highlightOff = "\x1b[0m"
)

// Divergence is a reproducible record of a run where the JIT and the
// interpreter disagreed.
type Divergence struct {
	ID   string
	Set  string
	Seed uint64
	Run  int

	Thumb       bool
	Code        []uint32
	Initial     [16]uint32
	InitialCpsr uint32

	Interp Outcome
	Jit    Outcome
}

func newDivergence(set *Set, seed uint64, run int, code []uint32,
	initial [16]uint32, cpsr uint32, interp, engine Outcome) *Divergence {
	return &Divergence{
		ID:          xid.New().String(),
		Set:         set.Name,
		Seed:        seed,
		Run:         run,
		Thumb:       set.Thumb,
		Code:        code,
		Initial:     initial,
		InitialCpsr: cpsr,
		Interp:      interp,
		Jit:         engine,
	}
}

// Diff returns a structural diff from the interpreter's outcome to the
// JIT's.
func (d *Divergence) Diff() string {
	return cmp.Diff(d.Interp, d.Jit, cmpOptions)
}

// Listing returns the disassembly of the generated code.
func (d *Divergence) Listing() []string {
	lines := make([]string, len(d.Code))
	for k, raw := range d.Code {
		if d.Thumb {
			addr := uint32(2 * k)
			lines[k] = fmt.Sprintf("%08x: %04x  %s", addr, raw, insts.DisassembleThumb(addr, uint16(raw)))
		} else {
			addr := uint32(4 * k)
			lines[k] = fmt.Sprintf("%08x: %08x  %s", addr, raw, insts.DisassembleARM(addr, raw))
		}
	}
	return lines
}

// Format writes the report. With highlight, differing lines are shown in
// bold red.
func (d *Divergence) Format(w io.Writer, highlight bool) {
	mark := func(differ bool, line string) string {
		if !differ {
			return line
		}
		line += " *"
		if highlight {
			line = highlightOn + line + highlightOff
		}
		return line
	}

	fmt.Fprintf(w, "Divergence %s: set %s, seed %d, run %d\n", d.ID, d.Set, d.Seed, d.Run)

	fmt.Fprintf(w, "\nInstruction Listing:\n")
	for _, line := range d.Listing() {
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nInitial Register Listing:\n")
	for k, v := range d.Initial {
		fmt.Fprintf(w, "%4d: %08x\n", k, v)
	}
	fmt.Fprintf(w, "CPSR: %08x\n", d.InitialCpsr)

	fmt.Fprintf(w, "\nFinal Register Listing (interpreter, jit):\n")
	for k := range d.Interp.Regs {
		a, b := d.Interp.Regs[k], d.Jit.Regs[k]
		fmt.Fprintln(w, mark(a != b, fmt.Sprintf("%4d: %08x %08x", k, a, b)))
	}
	fmt.Fprintln(w, mark(d.Interp.Cpsr != d.Jit.Cpsr,
		fmt.Sprintf("CPSR: %08x %08x", d.Interp.Cpsr, d.Jit.Cpsr)))
	fmt.Fprintf(w, "Executed: %d %d\n", d.Interp.Executed, d.Jit.Executed)
	if d.Interp.Err != "" || d.Jit.Err != "" {
		fmt.Fprintf(w, "Halt: %q %q\n", d.Interp.Err, d.Jit.Err)
	}

	fmt.Fprintf(w, "\nInterpreter Write Records:\n")
	writeRecords(w, d.Interp)
	fmt.Fprintf(w, "\nJIT Write Records:\n")
	writeRecords(w, d.Jit)

	if diff := d.Diff(); diff != "" {
		fmt.Fprintf(w, "\nDiff (-interpreter +jit):\n%s", diff)
	}
}

// String returns the unhighlighted report.
func (d *Divergence) String() string {
	var sb strings.Builder
	d.Format(&sb, false)
	return sb.String()
}

func writeRecords(w io.Writer, o Outcome) {
	if len(o.Writes) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, rec := range o.Writes {
		fmt.Fprintf(w, "  %s\n", rec)
	}
}
