package jit

import (
	"errors"

	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/mem"
)

// Errors reported in RunResult.Err. ErrUnhandledSVC and ErrBreakpoint are
// the interpreter's errors, so a host can test for them whichever engine
// ran the guest.
var (
	// ErrUnhandledSVC is reported when CallSVC returns false.
	ErrUnhandledSVC = emu.ErrUnhandledSVC

	// ErrBreakpoint is reported when a BKPT instruction is reached.
	ErrBreakpoint = emu.ErrBreakpoint

	// ErrHalted is reported when the host calls Halt with a nil error.
	ErrHalted = errors.New("halted by host")
)

// Callbacks is the host interface of the engine. Every guest memory
// access goes through it, as do supervisor calls and instructions the
// engine does not translate.
type Callbacks interface {
	mem.Memory

	// InterpreterFallback executes the single instruction at pc. It may
	// read and write the engine's registers and call Halt.
	InterpreterFallback(pc uint32, j *Jit)

	// CallSVC handles a supervisor call. It returns false if the call
	// was not handled.
	CallSVC(imm uint32) bool
}
