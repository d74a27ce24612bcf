// Package emu provides a step-by-step reference interpreter for ARM and
// Thumb code. It is the oracle the JIT is validated against and the engine
// behind the JIT's interpreter fallback.
package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/mem"
)

// Errors reported when execution cannot continue.
var (
	// ErrUndefined is reported for encodings with no defined behavior.
	ErrUndefined = errors.New("undefined instruction")

	// ErrUnhandledSVC is reported when the SVC handler rejects a call.
	ErrUnhandledSVC = errors.New("unhandled supervisor call")

	// ErrBreakpoint is reported when a BKPT instruction is reached.
	ErrBreakpoint = errors.New("breakpoint")
)

// SVCHandler handles supervisor calls. CallSVC returns false if the call
// was not handled.
type SVCHandler interface {
	CallSVC(imm uint32) bool
}

// rejectSVC is the default handler: every call is unhandled.
type rejectSVC struct{}

func (rejectSVC) CallSVC(uint32) bool { return false }

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Retired is true if the instruction completed (including a failed
	// condition check).
	Retired bool

	// Halted is true if execution must stop after this step: an SVC was
	// executed, or an error occurred.
	Halted bool

	// Err is set if the instruction could not be executed.
	Err error
}

// RunResult summarizes a Run call.
type RunResult struct {
	// Executed is the number of retired instructions.
	Executed uint64

	// Halted is true if Run stopped before exhausting its budget.
	Halted bool

	// Err is the error that halted execution, if any.
	Err error
}

// execFunc executes a decoded instruction located at addr.
type execFunc func(addr uint32) StepResult

// Interpreter executes ARM and Thumb instructions one at a time.
type Interpreter struct {
	regFile *cpu.RegFile
	memory  mem.Memory
	svc     SVCHandler
	cache   *decodeCache

	instructionCount uint64
}

// InterpreterOption is a functional option for configuring the Interpreter.
type InterpreterOption func(*Interpreter)

// WithSVCHandler sets the supervisor call handler.
func WithSVCHandler(handler SVCHandler) InterpreterOption {
	return func(i *Interpreter) {
		i.svc = handler
	}
}

// WithRegFile makes the interpreter operate on an existing register file.
func WithRegFile(regFile *cpu.RegFile) InterpreterOption {
	return func(i *Interpreter) {
		i.regFile = regFile
	}
}

// NewInterpreter creates an interpreter over the given memory.
// It panics if memory is nil.
func NewInterpreter(memory mem.Memory, opts ...InterpreterOption) *Interpreter {
	if memory == nil {
		panic("emu: nil memory")
	}

	i := &Interpreter{
		regFile: &cpu.RegFile{},
		memory:  memory,
		svc:     rejectSVC{},
		cache:   newDecodeCache(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.svc == nil {
		i.svc = rejectSVC{}
	}

	return i
}

// RegFile returns the interpreter's register file.
func (i *Interpreter) RegFile() *cpu.RegFile {
	return i.regFile
}

// Regs returns a copy of R0-R15.
func (i *Interpreter) Regs() [16]uint32 {
	return i.regFile.Regs()
}

// SetRegs replaces R0-R15.
func (i *Interpreter) SetRegs(regs [16]uint32) {
	i.regFile.SetRegs(regs)
}

// Cpsr returns the status word.
func (i *Interpreter) Cpsr() uint32 {
	return i.regFile.Cpsr()
}

// SetCpsr replaces the status word.
func (i *Interpreter) SetCpsr(word uint32) {
	i.regFile.SetCpsr(word)
}

// InstructionCount returns the number of instructions retired so far.
func (i *Interpreter) InstructionCount() uint64 {
	return i.instructionCount
}

// ClearCache discards every cached decode. It must be called whenever
// guest code may have changed.
func (i *Interpreter) ClearCache() {
	i.cache.clear()
}

// Step executes a single instruction at the current PC.
func (i *Interpreter) Step() StepResult {
	addr := i.regFile.R[cpu.PC]
	thumb := i.regFile.CPSR.T

	var raw uint32
	if thumb {
		raw = uint32(i.memory.Read16(addr))
	} else {
		raw = i.memory.Read32(addr)
	}

	exec := i.cache.lookup(raw, thumb)
	if exec == nil {
		if thumb {
			exec = i.decodeThumb(uint16(raw))
		} else {
			exec = i.decodeARM(raw)
		}
		i.cache.store(raw, thumb, exec)
	}

	result := exec(addr)
	if result.Retired {
		i.instructionCount++
	}
	return result
}

// Run executes up to n instructions, stopping early on an SVC or an error.
func (i *Interpreter) Run(n uint64) RunResult {
	var res RunResult
	for res.Executed < n {
		step := i.Step()
		if step.Retired {
			res.Executed++
		}
		if step.Halted {
			res.Halted = true
			res.Err = step.Err
			break
		}
	}
	return res
}

// retire advances PC to next and reports a completed instruction.
func (i *Interpreter) retire(next uint32) StepResult {
	i.regFile.R[cpu.PC] = next
	return StepResult{Retired: true}
}

func (i *Interpreter) undefined(addr uint32, raw uint32) StepResult {
	return StepResult{
		Halted: true,
		Err:    fmt.Errorf("%w 0x%08x at PC=0x%08x", ErrUndefined, raw, addr),
	}
}

func (i *Interpreter) breakpoint(addr, imm uint32) StepResult {
	return StepResult{
		Halted: true,
		Err:    fmt.Errorf("%w #%d at PC=0x%08x", ErrBreakpoint, imm, addr),
	}
}

// supervisorCall performs an SVC whose next instruction is at next.
func (i *Interpreter) supervisorCall(addr, next, imm uint32) StepResult {
	i.regFile.R[cpu.PC] = next
	result := StepResult{Retired: true, Halted: true}
	if !i.svc.CallSVC(imm) {
		result.Err = fmt.Errorf("%w #%d at PC=0x%08x", ErrUnhandledSVC, imm, addr)
	}
	return result
}
