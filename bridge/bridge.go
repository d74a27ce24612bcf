// Package bridge executes instructions the JIT does not translate by
// running them one at a time in the reference interpreter.
package bridge

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/jit"
	"github.com/sarchlab/armjit/mem"
)

// Fallback runs single instructions in an interpreter sharing the engine's
// memory.
type Fallback struct {
	interp *emu.Interpreter
	log    logr.Logger
}

// Option is a functional option for configuring the Fallback.
type Option func(*Fallback)

// WithLogger sets the logger. Interpreter errors are logged at V(1).
func WithLogger(log logr.Logger) Option {
	return func(f *Fallback) {
		f.log = log
	}
}

// New creates a fallback over memory. SVCs reaching the interpreter are
// passed to svc, which may be nil.
func New(memory mem.Memory, svc emu.SVCHandler, opts ...Option) *Fallback {
	f := &Fallback{log: logr.Discard()}
	for _, opt := range opts {
		opt(f)
	}
	f.interp = emu.NewInterpreter(memory, emu.WithSVCHandler(svc))
	return f
}

// Execute runs the instruction at pc with the engine's state and copies the
// resulting state back. An interpreter error halts the engine, and faults it
// when the instruction did not retire.
func (f *Fallback) Execute(pc uint32, j *jit.Jit) {
	regs := j.Regs()
	regs[cpu.PC] = pc
	f.interp.SetRegs(regs)
	f.interp.SetCpsr(j.Cpsr())

	// Guest code may have changed since the last fallback.
	f.interp.ClearCache()
	res := f.interp.Run(1)

	rf := f.interp.RegFile()
	rf.AlignPC()
	j.SetRegs(rf.Regs())
	j.SetCpsr(rf.Cpsr())

	if res.Err != nil {
		f.log.V(1).Info("interpreter fallback failed", "pc", pc, "error", res.Err.Error())
		if res.Executed == 0 {
			j.Fault(res.Err)
			return
		}
		j.Halt(res.Err)
	}
}

// Interpreter returns the underlying interpreter.
func (f *Fallback) Interpreter() *emu.Interpreter {
	return f.interp
}
