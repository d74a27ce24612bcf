package host

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"

	"github.com/sarchlab/armjit/bridge"
	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/jit"
	"github.com/sarchlab/armjit/loader"
	"github.com/sarchlab/armjit/mem"
)

// DefaultSliceLength is the number of instructions per engine Run call.
const DefaultSliceLength = 100000

// Result summarizes a Machine run.
type Result struct {
	// Exited is true if the program called exit.
	Exited bool
	// ExitCode is the exit status if Exited is true.
	ExitCode int32
	// Executed is the number of guest instructions retired.
	Executed uint64
}

// Machine runs a loaded program on the JIT or on the interpreter alone.
// It serves the engine's callbacks from a paged guest memory.
type Machine struct {
	*mem.Paged

	engine   *jit.Jit
	fallback *bridge.Fallback
	interp   *emu.Interpreter
	regs     Registers

	syscalls    SyscallHandler
	log         logr.Logger
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	useInterp   bool
	sliceLength uint64
	jitOpts     []jit.Option

	exited   bool
	exitCode int32
}

// MachineOption is a functional option for configuring the Machine.
type MachineOption func(*Machine)

// WithInterpreter runs the program on the reference interpreter only.
func WithInterpreter() MachineOption {
	return func(m *Machine) {
		m.useInterp = true
	}
}

// WithLogger sets the logger used by the machine and the engine.
func WithLogger(log logr.Logger) MachineOption {
	return func(m *Machine) {
		m.log = log
	}
}

// WithStdin sets the guest's standard input.
func WithStdin(r io.Reader) MachineOption {
	return func(m *Machine) {
		m.stdin = r
	}
}

// WithOutput sets the guest's standard output and error streams.
func WithOutput(stdout, stderr io.Writer) MachineOption {
	return func(m *Machine) {
		m.stdout = stdout
		m.stderr = stderr
	}
}

// WithSyscallHandler replaces the default EABI syscall handler.
func WithSyscallHandler(handler SyscallHandler) MachineOption {
	return func(m *Machine) {
		m.syscalls = handler
	}
}

// WithSliceLength sets the number of instructions per engine Run call.
func WithSliceLength(n uint64) MachineOption {
	return func(m *Machine) {
		m.sliceLength = n
	}
}

// WithJitOptions passes options to the engine.
func WithJitOptions(opts ...jit.Option) MachineOption {
	return func(m *Machine) {
		m.jitOpts = append(m.jitOpts, opts...)
	}
}

// NewMachine loads prog into a fresh address space and prepares it to run
// from its entry point in user mode.
func NewMachine(prog *loader.Program, opts ...MachineOption) *Machine {
	m := &Machine{
		Paged:       mem.NewPaged(),
		log:         logr.Discard(),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		sliceLength: DefaultSliceLength,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sliceLength == 0 {
		m.sliceLength = DefaultSliceLength
	}

	brk := m.loadSegments(prog)
	if m.syscalls == nil {
		h := NewDefaultSyscallHandler(m.Paged, m.stdout, m.stderr)
		h.SetStdin(m.stdin)
		h.SetBreak(brk)
		h.SetCacheFlusher(m.flushCache)
		m.syscalls = h
	}

	var regs [16]uint32
	regs[cpu.SP] = prog.InitialSP
	regs[cpu.PC] = prog.EntryPoint
	cpsr := uint32(cpu.ModeUser)
	if prog.Thumb {
		cpsr |= 1 << cpu.BitT
	}

	if m.useInterp {
		m.interp = emu.NewInterpreter(m.Paged, emu.WithSVCHandler(m))
		m.regs = m.interp
	} else {
		// SVCs are compiled natively, so none reach the fallback interpreter.
		m.fallback = bridge.New(m.Paged, nil, bridge.WithLogger(m.log))
		base := []jit.Option{jit.WithLogger(m.log), jit.WithCompileHook(m.watchBlock)}
		m.engine = jit.New(m, append(base, m.jitOpts...)...)
		m.regs = m.engine
		m.Paged.OnWrite = func(addr, size uint32) {
			m.engine.InvalidateCacheRange(addr, addr+size)
		}
	}

	m.regs.SetRegs(regs)
	if m.interp != nil {
		m.interp.SetCpsr(cpsr)
	} else {
		m.engine.SetCpsr(cpsr)
	}

	return m
}

// loadSegments copies the program image and returns the initial program
// break. Whole pages of read-only executable segments are protected so the
// engine can fold literals and code writes reach InvalidateCacheRange.
func (m *Machine) loadSegments(prog *loader.Program) uint32 {
	var brk uint32
	for _, seg := range prog.Segments {
		m.Load(seg.VirtAddr, seg.Data)
		if seg.MemSize > uint32(len(seg.Data)) {
			m.Zero(seg.VirtAddr+uint32(len(seg.Data)), seg.MemSize-uint32(len(seg.Data)))
		}

		end := seg.VirtAddr + seg.MemSize
		if end > brk {
			brk = end
		}

		if seg.Flags&loader.SegmentFlagExecute != 0 && seg.Flags&loader.SegmentFlagWrite == 0 {
			first := (seg.VirtAddr + mem.PageSize - 1) &^ (mem.PageSize - 1)
			last := end &^ (mem.PageSize - 1)
			if last > first {
				m.Protect(first, last-first, true)
			}
		}
	}
	return (brk + mem.PageSize - 1) &^ (mem.PageSize - 1)
}

// watchBlock routes later writes to the code and literals of a new
// translation to the engine, whatever the protection of its pages.
func (m *Machine) watchBlock(b *jit.Block) {
	m.Watch(b.Start, b.Covers-b.Start)
}

// flushCache serves the cacheflush syscall.
func (m *Machine) flushCache(start, end uint32) {
	if m.engine != nil {
		m.engine.InvalidateCacheRange(start, end)
	}
}

// InterpreterFallback runs one untranslated instruction.
func (m *Machine) InterpreterFallback(pc uint32, j *jit.Jit) {
	m.fallback.Execute(pc, j)
}

// CallSVC serves SVC #0 as a Linux EABI syscall. Other immediates are
// unhandled.
func (m *Machine) CallSVC(imm uint32) bool {
	if imm != 0 {
		return false
	}

	m.log.V(2).Info("syscall", "number", m.regs.Regs()[7])
	res := m.syscalls.Handle(m.regs)
	if res.Exited {
		m.exited = true
		m.exitCode = res.ExitCode
	}
	return true
}

// Run executes the program until it exits, faults, or retires
// maxInstructions instructions. A zero maxInstructions means no limit.
func (m *Machine) Run(maxInstructions uint64) (Result, error) {
	var res Result
	for !m.exited {
		budget := m.sliceLength
		if maxInstructions > 0 {
			if res.Executed >= maxInstructions {
				break
			}
			budget = min(budget, maxInstructions-res.Executed)
		}

		executed, err := m.runSlice(budget)
		res.Executed += executed
		if err != nil {
			pc := m.regs.Regs()[cpu.PC]
			return res, fmt.Errorf("guest stopped at PC=0x%08x: %w", pc, err)
		}
	}

	res.Exited = m.exited
	res.ExitCode = m.exitCode
	return res, nil
}

func (m *Machine) runSlice(budget uint64) (uint64, error) {
	if m.interp != nil {
		r := m.interp.Run(budget)
		return r.Executed, r.Err
	}

	r := m.engine.Run(budget)
	if errors.Is(r.Err, jit.ErrHalted) {
		return r.Executed, nil
	}
	return r.Executed, r.Err
}

// Engine returns the JIT, or nil when running on the interpreter.
func (m *Machine) Engine() *jit.Jit {
	return m.engine
}

// Registers returns the register view of the running engine.
func (m *Machine) Registers() Registers {
	return m.regs
}

// Close releases host files opened by the guest.
func (m *Machine) Close() {
	if h, ok := m.syscalls.(*DefaultSyscallHandler); ok {
		h.FDTable().CloseAll()
	}
}
