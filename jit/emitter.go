package jit

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/insts"
)

// DefaultMaxBlockLength is the default maximum number of guest
// instructions per block.
const DefaultMaxBlockLength = 64

// topOfMemory is the End of a block that runs to the end of the address
// space.
const topOfMemory uint32 = 0xFFFFFFFF

// Emitter translates guest code into blocks of compiled instructions.
type Emitter struct {
	cb      Callbacks
	decoder *insts.Decoder
	maxLen  int
	log     logr.Logger

	// Range of the block being compiled, including folded literals.
	start, covers uint32
}

// NewEmitter creates an emitter that fetches code through cb.
func NewEmitter(cb Callbacks, maxLen int, log logr.Logger) *Emitter {
	if maxLen < 1 {
		maxLen = 1
	}
	return &Emitter{
		cb:      cb,
		decoder: insts.NewDecoder(),
		maxLen:  maxLen,
		log:     log,
	}
}

// Compile translates the guest code starting at pc in the given mode. The
// block ends after the first instruction that may write PC, change state,
// run in the interpreter or halt, or when it reaches the maximum length.
func (e *Emitter) Compile(pc uint32, mode cpu.Mode) *Block {
	block := &Block{Start: pc, Mode: mode, Exit: ExitFallThrough}
	e.start, e.covers = pc, pc

	addr := pc
	for len(block.ops) < e.maxLen {
		inst := e.fetch(addr, mode)
		o, exit, terminal := e.lower(inst, mode)

		block.ops = append(block.ops, o)
		block.insts = append(block.insts, inst)
		addr = inst.Next()

		if terminal {
			block.Exit = exit
			break
		}
		if addr < inst.Addr {
			// Wrapped past the top of the address space.
			break
		}
	}
	if addr < pc {
		addr = topOfMemory
	}
	block.End = addr
	block.Covers = max(addr, e.covers)

	e.log.V(1).Info("compiled block",
		"start", hex(block.Start), "end", hex(block.End),
		"mode", mode.String(), "instructions", len(block.ops), "exit", block.Exit.String())

	return block
}

// fetch decodes the instruction at addr. Instruction fetch ignores the E
// bit.
func (e *Emitter) fetch(addr uint32, mode cpu.Mode) *insts.Instruction {
	if mode.Thumb {
		return e.decoder.DecodeThumb(addr, e.cb.Read16(addr))
	}
	return e.decoder.DecodeARM(addr, e.cb.Read32(addr))
}

// lower compiles one instruction. terminal reports whether the block must
// end after it.
func (e *Emitter) lower(inst *insts.Instruction, mode cpu.Mode) (o op, exit ExitKind, terminal bool) {
	if !e.emittable(inst) {
		return e.fallback(inst), ExitFallback, true
	}

	switch inst.Op {
	case insts.OpSVC:
		return e.conditional(inst, e.supervisorCall(inst)), ExitSVC, true
	case insts.OpBKPT:
		return e.breakpoint(inst), ExitHalt, true
	}

	switch inst.Format {
	case insts.FormatDataProc:
		o = e.dataProcessing(inst, mode)
	case insts.FormatMultiply:
		o = e.multiply(inst)
	case insts.FormatExtend:
		o = e.extend(inst)
	case insts.FormatLoadStore:
		o = e.singleTransfer(inst, mode)
	case insts.FormatMultiple:
		o = e.blockTransfer(inst, mode)
	case insts.FormatBranch:
		o = e.branch(inst)
	case insts.FormatBranchReg:
		o = e.branchExchange(inst)
	}

	o = e.conditional(inst, o)
	if inst.WritesPC() || inst.ChangesMode() {
		return o, ExitBranch, true
	}
	return o, ExitFallThrough, false
}

// emittable reports whether inst has a compiled form. Unknown and
// unpredictable encodings always run in the interpreter, which defines
// their behavior.
func (e *Emitter) emittable(inst *insts.Instruction) bool {
	if !inst.Supported() || inst.Unpredictable {
		return false
	}

	switch inst.Op {
	case insts.OpCPS, insts.OpSETEND, insts.OpUDF, insts.OpMRS, insts.OpMSR:
		return false
	}
	if inst.Thumb {
		return true
	}

	switch inst.Format {
	case insts.FormatDataProc, insts.FormatBranch, insts.FormatBranchReg:
		return true
	case insts.FormatLoadStore:
		return (inst.Op == insts.OpLDR || inst.Op == insts.OpSTR) &&
			(inst.Width == 4 || inst.Width == 1) && !inst.Signed
	case insts.FormatSystem:
		return inst.Op == insts.OpSVC || inst.Op == insts.OpBKPT
	}
	return false
}

// conditional wraps an ARM instruction with its condition check. A failed
// condition retires the instruction without effects.
func (e *Emitter) conditional(inst *insts.Instruction, body op) op {
	if inst.Thumb || inst.Cond == cpu.CondAL || inst.Cond == cpu.CondNV {
		return body
	}

	cond := inst.Cond
	next := inst.Next()
	return func(j *Jit) status {
		if !cond.Passed(&j.regs.CPSR) {
			j.regs.R[cpu.PC] = next
			return statusNext
		}
		return body(j)
	}
}

// fallback hands the instruction to the host's interpreter.
func (e *Emitter) fallback(inst *insts.Instruction) op {
	addr := inst.Addr
	return func(j *Jit) status {
		j.stats.Fallbacks++
		j.log.V(2).Info("interpreter fallback", "pc", hex(addr))

		j.cb.InterpreterFallback(addr, j)
		if j.faulted {
			return statusFault
		}
		j.regs.AlignPC()
		if j.haltErr != nil {
			return statusHalt
		}
		return statusExit
	}
}

// reg returns the value of register r, with PC reading as pc.
func (j *Jit) reg(r uint8, pc uint32) uint32 {
	if r == cpu.PC {
		return pc
	}
	return j.regs.R[r]
}
