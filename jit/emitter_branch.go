package jit

import (
	"fmt"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/insts"
)

// branch compiles the PC-relative branches and both BL/BLX halves.
func (e *Emitter) branch(inst *insts.Instruction) op {
	addr := inst.Addr
	next := inst.Next()
	target := inst.Imm

	switch inst.Op {
	case insts.OpBLPrefix:
		return func(j *Jit) status {
			j.regs.R[cpu.LR] = target
			j.regs.R[cpu.PC] = next
			return statusNext
		}
	case insts.OpBL:
		if inst.Thumb {
			offset := inst.Imm
			return func(j *Jit) status {
				dest := j.regs.R[cpu.LR] + offset
				j.regs.R[cpu.LR] = (addr + 2) | 1
				j.regs.R[cpu.PC] = dest &^ 1
				return statusExit
			}
		}
		return func(j *Jit) status {
			j.regs.R[cpu.LR] = addr + 4
			j.regs.R[cpu.PC] = target
			return statusExit
		}
	case insts.OpBLXSuffix:
		offset := inst.Imm
		return func(j *Jit) status {
			dest := (j.regs.R[cpu.LR] + offset) &^ 3
			j.regs.R[cpu.LR] = (addr + 2) | 1
			j.regs.CPSR.T = false
			j.regs.R[cpu.PC] = dest
			return statusExit
		}
	case insts.OpBLXImm:
		return func(j *Jit) status {
			j.regs.R[cpu.LR] = addr + 4
			j.regs.CPSR.T = true
			j.regs.R[cpu.PC] = target
			return statusExit
		}
	}

	if inst.Thumb && inst.Cond != cpu.CondAL {
		cond := inst.Cond
		return func(j *Jit) status {
			if cond.Passed(&j.regs.CPSR) {
				j.regs.R[cpu.PC] = target
			} else {
				j.regs.R[cpu.PC] = next
			}
			return statusExit
		}
	}
	return func(j *Jit) status {
		j.regs.R[cpu.PC] = target
		return statusExit
	}
}

// branchExchange compiles BX and BLX (register).
func (e *Emitter) branchExchange(inst *insts.Instruction) op {
	rm := inst.Rm
	pc := inst.PCValue()
	link := inst.Op == insts.OpBLX
	lr := inst.Addr + 4
	if inst.Thumb {
		lr = (inst.Addr + 2) | 1
	}

	return func(j *Jit) status {
		target := j.reg(rm, pc)
		if link {
			j.regs.R[cpu.LR] = lr
		}
		j.writeLoaded(cpu.PC, target)
		return statusExit
	}
}

// supervisorCall compiles SVC. PC moves past the instruction before the
// host is called, and the engine always stops afterwards.
func (e *Emitter) supervisorCall(inst *insts.Instruction) op {
	addr := inst.Addr
	next := inst.Next()
	imm := inst.Imm

	return func(j *Jit) status {
		j.regs.R[cpu.PC] = next
		if !j.cb.CallSVC(imm) && j.haltErr == nil {
			j.haltErr = fmt.Errorf("%w #%d at PC=0x%08x", ErrUnhandledSVC, imm, addr)
		}
		return statusHalt
	}
}

// breakpoint compiles BKPT. It stops the engine with PC left at the
// breakpoint and does not retire.
func (e *Emitter) breakpoint(inst *insts.Instruction) op {
	addr := inst.Addr
	imm := inst.Imm

	return func(j *Jit) status {
		j.haltErr = fmt.Errorf("%w #%d at PC=0x%08x", ErrBreakpoint, imm, addr)
		return statusFault
	}
}
