package jit

import (
	"math/bits"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/insts"
)

// loadFunc reads a value of a fixed width and endianness.
type loadFunc func(j *Jit, addr uint32) uint32

// storeFunc writes a value of a fixed width and endianness.
type storeFunc func(j *Jit, addr, value uint32)

// loader returns the load function for width bytes in mode. Halfwords and
// words are byte-swapped in big-endian mode; bytes never are.
func loader(width uint8, signed bool, mode cpu.Mode) loadFunc {
	be := mode.BigEndian

	switch {
	case width == 1 && signed:
		return func(j *Jit, addr uint32) uint32 { return uint32(int32(int8(j.cb.Read8(addr)))) }
	case width == 1:
		return func(j *Jit, addr uint32) uint32 { return uint32(j.cb.Read8(addr)) }
	case width == 2 && be:
		if signed {
			return func(j *Jit, addr uint32) uint32 {
				return uint32(int32(int16(bits.ReverseBytes16(j.cb.Read16(addr)))))
			}
		}
		return func(j *Jit, addr uint32) uint32 { return uint32(bits.ReverseBytes16(j.cb.Read16(addr))) }
	case width == 2:
		if signed {
			return func(j *Jit, addr uint32) uint32 { return uint32(int32(int16(j.cb.Read16(addr)))) }
		}
		return func(j *Jit, addr uint32) uint32 { return uint32(j.cb.Read16(addr)) }
	case be:
		return func(j *Jit, addr uint32) uint32 { return bits.ReverseBytes32(j.cb.Read32(addr)) }
	default:
		return func(j *Jit, addr uint32) uint32 { return j.cb.Read32(addr) }
	}
}

// storer returns the store function for width bytes in mode.
func storer(width uint8, mode cpu.Mode) storeFunc {
	be := mode.BigEndian

	switch {
	case width == 1:
		return func(j *Jit, addr, value uint32) { j.cb.Write8(addr, uint8(value)) }
	case width == 2 && be:
		return func(j *Jit, addr, value uint32) { j.cb.Write16(addr, bits.ReverseBytes16(uint16(value))) }
	case width == 2:
		return func(j *Jit, addr, value uint32) { j.cb.Write16(addr, uint16(value)) }
	case be:
		return func(j *Jit, addr, value uint32) { j.cb.Write32(addr, bits.ReverseBytes32(value)) }
	default:
		return func(j *Jit, addr, value uint32) { j.cb.Write32(addr, value) }
	}
}

// writeLoaded writes a loaded value. A load to PC interworks on bit 0 and
// leaves the block.
func (j *Jit) writeLoaded(rd uint8, value uint32) bool {
	if rd != cpu.PC {
		j.regs.R[rd] = value
		return false
	}
	thumb := value&1 != 0
	j.regs.CPSR.T = thumb
	j.regs.R[cpu.PC] = cpu.AlignPC(value, thumb)
	return true
}

// literalAddress returns the address of a PC-relative load with an
// immediate offset, if inst is one.
func literalAddress(inst *insts.Instruction) (uint32, bool) {
	if inst.Op != insts.OpLDR || inst.Rn != cpu.PC || !inst.PreIndex || inst.WriteBack ||
		inst.Operand.Kind != insts.OperandImm {
		return 0, false
	}
	base := inst.PCValue()
	if inst.Literal {
		base &^= 3
	}
	if inst.Up {
		return base + inst.Operand.Imm, true
	}
	return base - inst.Operand.Imm, true
}

// foldLiteral reads a PC-relative load at compile time when every byte it
// touches is read-only and lies at or after the block start. The block's
// range grows to cover the literal.
func (e *Emitter) foldLiteral(inst *insts.Instruction, mode cpu.Mode) (uint32, bool) {
	addr, ok := literalAddress(inst)
	end := addr + uint32(inst.Width)
	if !ok || addr < e.start || end < addr {
		return 0, false
	}
	for k := uint32(0); k < uint32(inst.Width); k++ {
		if !e.cb.IsReadOnlyMemory(addr + k) {
			return 0, false
		}
	}

	var value uint32
	switch inst.Width {
	case 1:
		value = uint32(e.cb.Read8(addr))
		if inst.Signed {
			value = uint32(int32(int8(value)))
		}
	case 2:
		h := e.cb.Read16(addr)
		if mode.BigEndian {
			h = bits.ReverseBytes16(h)
		}
		value = uint32(h)
		if inst.Signed {
			value = uint32(int32(int16(h)))
		}
	default:
		value = e.cb.Read32(addr)
		if mode.BigEndian {
			value = bits.ReverseBytes32(value)
		}
	}

	e.covers = max(e.covers, end)
	return value, true
}

// singleTransfer compiles byte, halfword and word LDR/STR. Addresses are used
// unaligned. A store reads its data before writeback; a load writes the
// base back first so that the loaded value wins.
func (e *Emitter) singleTransfer(inst *insts.Instruction, mode cpu.Mode) op {
	rd, rn := inst.Rd, inst.Rn
	next := inst.Next()
	pc := inst.PCValue()

	if value, ok := e.foldLiteral(inst, mode); ok {
		return func(j *Jit) status {
			if j.writeLoaded(rd, value) {
				return statusExit
			}
			j.regs.R[cpu.PC] = next
			return statusNext
		}
	}

	base := func(j *Jit) uint32 { return j.reg(rn, pc) }
	if inst.Literal {
		aligned := pc &^ 3
		base = func(*Jit) uint32 { return aligned }
	}

	var offset func(j *Jit) uint32
	if inst.Operand.Kind == insts.OperandImm {
		imm := inst.Operand.Imm
		offset = func(*Jit) uint32 { return imm }
	} else {
		operand := e.operand(inst)
		offset = func(j *Jit) uint32 {
			v, _ := operand(j)
			return v
		}
	}

	up, pre := inst.Up, inst.PreIndex
	writeBack := inst.WriteBack || !inst.PreIndex
	address := func(j *Jit) (addr, offsetAddr uint32) {
		b := base(j)
		offsetAddr = b - offset(j)
		if up {
			offsetAddr = b + offset(j)
		}
		if pre {
			return offsetAddr, offsetAddr
		}
		return b, offsetAddr
	}

	if inst.Op == insts.OpSTR {
		store := storer(inst.Width, mode)
		return func(j *Jit) status {
			addr, offsetAddr := address(j)
			store(j, addr, j.reg(rd, pc))
			if writeBack {
				j.regs.R[rn] = offsetAddr
			}
			j.regs.R[cpu.PC] = next
			return statusNext
		}
	}

	load := loader(inst.Width, inst.Signed, mode)
	return func(j *Jit) status {
		addr, offsetAddr := address(j)
		value := load(j, addr)
		if writeBack {
			j.regs.R[rn] = offsetAddr
		}
		if j.writeLoaded(rd, value) {
			return statusExit
		}
		j.regs.R[cpu.PC] = next
		return statusNext
	}
}

// blockTransfer compiles LDM/STM, PUSH and POP. Registers are transferred
// in ascending order to consecutive words starting at the lowest address
// rounded down to a word boundary; the written-back base is the unaligned
// base plus or minus four bytes per register.
func (e *Emitter) blockTransfer(inst *insts.Instruction, mode cpu.Mode) op {
	rn := inst.Rn
	next := inst.Next()
	pc := inst.PCValue()
	up, pre, writeBack := inst.Up, inst.PreIndex, inst.WriteBack

	var regs []uint8
	for r := uint8(0); r < 16; r++ {
		if inst.RegList&(1<<r) != 0 {
			regs = append(regs, r)
		}
	}
	size := 4 * uint32(len(regs))

	lowest := func(base uint32) uint32 {
		switch {
		case up && pre:
			return base + 4
		case up:
			return base
		case pre:
			return base - size
		default:
			return base - size + 4
		}
	}
	newBase := func(base uint32) uint32 {
		if up {
			return base + size
		}
		return base - size
	}

	if inst.Op == insts.OpSTM {
		store := storer(4, mode)
		var values [16]uint32
		return func(j *Jit) status {
			base := j.reg(rn, pc)
			for k, r := range regs {
				values[k] = j.reg(r, pc)
			}
			addr := lowest(base) &^ 3
			for k := range regs {
				store(j, addr, values[k])
				addr += 4
			}
			if writeBack {
				j.regs.R[rn] = newBase(base)
			}
			j.regs.R[cpu.PC] = next
			return statusNext
		}
	}

	load := loader(4, false, mode)
	return func(j *Jit) status {
		base := j.reg(rn, pc)
		addr := lowest(base) &^ 3
		if writeBack {
			j.regs.R[rn] = newBase(base)
		}
		branched := false
		for _, r := range regs {
			branched = j.writeLoaded(r, load(j, addr)) || branched
			addr += 4
		}
		if branched {
			return statusExit
		}
		j.regs.R[cpu.PC] = next
		return statusNext
	}
}
