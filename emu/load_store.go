package emu

import "github.com/sarchlab/armjit/cpu"

// loadData reads width bytes at addr, byte-swapping halfwords and words when
// the E bit selects big-endian data.
func (i *Interpreter) loadData(addr uint32, width uint32, signed bool) uint32 {
	bigEndian := i.regFile.CPSR.E

	switch width {
	case 1:
		v := uint32(i.memory.Read8(addr))
		if signed {
			v = signExtend(v, 8)
		}
		return v
	case 2:
		h := i.memory.Read16(addr)
		if bigEndian {
			h = swap16(h)
		}
		v := uint32(h)
		if signed {
			v = signExtend(v, 16)
		}
		return v
	default:
		v := i.memory.Read32(addr)
		if bigEndian {
			v = swap32(v)
		}
		return v
	}
}

// storeData writes the low width bytes of value at addr.
func (i *Interpreter) storeData(addr uint32, width uint32, value uint32) {
	bigEndian := i.regFile.CPSR.E

	switch width {
	case 1:
		i.memory.Write8(addr, uint8(value))
	case 2:
		h := uint16(value)
		if bigEndian {
			h = swap16(h)
		}
		i.memory.Write16(addr, h)
	default:
		if bigEndian {
			value = swap32(value)
		}
		i.memory.Write32(addr, value)
	}
}

// loadPair reads two consecutive words with a single 64-bit access.
func (i *Interpreter) loadPair(addr uint32) (lo, hi uint32) {
	v := i.memory.Read64(addr)
	lo, hi = uint32(v), uint32(v>>32)
	if i.regFile.CPSR.E {
		lo, hi = swap32(lo), swap32(hi)
	}
	return lo, hi
}

// storePair writes two consecutive words with a single 64-bit access.
func (i *Interpreter) storePair(addr uint32, lo, hi uint32) {
	if i.regFile.CPSR.E {
		lo, hi = swap32(lo), swap32(hi)
	}
	i.memory.Write64(addr, uint64(hi)<<32|uint64(lo))
}

// writeLoaded writes a value produced by a load. A load to PC interworks:
// bit 0 selects Thumb state.
func (i *Interpreter) writeLoaded(rd, value uint32) bool {
	if rd != cpu.PC {
		i.regFile.R[rd] = value
		return false
	}
	i.branchExchange(value)
	return true
}

// writeBase writes back a base register. Writing back to PC behaves like a
// data-processing write to PC.
func (i *Interpreter) writeBase(rn, value uint32) bool {
	if rn != cpu.PC {
		i.regFile.R[rn] = value
		return false
	}
	i.regFile.R[cpu.PC] = cpu.AlignPC(value, i.regFile.CPSR.T)
	return true
}

// branchExchange jumps to target, selecting Thumb state from bit 0.
func (i *Interpreter) branchExchange(target uint32) {
	thumb := target&1 != 0
	i.regFile.CPSR.T = thumb
	i.regFile.R[cpu.PC] = cpu.AlignPC(target, thumb)
}

// transfer describes a single load or store.
type transfer struct {
	load     bool
	width    uint32 // 1, 2, 4 or 8 bytes
	signed   bool
	rd, rn   uint32
	base     uint32 // value of the base register
	offset   uint32
	preIndex bool
	up       bool
	// writeBack is true when the base is updated, including every
	// post-indexed form.
	writeBack bool
}

// singleTransfer performs a single load or store and reports whether PC
// was written. Addresses are used unaligned. A store reads its data before
// writeback; a load writes back first so that the loaded value wins.
func (i *Interpreter) singleTransfer(t transfer, pcValue uint32) bool {
	offsetAddr := t.base - t.offset
	if t.up {
		offsetAddr = t.base + t.offset
	}
	addr := t.base
	if t.preIndex {
		addr = offsetAddr
	}

	branched := false
	if !t.load {
		value := i.readReg(t.rd, pcValue)
		if t.width == 8 {
			i.storePair(addr, value, i.readReg(t.rd+1, pcValue))
		} else {
			i.storeData(addr, t.width, value)
		}
		if t.writeBack {
			branched = i.writeBase(t.rn, offsetAddr)
		}
		return branched
	}

	var lo, hi uint32
	if t.width == 8 {
		lo, hi = i.loadPair(addr)
	} else {
		lo = i.loadData(addr, t.width, t.signed)
	}
	if t.writeBack {
		branched = i.writeBase(t.rn, offsetAddr)
	}
	if t.width == 8 {
		branched = i.writeLoaded(t.rd, lo) || branched
		branched = i.writeLoaded(t.rd+1, hi) || branched
	} else {
		branched = i.writeLoaded(t.rd, lo) || branched
	}
	return branched
}

// blockTransfer performs LDM or STM and reports whether PC was written.
//
// Registers are transferred in ascending order to consecutive words
// starting at the lowest address rounded down to a word boundary. The
// written-back base is the unaligned base plus or minus four bytes per
// register. An empty list transfers nothing and does not write back.
func (i *Interpreter) blockTransfer(load bool, rn uint32, list uint16,
	preIndex, up, writeBack bool, pcValue uint32) bool {
	count := uint32(0)
	for r := list; r != 0; r &= r - 1 {
		count++
	}
	if count == 0 {
		return false
	}

	base := i.readReg(rn, pcValue)
	var lowest, newBase uint32
	if up {
		lowest = base
		if preIndex {
			lowest += 4
		}
		newBase = base + 4*count
	} else {
		lowest = base - 4*count
		if !preIndex {
			lowest += 4
		}
		newBase = base - 4*count
	}
	addr := lowest &^ 3

	if !load {
		var values [16]uint32
		for r := uint32(0); r < 16; r++ {
			if list&(1<<r) != 0 {
				values[r] = i.readReg(r, pcValue)
			}
		}
		for r := uint32(0); r < 16; r++ {
			if list&(1<<r) != 0 {
				i.storeData(addr, 4, values[r])
				addr += 4
			}
		}
		if writeBack {
			return i.writeBase(rn, newBase)
		}
		return false
	}

	branched := false
	if writeBack {
		branched = i.writeBase(rn, newBase)
	}
	for r := uint32(0); r < 16; r++ {
		if list&(1<<r) != 0 {
			branched = i.writeLoaded(r, i.loadData(addr, 4, false)) || branched
			addr += 4
		}
	}
	return branched
}

// readReg reads a register operand, with PC reading as pcValue.
func (i *Interpreter) readReg(r, pcValue uint32) uint32 {
	if r == cpu.PC {
		return pcValue
	}
	return i.regFile.R[r]
}
