package emu

import "github.com/sarchlab/armjit/cpu"

// decodeThumb returns the function executing a 16-bit Thumb encoding.
func (i *Interpreter) decodeThumb(opcode uint16) execFunc {
	w := uint32(opcode)

	switch {
	case w&0xF800 == 0x1800:
		return i.thumbAddSubtract(w)
	case w&0xE000 == 0x0000:
		return i.thumbMoveShiftedRegister(w)
	case w&0xE000 == 0x2000:
		return i.thumbMoveCompareAddSubtractImm(w)
	case w&0xFC00 == 0x4000:
		return i.thumbALUOperations(w)
	case w&0xFC00 == 0x4400:
		return i.thumbHiRegisterOps(w)
	case w&0xF800 == 0x4800:
		return i.thumbPCRelativeLoad(w)
	case w&0xF000 == 0x5000:
		return i.thumbLoadStoreRegisterOffset(w)
	case w&0xE000 == 0x6000:
		return i.thumbLoadStoreImmOffset(w)
	case w&0xF000 == 0x8000:
		return i.thumbLoadStoreHalfword(w)
	case w&0xF000 == 0x9000:
		return i.thumbSPRelativeLoadStore(w)
	case w&0xF000 == 0xA000:
		return i.thumbLoadAddress(w)
	case w&0xF000 == 0xB000:
		return i.thumbMiscellaneous(w)
	case w&0xF000 == 0xC000:
		return i.thumbMultipleLoadStore(w)
	case w&0xF000 == 0xD000:
		return i.thumbConditionalBranch(w)
	case w&0xF800 == 0xE000:
		return i.thumbUnconditionalBranch(w)
	default:
		return i.thumbLongBranchWithLink(w)
	}
}

func (i *Interpreter) thumbUndefined(w uint32) execFunc {
	return func(addr uint32) StepResult {
		return i.undefined(addr, w)
	}
}

// thumbMoveShiftedRegister: 000 | op(2) | imm5 | Rm | Rd.
func (i *Interpreter) thumbMoveShiftedRegister(w uint32) execFunc {
	typ := (w >> 11) & 0x3
	amount := (w >> 6) & 0x1F
	rm := (w >> 3) & 0x7
	rd := w & 0x7

	return func(addr uint32) StepResult {
		psr := &i.regFile.CPSR
		result, carry := shiftByImmediate(i.regFile.R[rm], typ, amount, psr.C)
		i.dataProcessing(opMOV, rd, true, 0, result, carry)
		return i.retire(addr + 2)
	}
}

// thumbAddSubtract: 00011 | I | op | Rm/imm3 | Rn | Rd.
func (i *Interpreter) thumbAddSubtract(w uint32) execFunc {
	immediate := w&0x0400 != 0
	opcode := uint32(opADD)
	if w&0x0200 != 0 {
		opcode = opSUB
	}
	field := (w >> 6) & 0x7
	rn := (w >> 3) & 0x7
	rd := w & 0x7

	return func(addr uint32) StepResult {
		operand := field
		if !immediate {
			operand = i.regFile.R[field]
		}
		i.dataProcessing(opcode, rd, true, i.regFile.R[rn], operand, i.regFile.CPSR.C)
		return i.retire(addr + 2)
	}
}

// thumbMoveCompareAddSubtractImm: 001 | op(2) | Rd | imm8.
func (i *Interpreter) thumbMoveCompareAddSubtractImm(w uint32) execFunc {
	opcode := [4]uint32{opMOV, opCMP, opADD, opSUB}[(w>>11)&0x3]
	rd := (w >> 8) & 0x7
	imm := w & 0xFF

	return func(addr uint32) StepResult {
		i.dataProcessing(opcode, rd, true, i.regFile.R[rd], imm, i.regFile.CPSR.C)
		return i.retire(addr + 2)
	}
}

// thumbALUOperations: 010000 | op(4) | Rm | Rd.
func (i *Interpreter) thumbALUOperations(w uint32) execFunc {
	op := (w >> 6) & 0xF
	rm := (w >> 3) & 0x7
	rd := w & 0x7

	var shift uint32
	switch op {
	case 0x2:
		shift = shiftLSL
	case 0x3:
		shift = shiftLSR
	case 0x4:
		shift = shiftASR
	case 0x7:
		shift = shiftROR
	}

	return func(addr uint32) StepResult {
		regs := &i.regFile.R
		carry := i.regFile.CPSR.C

		switch op {
		case 0x0:
			i.dataProcessing(opAND, rd, true, regs[rd], regs[rm], carry)
		case 0x1:
			i.dataProcessing(opEOR, rd, true, regs[rd], regs[rm], carry)
		case 0x2, 0x3, 0x4, 0x7:
			result, c := shiftByRegister(regs[rd], shift, regs[rm], carry)
			i.dataProcessing(opMOV, rd, true, 0, result, c)
		case 0x5:
			i.dataProcessing(opADC, rd, true, regs[rd], regs[rm], carry)
		case 0x6:
			i.dataProcessing(opSBC, rd, true, regs[rd], regs[rm], carry)
		case 0x8:
			i.dataProcessing(opTST, 0, true, regs[rd], regs[rm], carry)
		case 0x9:
			i.dataProcessing(opRSB, rd, true, regs[rm], 0, carry)
		case 0xA:
			i.dataProcessing(opCMP, 0, true, regs[rd], regs[rm], carry)
		case 0xB:
			i.dataProcessing(opCMN, 0, true, regs[rd], regs[rm], carry)
		case 0xC:
			i.dataProcessing(opORR, rd, true, regs[rd], regs[rm], carry)
		case 0xD:
			i.multiply(rd, true, regs[rm], regs[rd], 0)
		case 0xE:
			i.dataProcessing(opBIC, rd, true, regs[rd], regs[rm], carry)
		case 0xF:
			i.dataProcessing(opMVN, rd, true, 0, regs[rm], carry)
		}
		return i.retire(addr + 2)
	}
}

// thumbHiRegisterOps: 010001 | op(2) | H1 | H2 | Rm | Rd.
// Combinations the architecture leaves unpredictable execute with the
// general rules: PC reads as the instruction address plus 4, and a
// write to PC branches without changing state.
func (i *Interpreter) thumbHiRegisterOps(w uint32) execFunc {
	op := (w >> 8) & 0x3
	rd := (w>>4)&0x8 | w&0x7
	rm := (w >> 3) & 0xF

	return func(addr uint32) StepResult {
		pc := addr + 4
		value := i.readReg(rm, pc)

		switch op {
		case 0b00:
			if i.dataProcessing(opADD, rd, false, i.readReg(rd, pc), value, i.regFile.CPSR.C) {
				return StepResult{Retired: true}
			}
		case 0b01:
			i.dataProcessing(opCMP, 0, true, i.readReg(rd, pc), value, i.regFile.CPSR.C)
		case 0b10:
			if i.dataProcessing(opMOV, rd, false, 0, value, i.regFile.CPSR.C) {
				return StepResult{Retired: true}
			}
		case 0b11:
			if rd&0x8 != 0 {
				i.regFile.R[cpu.LR] = (addr + 2) | 1
			}
			i.branchExchange(value)
			return StepResult{Retired: true}
		}
		return i.retire(addr + 2)
	}
}

// thumbPCRelativeLoad: 01001 | Rd | imm8. The base is the word-aligned PC.
func (i *Interpreter) thumbPCRelativeLoad(w uint32) execFunc {
	rd := (w >> 8) & 0x7
	offset := (w & 0xFF) << 2

	return func(addr uint32) StepResult {
		base := (addr + 4) &^ 3
		i.regFile.R[rd] = i.loadData(base+offset, 4, false)
		return i.retire(addr + 2)
	}
}

// thumbLoadStoreRegisterOffset: 0101 | op(3) | Rm | Rn | Rd.
func (i *Interpreter) thumbLoadStoreRegisterOffset(w uint32) execFunc {
	op := (w >> 9) & 0x7
	rm := (w >> 6) & 0x7
	rn := (w >> 3) & 0x7
	rd := w & 0x7

	load := op >= 0b011
	width := [8]uint32{4, 2, 1, 1, 4, 2, 1, 2}[op]
	signed := op == 0b011 || op == 0b111

	return func(addr uint32) StepResult {
		i.singleTransfer(transfer{
			load: load, width: width, signed: signed,
			rd: rd, rn: rn, base: i.regFile.R[rn], offset: i.regFile.R[rm],
			preIndex: true, up: true,
		}, addr+4)
		return i.retire(addr + 2)
	}
}

// thumbLoadStoreImmOffset: 011 | B | L | imm5 | Rn | Rd.
func (i *Interpreter) thumbLoadStoreImmOffset(w uint32) execFunc {
	load := w&0x0800 != 0
	width := uint32(4)
	offset := ((w >> 6) & 0x1F) << 2
	if w&0x1000 != 0 {
		width = 1
		offset >>= 2
	}
	return i.thumbImmediateTransfer(load, width, (w>>3)&0x7, w&0x7, offset)
}

// thumbLoadStoreHalfword: 1000 | L | imm5 | Rn | Rd.
func (i *Interpreter) thumbLoadStoreHalfword(w uint32) execFunc {
	return i.thumbImmediateTransfer(w&0x0800 != 0, 2, (w>>3)&0x7, w&0x7, ((w>>6)&0x1F)<<1)
}

// thumbSPRelativeLoadStore: 1001 | L | Rd | imm8.
func (i *Interpreter) thumbSPRelativeLoadStore(w uint32) execFunc {
	return i.thumbImmediateTransfer(w&0x0800 != 0, 4, cpu.SP, (w>>8)&0x7, (w&0xFF)<<2)
}

func (i *Interpreter) thumbImmediateTransfer(load bool, width, rn, rd, offset uint32) execFunc {
	return func(addr uint32) StepResult {
		i.singleTransfer(transfer{
			load: load, width: width,
			rd: rd, rn: rn, base: i.regFile.R[rn], offset: offset,
			preIndex: true, up: true,
		}, addr+4)
		return i.retire(addr + 2)
	}
}

// thumbLoadAddress: 1010 | SP | Rd | imm8.
func (i *Interpreter) thumbLoadAddress(w uint32) execFunc {
	useSP := w&0x0800 != 0
	rd := (w >> 8) & 0x7
	offset := (w & 0xFF) << 2

	return func(addr uint32) StepResult {
		if useSP {
			i.regFile.R[rd] = i.regFile.R[cpu.SP] + offset
		} else {
			i.regFile.R[rd] = (addr+4)&^3 + offset
		}
		return i.retire(addr + 2)
	}
}

// thumbMiscellaneous decodes the 1011 group.
func (i *Interpreter) thumbMiscellaneous(w uint32) execFunc {
	switch {
	case w&0xFF00 == 0xB000:
		return i.thumbAdjustStackPointer(w)
	case w&0xFF00 == 0xB200:
		return i.thumbExtend(w)
	case w&0xF600 == 0xB400:
		return i.thumbPushPop(w)
	case w&0xFF00 == 0xBA00 && (w>>6)&0x3 != 0b10:
		return i.thumbReverseBytes(w)
	case w&0xFFE8 == 0xB660:
		disable := w&0x10 != 0
		flags := w & 0x7
		return func(addr uint32) StepResult {
			i.changeProcessorState(disable, flags&0x4 != 0, flags&0x2 != 0, flags&0x1 != 0)
			return i.retire(addr + 2)
		}
	case w&0xFFF7 == 0xB650:
		bigEndian := w&0x8 != 0
		return func(addr uint32) StepResult {
			i.regFile.CPSR.E = bigEndian
			return i.retire(addr + 2)
		}
	case w&0xFF00 == 0xBE00:
		imm := w & 0xFF
		return func(addr uint32) StepResult {
			return i.breakpoint(addr, imm)
		}
	}
	return i.thumbUndefined(w)
}

// thumbAdjustStackPointer: 10110000 | S | imm7.
func (i *Interpreter) thumbAdjustStackPointer(w uint32) execFunc {
	offset := (w & 0x7F) << 2
	if w&0x80 != 0 {
		offset = -offset
	}
	return func(addr uint32) StepResult {
		i.regFile.R[cpu.SP] += offset
		return i.retire(addr + 2)
	}
}

// thumbExtend: 10110010 | op(2) | Rm | Rd.
func (i *Interpreter) thumbExtend(w uint32) execFunc {
	op := (w >> 6) & 0x3
	rm := (w >> 3) & 0x7
	rd := w & 0x7

	return func(addr uint32) StepResult {
		v := i.regFile.R[rm]
		switch op {
		case 0b00:
			v = signExtend(v&0xFFFF, 16)
		case 0b01:
			v = signExtend(v&0xFF, 8)
		case 0b10:
			v &= 0xFFFF
		case 0b11:
			v &= 0xFF
		}
		i.regFile.R[rd] = v
		return i.retire(addr + 2)
	}
}

// thumbReverseBytes: 10111010 | op(2) | Rm | Rd.
func (i *Interpreter) thumbReverseBytes(w uint32) execFunc {
	op := (w >> 6) & 0x3
	rm := (w >> 3) & 0x7
	rd := w & 0x7

	return func(addr uint32) StepResult {
		v := i.regFile.R[rm]
		switch op {
		case 0b00:
			v = swap32(v)
		case 0b01:
			v = uint32(swap16(uint16(v>>16)))<<16 | uint32(swap16(uint16(v)))
		case 0b11:
			v = signExtend(uint32(swap16(uint16(v))), 16)
		}
		i.regFile.R[rd] = v
		return i.retire(addr + 2)
	}
}

// thumbPushPop: 1011 | L | 10 | R | list(8). PUSH stores LR when R is set,
// POP loads PC.
func (i *Interpreter) thumbPushPop(w uint32) execFunc {
	pop := w&0x0800 != 0
	list := uint16(w & 0xFF)
	if w&0x0100 != 0 {
		if pop {
			list |= 1 << cpu.PC
		} else {
			list |= 1 << cpu.LR
		}
	}

	return func(addr uint32) StepResult {
		var branched bool
		if pop {
			branched = i.blockTransfer(true, cpu.SP, list, false, true, true, addr+4)
		} else {
			branched = i.blockTransfer(false, cpu.SP, list, true, false, true, addr+4)
		}
		if branched {
			return StepResult{Retired: true}
		}
		return i.retire(addr + 2)
	}
}

// thumbMultipleLoadStore: 1100 | L | Rn | list(8). LDMIA does not write
// back when the base is in the list.
func (i *Interpreter) thumbMultipleLoadStore(w uint32) execFunc {
	load := w&0x0800 != 0
	rn := (w >> 8) & 0x7
	list := uint16(w & 0xFF)
	writeBack := !load || list&(1<<rn) == 0

	return func(addr uint32) StepResult {
		i.blockTransfer(load, rn, list, false, true, writeBack, addr+4)
		return i.retire(addr + 2)
	}
}

// thumbConditionalBranch: 1101 | cond | imm8. Condition 1110 is undefined
// and 1111 is SVC.
func (i *Interpreter) thumbConditionalBranch(w uint32) execFunc {
	cond := cpu.Cond((w >> 8) & 0xF)
	imm := w & 0xFF

	switch cond {
	case cpu.CondAL:
		return i.thumbUndefined(w)
	case cpu.CondNV:
		return func(addr uint32) StepResult {
			return i.supervisorCall(addr, addr+2, imm)
		}
	}

	offset := signExtend(imm<<1, 9)
	return func(addr uint32) StepResult {
		if !cond.Passed(&i.regFile.CPSR) {
			return i.retire(addr + 2)
		}
		return i.retire(addr + 4 + offset)
	}
}

// thumbUnconditionalBranch: 11100 | imm11.
func (i *Interpreter) thumbUnconditionalBranch(w uint32) execFunc {
	offset := signExtend((w&0x7FF)<<1, 12)
	return func(addr uint32) StepResult {
		return i.retire(addr + 4 + offset)
	}
}

// thumbLongBranchWithLink executes one half of a BL or BLX pair: 111 | H(2) |
// imm11. The prefix stages the upper offset in LR, the suffix branches.
func (i *Interpreter) thumbLongBranchWithLink(w uint32) execFunc {
	imm := w & 0x7FF

	switch (w >> 11) & 0x3 {
	case 0b10:
		offset := signExtend(imm<<12, 23)
		return func(addr uint32) StepResult {
			i.regFile.R[cpu.LR] = addr + 4 + offset
			return i.retire(addr + 2)
		}
	case 0b11:
		return func(addr uint32) StepResult {
			target := i.regFile.R[cpu.LR] + imm<<1
			i.regFile.R[cpu.LR] = (addr + 2) | 1
			return i.retire(target &^ 1)
		}
	default:
		if imm&1 != 0 {
			return i.thumbUndefined(w)
		}
		return func(addr uint32) StepResult {
			target := (i.regFile.R[cpu.LR] + imm<<1) &^ 3
			i.regFile.R[cpu.LR] = (addr + 2) | 1
			i.regFile.CPSR.T = false
			return i.retire(target)
		}
	}
}
