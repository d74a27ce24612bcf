package emu

import "github.com/sarchlab/armjit/cpu"

// decodeARM returns the function executing a 32-bit ARM encoding. Every
// conditional encoding, defined or not, is a no-op when its condition
// fails.
func (i *Interpreter) decodeARM(w uint32) execFunc {
	cond := cpu.Cond(w >> 28)
	if cond == cpu.CondNV {
		return i.armUnconditional(w)
	}

	var body execFunc
	switch (w >> 25) & 0x7 { // bits [27:25]
	case 0b000:
		body = i.armGroup0(w)
	case 0b001:
		body = i.armGroup1(w)
	case 0b010:
		body = i.armSingleDataTransfer(w)
	case 0b011:
		if w&0x10 == 0 {
			body = i.armSingleDataTransfer(w)
		}
	case 0b100:
		if w&0x00400000 == 0 {
			body = i.armBlockDataTransfer(w)
		}
	case 0b101:
		body = i.armBranch(w)
	case 0b111:
		if w&0x01000000 != 0 {
			imm := w & 0xFFFFFF
			body = func(addr uint32) StepResult {
				return i.supervisorCall(addr, addr+4, imm)
			}
		}
	}
	if body == nil {
		body = i.armUndefined(w)
	}

	if cond == cpu.CondAL {
		return body
	}
	return func(addr uint32) StepResult {
		if !cond.Passed(&i.regFile.CPSR) {
			return i.retire(addr + 4)
		}
		return body(addr)
	}
}

func (i *Interpreter) armUndefined(w uint32) execFunc {
	return func(addr uint32) StepResult {
		return i.undefined(addr, w)
	}
}

// armFinish retires an instruction that may have written PC.
func (i *Interpreter) armFinish(addr uint32, branched bool) StepResult {
	if branched {
		return StepResult{Retired: true}
	}
	return i.retire(addr + 4)
}

// armUnconditional decodes the cond == 1111 space: BLX (immediate) and
// SETEND.
func (i *Interpreter) armUnconditional(w uint32) execFunc {
	switch {
	case (w>>25)&0x7 == 0b101:
		offset := signExtend((w&0xFFFFFF)<<2, 26) + (w>>24)&0x1<<1
		return func(addr uint32) StepResult {
			i.regFile.R[cpu.LR] = addr + 4
			i.regFile.CPSR.T = true
			return i.retire(addr + 8 + offset)
		}
	case w&0xFFFFFDFF == 0xF1010000:
		bigEndian := w&0x200 != 0
		return func(addr uint32) StepResult {
			i.regFile.CPSR.E = bigEndian
			return i.retire(addr + 4)
		}
	}
	return i.armUndefined(w)
}

// armGroup0 decodes bits [27:25] == 000.
func (i *Interpreter) armGroup0(w uint32) execFunc {
	op := (w >> 21) & 0xF
	s := w&0x00100000 != 0

	switch {
	case w&0x0FFFFFD0 == 0x012FFF10:
		return i.armBranchExchange(w)
	case w&0x0FF000F0 == 0x01200070:
		imm := (w>>4)&0xFFF0 | w&0xF
		return func(addr uint32) StepResult {
			return i.breakpoint(addr, imm)
		}
	case w&0x0FC000F0 == 0x00000090:
		return i.armMultiply(w)
	case w&0x90 == 0x90:
		if w&0x60 == 0 {
			return nil
		}
		return i.armExtraLoadStore(w)
	case w&0x0FBF0FFF == 0x010F0000:
		if w&0x00400000 != 0 {
			return nil
		}
		rd := (w >> 12) & 0xF
		return func(addr uint32) StepResult {
			value := i.regFile.Cpsr()
			if rd == cpu.PC {
				i.regFile.R[cpu.PC] = value &^ 3
				return StepResult{Retired: true}
			}
			i.regFile.R[rd] = value
			return i.retire(addr + 4)
		}
	case w&0x0FB0FFF0 == 0x0120F000:
		if w&0x00400000 != 0 {
			return nil
		}
		fields := (w >> 16) & 0xF
		rm := w & 0xF
		return func(addr uint32) StepResult {
			i.moveToStatus(fields, i.readReg(rm, addr+8))
			return i.retire(addr + 4)
		}
	case op&0xC == 0x8 && !s:
		return nil
	}

	return i.armDataProcessing(w)
}

// armGroup1 decodes bits [27:25] == 001: data processing with a rotated
// immediate and MSR (immediate).
func (i *Interpreter) armGroup1(w uint32) execFunc {
	op := (w >> 21) & 0xF
	s := w&0x00100000 != 0

	if op&0xC == 0x8 && !s {
		fields := (w >> 16) & 0xF
		if w&0x0FB0F000 != 0x0320F000 || w&0x00400000 != 0 || fields == 0 {
			return nil
		}
		value, _ := rotatedImmediate(w, false)
		return func(addr uint32) StepResult {
			i.moveToStatus(fields, value)
			return i.retire(addr + 4)
		}
	}

	return i.armDataProcessing(w)
}

// rotatedImmediate expands an 8-bit immediate rotated right by twice the
// 4-bit rotation field. A non-zero rotation sets the carry to bit 31.
func rotatedImmediate(w uint32, carry bool) (uint32, bool) {
	rot := ((w >> 8) & 0xF) * 2
	imm := w & 0xFF
	if rot == 0 {
		return imm, carry
	}
	imm = imm>>rot | imm<<(32-rot)
	return imm, imm&0x80000000 != 0
}

// armDataProcessing: cond | 00 | I | opcode(4) | S | Rn | Rd | operand2.
// PC reads as the instruction address plus 8 in every operand position.
func (i *Interpreter) armDataProcessing(w uint32) execFunc {
	opcode := (w >> 21) & 0xF
	setFlags := w&0x00100000 != 0
	rn := (w >> 16) & 0xF
	rd := (w >> 12) & 0xF
	immediate := w&0x02000000 != 0
	registerShift := !immediate && w&0x10 != 0
	rm := w & 0xF
	rs := (w >> 8) & 0xF
	typ := (w >> 5) & 0x3
	amount := (w >> 7) & 0x1F

	return func(addr uint32) StepResult {
		pc := addr + 8
		carry := i.regFile.CPSR.C

		var operand uint32
		switch {
		case immediate:
			operand, carry = rotatedImmediate(w, carry)
		case registerShift:
			operand, carry = shiftByRegister(i.readReg(rm, pc), typ, i.readReg(rs, pc), carry)
		default:
			operand, carry = shiftByImmediate(i.readReg(rm, pc), typ, amount, carry)
		}

		branched := i.dataProcessing(opcode, rd, setFlags, i.readReg(rn, pc), operand, carry)
		return i.armFinish(addr, branched)
	}
}

// armMultiply: cond | 000000 | A | S | Rd | Rn | Rs | 1001 | Rm.
func (i *Interpreter) armMultiply(w uint32) execFunc {
	accumulate := w&0x00200000 != 0
	setFlags := w&0x00100000 != 0
	rd := (w >> 16) & 0xF
	rn := (w >> 12) & 0xF
	rs := (w >> 8) & 0xF
	rm := w & 0xF

	return func(addr uint32) StepResult {
		pc := addr + 8
		var acc uint32
		if accumulate {
			acc = i.readReg(rn, pc)
		}
		branched := i.multiply(rd, setFlags, i.readReg(rm, pc), i.readReg(rs, pc), acc)
		return i.armFinish(addr, branched)
	}
}

// armBranchExchange executes BX and BLX (register).
func (i *Interpreter) armBranchExchange(w uint32) execFunc {
	link := w&0x20 != 0
	rm := w & 0xF

	return func(addr uint32) StepResult {
		target := i.readReg(rm, addr+8)
		if link {
			i.regFile.R[cpu.LR] = addr + 4
		}
		i.branchExchange(target)
		return StepResult{Retired: true}
	}
}

// armSingleDataTransfer: cond | 01 | I | P | U | B | W | L | Rn | Rd | offset.
// Post-indexed forms always write back; the W bit then selects the user
// mode translation, which is the same access here.
func (i *Interpreter) armSingleDataTransfer(w uint32) execFunc {
	registerOffset := w&0x02000000 != 0
	preIndex := w&0x01000000 != 0
	up := w&0x00800000 != 0
	width := uint32(4)
	if w&0x00400000 != 0 {
		width = 1
	}
	writeBack := w&0x00200000 != 0 || !preIndex
	load := w&0x00100000 != 0
	rn := (w >> 16) & 0xF
	rd := (w >> 12) & 0xF
	rm := w & 0xF
	typ := (w >> 5) & 0x3
	amount := (w >> 7) & 0x1F

	return func(addr uint32) StepResult {
		pc := addr + 8
		offset := w & 0xFFF
		if registerOffset {
			offset, _ = shiftByImmediate(i.readReg(rm, pc), typ, amount, i.regFile.CPSR.C)
		}

		branched := i.singleTransfer(transfer{
			load: load, width: width,
			rd: rd, rn: rn, base: i.readReg(rn, pc), offset: offset,
			preIndex: preIndex, up: up, writeBack: writeBack,
		}, pc)
		return i.armFinish(addr, branched)
	}
}

// armExtraLoadStore decodes halfword, signed byte and doubleword transfers:
// cond | 000 | P | U | I | W | L | Rn | Rd | immH | 1 | S | H | 1 | immL/Rm.
func (i *Interpreter) armExtraLoadStore(w uint32) execFunc {
	preIndex := w&0x01000000 != 0
	up := w&0x00800000 != 0
	immediate := w&0x00400000 != 0
	writeBack := w&0x00200000 != 0 || !preIndex
	load := w&0x00100000 != 0
	rn := (w >> 16) & 0xF
	rd := (w >> 12) & 0xF
	rm := w & 0xF
	sh := (w >> 5) & 0x3

	t := transfer{rd: rd, rn: rn, preIndex: preIndex, up: up, writeBack: writeBack}
	switch {
	case load && sh == 0b01:
		t.load, t.width = true, 2
	case load && sh == 0b10:
		t.load, t.width, t.signed = true, 1, true
	case load && sh == 0b11:
		t.load, t.width, t.signed = true, 2, true
	case sh == 0b01:
		t.width = 2
	case sh == 0b10:
		t.load, t.width = true, 8
	default:
		t.width = 8
	}
	if t.width == 8 && rd&1 != 0 {
		return nil
	}

	return func(addr uint32) StepResult {
		pc := addr + 8
		tr := t
		tr.base = i.readReg(rn, pc)
		if immediate {
			tr.offset = (w>>4)&0xF0 | w&0xF
		} else {
			tr.offset = i.readReg(rm, pc)
		}
		return i.armFinish(addr, i.singleTransfer(tr, pc))
	}
}

// armBlockDataTransfer: cond | 100 | P | U | 0 | W | L | Rn | list(16).
func (i *Interpreter) armBlockDataTransfer(w uint32) execFunc {
	preIndex := w&0x01000000 != 0
	up := w&0x00800000 != 0
	writeBack := w&0x00200000 != 0
	load := w&0x00100000 != 0
	rn := (w >> 16) & 0xF
	list := uint16(w & 0xFFFF)

	return func(addr uint32) StepResult {
		branched := i.blockTransfer(load, rn, list, preIndex, up, writeBack, addr+8)
		return i.armFinish(addr, branched)
	}
}

// armBranch: cond | 101 | L | imm24.
func (i *Interpreter) armBranch(w uint32) execFunc {
	link := w&0x01000000 != 0
	offset := signExtend((w&0xFFFFFF)<<2, 26)

	return func(addr uint32) StepResult {
		if link {
			i.regFile.R[cpu.LR] = addr + 4
		}
		return i.retire(addr + 8 + offset)
	}
}
