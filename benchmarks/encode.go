package benchmarks

import "encoding/binary"

// Condition codes for EncodeBcond.
const (
	CondEQ uint32 = 0x0
	CondNE uint32 = 0x1
	CondAL uint32 = 0xE
)

// BuildProgram assembles ARM instruction words into a byte slice.
func BuildProgram(instrs ...uint32) []byte {
	program := make([]byte, 0, len(instrs)*4)
	for _, inst := range instrs {
		program = binary.LittleEndian.AppendUint32(program, inst)
	}
	return program
}

// BuildThumbProgram assembles Thumb halfwords into a byte slice.
func BuildThumbProgram(halves ...uint16) []byte {
	program := make([]byte, 0, len(halves)*2)
	for _, h := range halves {
		program = binary.LittleEndian.AppendUint16(program, h)
	}
	return program
}

// EncodeMOVImm encodes MOV Rd, #imm8.
func EncodeMOVImm(rd uint8, imm uint8) uint32 {
	return 0xE3A00000 | uint32(rd)<<12 | uint32(imm)
}

// EncodeADDImm encodes ADD{S} Rd, Rn, #imm8.
func EncodeADDImm(rd, rn uint8, imm uint8, setFlags bool) uint32 {
	return dataProcImm(0x4, rd, rn, imm, setFlags)
}

// EncodeSUBImm encodes SUB{S} Rd, Rn, #imm8.
func EncodeSUBImm(rd, rn uint8, imm uint8, setFlags bool) uint32 {
	return dataProcImm(0x2, rd, rn, imm, setFlags)
}

// EncodeCMPImm encodes CMP Rn, #imm8.
func EncodeCMPImm(rn uint8, imm uint8) uint32 {
	return dataProcImm(0xA, 0, rn, imm, true)
}

func dataProcImm(opcode uint32, rd, rn, imm uint8, setFlags bool) uint32 {
	inst := 0xE2000000 | opcode<<21 | uint32(rn)<<16 | uint32(rd)<<12 | uint32(imm)
	if setFlags {
		inst |= 1 << 20
	}
	return inst
}

// EncodeADDReg encodes ADD Rd, Rn, Rm.
func EncodeADDReg(rd, rn, rm uint8) uint32 {
	return 0xE0800000 | uint32(rn)<<16 | uint32(rd)<<12 | uint32(rm)
}

// EncodeMUL encodes MUL Rd, Rm, Rs.
func EncodeMUL(rd, rm, rs uint8) uint32 {
	return 0xE0000090 | uint32(rd)<<16 | uint32(rs)<<8 | uint32(rm)
}

// EncodeSTR encodes STR Rt, [Rn, #offset].
func EncodeSTR(rt, rn uint8, offset uint16) uint32 {
	return 0xE5800000 | uint32(rn)<<16 | uint32(rt)<<12 | uint32(offset&0xFFF)
}

// EncodeLDR encodes LDR Rt, [Rn, #offset].
func EncodeLDR(rt, rn uint8, offset uint16) uint32 {
	return 0xE5900000 | uint32(rn)<<16 | uint32(rt)<<12 | uint32(offset&0xFFF)
}

// EncodeBcond encodes a conditional branch by a signed number of
// instructions relative to the branch itself.
func EncodeBcond(cond uint32, offset int32) uint32 {
	return cond<<28 | 0x0A000000 | branchImm(offset)
}

// EncodeB encodes an unconditional branch.
func EncodeB(offset int32) uint32 {
	return EncodeBcond(CondAL, offset)
}

// EncodeBL encodes a branch with link.
func EncodeBL(offset int32) uint32 {
	return 0xEB000000 | branchImm(offset)
}

// branchImm converts an instruction offset into imm24, which is relative
// to PC+8.
func branchImm(offset int32) uint32 {
	return uint32(offset-2) & 0x00FFFFFF
}

// EncodeBXLR encodes BX LR.
func EncodeBXLR() uint32 {
	return 0xE12FFF1E
}

// EncodeSVC encodes SVC #imm24.
func EncodeSVC(imm uint32) uint32 {
	return 0xEF000000 | imm&0x00FFFFFF
}

// exitSequence loads the exit syscall number and traps. R0 holds the status.
func exitSequence() []uint32 {
	return []uint32{EncodeMOVImm(7, 1), EncodeSVC(0)}
}
