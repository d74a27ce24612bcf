// Package insts provides ARM and Thumb instruction definitions and decoding.
package insts

import "github.com/sarchlab/armjit/cpu"

// Op represents a decoded operation.
type Op uint8

// Data-processing opcodes. OpAND through OpMVN follow the ARM opcode field
// order so that OpAND+opcode selects the operation.
const (
	OpUnknown Op = iota
	OpAND
	OpEOR
	OpSUB
	OpRSB
	OpADD
	OpADC
	OpSBC
	OpRSC
	OpTST
	OpTEQ
	OpCMP
	OpCMN
	OpORR
	OpMOV
	OpBIC
	OpMVN

	OpADR
	OpMUL
	OpMLA

	OpSXTH
	OpSXTB
	OpUXTH
	OpUXTB
	OpREV
	OpREV16
	OpREVSH

	OpLDR
	OpSTR
	OpLDRD
	OpSTRD
	OpLDM
	OpSTM

	OpB
	OpBL
	OpBLPrefix
	OpBLXSuffix
	OpBLXImm
	OpBX
	OpBLX

	OpSVC
	OpBKPT
	OpUDF
	OpCPS
	OpSETEND
	OpMRS
	OpMSR
)

var opNames = map[Op]string{
	OpUnknown: "???",
	OpAND:     "and", OpEOR: "eor", OpSUB: "sub", OpRSB: "rsb",
	OpADD: "add", OpADC: "adc", OpSBC: "sbc", OpRSC: "rsc",
	OpTST: "tst", OpTEQ: "teq", OpCMP: "cmp", OpCMN: "cmn",
	OpORR: "orr", OpMOV: "mov", OpBIC: "bic", OpMVN: "mvn",
	OpADR: "adr", OpMUL: "mul", OpMLA: "mla",
	OpSXTH: "sxth", OpSXTB: "sxtb", OpUXTH: "uxth", OpUXTB: "uxtb",
	OpREV: "rev", OpREV16: "rev16", OpREVSH: "revsh",
	OpLDR: "ldr", OpSTR: "str", OpLDRD: "ldrd", OpSTRD: "strd",
	OpLDM: "ldm", OpSTM: "stm",
	OpB: "b", OpBL: "bl", OpBLPrefix: "bl", OpBLXSuffix: "blx", OpBLXImm: "blx",
	OpBX: "bx", OpBLX: "blx",
	OpSVC: "svc", OpBKPT: "bkpt", OpUDF: "udf", OpCPS: "cps", OpSETEND: "setend",
	OpMRS: "mrs", OpMSR: "msr",
}

// String returns the lower-case mnemonic.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "???"
}

// IsDataProcessing reports whether o is one of the 16 ARM data-processing
// operations.
func (o Op) IsDataProcessing() bool {
	return o >= OpAND && o <= OpMVN
}

// IsCompare reports whether o only sets flags and writes no register.
func (o Op) IsCompare() bool {
	return o >= OpTST && o <= OpCMN
}

// Format represents an instruction encoding class.
type Format uint8

// Instruction formats.
const (
	FormatUnknown   Format = iota
	FormatDataProc         // Data processing, shifts, moves and compares
	FormatMultiply         // MUL/MLA
	FormatExtend           // SXT/UXT and byte reversal
	FormatLoadStore        // Single load/store
	FormatMultiple         // LDM/STM/PUSH/POP
	FormatBranch           // PC-relative branches and BL halves
	FormatBranchReg        // BX/BLX register
	FormatSystem           // SVC, BKPT, UDF, CPS, SETEND, MRS, MSR
)

// OperandKind selects how the second operand is formed.
type OperandKind uint8

// Operand kinds.
const (
	OperandNone     OperandKind = iota
	OperandImm                  // Imm, optionally produced by a rotation
	OperandReg                  // Rm shifted by an immediate amount
	OperandRegShift             // Rm shifted by the bottom byte of Rs
)

// ShiftType represents a barrel shifter operation.
type ShiftType uint8

// Shift types. ShiftRRX is the ARM "ROR #0" encoding.
const (
	ShiftLSL ShiftType = 0b00
	ShiftLSR ShiftType = 0b01
	ShiftASR ShiftType = 0b10
	ShiftROR ShiftType = 0b11
	ShiftRRX ShiftType = 0b100
)

var shiftNames = [...]string{"lsl", "lsr", "asr", "ror", "rrx"}

// String returns the assembler name of the shift.
func (s ShiftType) String() string {
	if int(s) < len(shiftNames) {
		return shiftNames[s]
	}
	return "???"
}

// Operand is a flexible second operand.
//
// For OperandReg the amount is normalized: LSR/ASR encodings of 0 are stored
// as 32 and ROR #0 as ShiftRRX. An LSL of 0 is the plain register.
type Operand struct {
	Kind OperandKind

	// Imm is the final immediate value for OperandImm.
	Imm uint32
	// Rotated is set when an ARM rotated immediate used a non-zero
	// rotation, in which case logical operations set C from Imm[31].
	Rotated bool

	Rm    uint8
	Shift ShiftType
	// Amount is the immediate shift amount for OperandReg.
	Amount uint8
	// Rs holds the shift register for OperandRegShift.
	Rs uint8
}

// Instruction represents a decoded ARM or Thumb instruction.
type Instruction struct {
	Addr  uint32 // Guest address
	Raw   uint32 // Raw encoding (16-bit Thumb encodings are zero-extended)
	Thumb bool   // true for a Thumb encoding
	Size  uint32 // Encoding size in bytes

	Op     Op
	Format Format
	Cond   cpu.Cond // CondAL for unconditional instructions

	SetFlags bool
	Rd       uint8 // Destination (or transfer) register
	Rn       uint8 // First operand or base register
	Rm       uint8 // Register operand for non-flexible forms
	Rs       uint8 // Multiply operand

	Operand Operand

	// Imm holds a branch target, SVC/BKPT number, literal offset, LR value
	// for a BL prefix, or the suffix offset for BL/BLX suffixes.
	Imm uint32

	// Load/store fields.
	Width     uint8 // Access width in bytes: 1, 2, 4 or 8
	Signed    bool
	PreIndex  bool
	Up        bool
	WriteBack bool
	Literal   bool   // PC-relative load whose base is Align(PC, 4)
	RegList   uint16 // LDM/STM register list

	// System fields.
	Disable   bool  // CPS: set the masks rather than clear them
	Flags     uint8 // CPS: A/I/F selection as bits 2..0
	BigEndian bool  // SETEND
	Mask      uint8 // MSR field mask (c, x, s, f as bits 0..3)

	// Unpredictable is set for encodings whose behavior the architecture
	// leaves unspecified.
	Unpredictable bool
	Reason        string
}

// PCValue returns the value R15 reads as while this instruction executes.
func (i *Instruction) PCValue() uint32 {
	if i.Thumb {
		return i.Addr + 4
	}
	return i.Addr + 8
}

// Next returns the address of the sequentially following instruction.
func (i *Instruction) Next() uint32 {
	return i.Addr + i.Size
}

// Supported reports whether the decoder recognized the encoding.
func (i *Instruction) Supported() bool {
	return i.Op != OpUnknown
}

// WritesPC reports whether executing the instruction may change control
// flow.
func (i *Instruction) WritesPC() bool {
	switch i.Op {
	case OpB, OpBL, OpBLXSuffix, OpBLXImm, OpBX, OpBLX:
		return true
	case OpLDM:
		return i.RegList&(1<<cpu.PC) != 0 || (i.WriteBack && i.Rn == cpu.PC)
	case OpLDR, OpLDRD:
		return i.Rd == cpu.PC || (i.Op == OpLDRD && i.Rd+1 == cpu.PC) ||
			(i.Rn == cpu.PC && (i.WriteBack || !i.PreIndex))
	case OpSTR, OpSTRD, OpSTM:
		return i.Rn == cpu.PC && (i.WriteBack || !i.PreIndex)
	case OpMUL, OpMLA, OpSXTH, OpSXTB, OpUXTH, OpUXTB, OpREV, OpREV16, OpREVSH, OpADR, OpMRS:
		return i.Rd == cpu.PC
	default:
		if i.Op.IsDataProcessing() {
			return !i.Op.IsCompare() && i.Rd == cpu.PC
		}
		return false
	}
}

// ChangesMode reports whether the instruction may change the T or E bit or
// the processor mode.
func (i *Instruction) ChangesMode() bool {
	switch i.Op {
	case OpBX, OpBLX, OpBLXSuffix, OpBLXImm, OpCPS, OpSETEND, OpMSR:
		return true
	}
	return i.WritesPC()
}

func (i *Instruction) unpredictable(reason string) {
	i.Unpredictable = true
	if i.Reason == "" {
		i.Reason = reason
	}
}
