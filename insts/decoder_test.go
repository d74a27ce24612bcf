package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Thumb data processing", func() {
		// ADDS R0, R1, #3 -> 0x1CC8
		// Format: 00011 | I=1 | op=0 | imm3=3 | Rn=1 | Rd=0
		It("should decode ADDS R0, R1, #3", func() {
			inst := decoder.DecodeThumb(0, 0x1CC8)

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatDataProc))
			Expect(inst.SetFlags).To(BeTrue())
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Rn).To(Equal(uint8(1)))
			Expect(inst.Operand.Kind).To(Equal(insts.OperandImm))
			Expect(inst.Operand.Imm).To(Equal(uint32(3)))
			Expect(inst.Size).To(Equal(uint32(2)))
			Expect(inst.String()).To(Equal("adds    r0, r1, #0x3"))
		})

		// LSRS R1, R2, #0 -> 0x0811, an LSR by 32
		It("should normalize a zero LSR amount to 32", func() {
			inst := decoder.DecodeThumb(0, 0x0811)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Operand.Shift).To(Equal(insts.ShiftLSR))
			Expect(inst.Operand.Amount).To(Equal(uint8(32)))
		})

		// MOV R8, R0 -> 0x4680
		It("should decode a high register MOV", func() {
			inst := decoder.DecodeThumb(0, 0x4680)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Rd).To(Equal(uint8(8)))
			Expect(inst.Operand.Rm).To(Equal(uint8(0)))
			Expect(inst.SetFlags).To(BeFalse())
			Expect(inst.Unpredictable).To(BeFalse())
		})

		// ADD R0, R1 with two low registers -> 0x4408
		It("should flag a high register ADD of two low registers", func() {
			inst := decoder.DecodeThumb(0, 0x4408)

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Unpredictable).To(BeTrue())
		})
	})

	Describe("Thumb loads and stores", func() {
		It("should decode a literal load", func() {
			inst := decoder.DecodeThumb(0x10, 0x4A01) // LDR R2, [PC, #4]

			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.Literal).To(BeTrue())
			Expect(inst.Rd).To(Equal(uint8(2)))
			Expect(inst.Rn).To(Equal(uint8(cpu.PC)))
			Expect(inst.Operand.Imm).To(Equal(uint32(4)))
		})

		It("should decode PUSH {LR} as STMDB SP!", func() {
			inst := decoder.DecodeThumb(0, 0xB500)

			Expect(inst.Op).To(Equal(insts.OpSTM))
			Expect(inst.Rn).To(Equal(uint8(cpu.SP)))
			Expect(inst.PreIndex).To(BeTrue())
			Expect(inst.Up).To(BeFalse())
			Expect(inst.WriteBack).To(BeTrue())
			Expect(inst.RegList).To(Equal(uint16(1 << cpu.LR)))
		})

		It("should flag POP with an empty list", func() {
			inst := decoder.DecodeThumb(0, 0xBC00)

			Expect(inst.Op).To(Equal(insts.OpLDM))
			Expect(inst.Unpredictable).To(BeTrue())
			Expect(inst.Reason).To(Equal("empty register list"))
		})

		It("should skip writeback for LDMIA with the base in the list", func() {
			inst := decoder.DecodeThumb(0, 0xC903) // LDMIA R1!, {R0, R1}

			Expect(inst.Op).To(Equal(insts.OpLDM))
			Expect(inst.WriteBack).To(BeFalse())
		})
	})

	Describe("Thumb branches", func() {
		It("should decode the branch-to-self fill instruction", func() {
			inst := decoder.DecodeThumb(0x20, 0xE7FE)

			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.Imm).To(Equal(uint32(0x20)))
			Expect(inst.WritesPC()).To(BeTrue())
		})

		It("should decode a conditional branch", func() {
			inst := decoder.DecodeThumb(0, 0xD002) // BEQ +4

			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.Cond).To(Equal(cpu.CondEQ))
			Expect(inst.Imm).To(Equal(uint32(8)))
		})

		It("should decode SVC and UDF in the conditional branch space", func() {
			svc := decoder.DecodeThumb(0, 0xDF05)
			Expect(svc.Op).To(Equal(insts.OpSVC))
			Expect(svc.Imm).To(Equal(uint32(5)))

			udf := decoder.DecodeThumb(0, 0xDE00)
			Expect(udf.Op).To(Equal(insts.OpUDF))
		})

		It("should decode the BL halves", func() {
			prefix := decoder.DecodeThumb(0x100, 0xF7FF) // offset -1 << 12
			Expect(prefix.Op).To(Equal(insts.OpBLPrefix))
			Expect(prefix.Imm).To(Equal(uint32(0xFFFFF104)))

			suffix := decoder.DecodeThumb(0x102, 0xF801)
			Expect(suffix.Op).To(Equal(insts.OpBL))
			Expect(suffix.Imm).To(Equal(uint32(2)))
		})

		It("should treat a BLX suffix with an odd offset as undefined", func() {
			inst := decoder.DecodeThumb(0, 0xE801)

			Expect(inst.Op).To(Equal(insts.OpUDF))
		})

		It("should flag BX PC", func() {
			inst := decoder.DecodeThumb(0, 0x4778)

			Expect(inst.Op).To(Equal(insts.OpBX))
			Expect(inst.Rm).To(Equal(uint8(cpu.PC)))
			Expect(inst.Unpredictable).To(BeTrue())
		})
	})

	Describe("Thumb system instructions", func() {
		It("should decode BKPT", func() {
			inst := decoder.DecodeThumb(0, 0xBE2A)

			Expect(inst.Op).To(Equal(insts.OpBKPT))
			Expect(inst.Imm).To(Equal(uint32(0x2A)))
		})

		It("should decode CPSID i", func() {
			inst := decoder.DecodeThumb(0, 0xB672)

			Expect(inst.Op).To(Equal(insts.OpCPS))
			Expect(inst.Disable).To(BeTrue())
			Expect(inst.Flags).To(Equal(uint8(0x2)))
			Expect(inst.ChangesMode()).To(BeTrue())
		})

		It("should decode SETEND BE", func() {
			inst := decoder.DecodeThumb(0, 0xB658)

			Expect(inst.Op).To(Equal(insts.OpSETEND))
			Expect(inst.BigEndian).To(BeTrue())
		})
	})

	Describe("ARM data processing", func() {
		// ADD R1, R1, R2 -> 0xE0811002
		It("should decode ADD R1, R1, R2", func() {
			inst := decoder.DecodeARM(0, 0xE0811002)

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Cond).To(Equal(cpu.CondAL))
			Expect(inst.SetFlags).To(BeFalse())
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rn).To(Equal(uint8(1)))
			Expect(inst.Operand.Kind).To(Equal(insts.OperandReg))
			Expect(inst.Operand.Rm).To(Equal(uint8(2)))
			Expect(inst.Size).To(Equal(uint32(4)))
		})

		// MOV R0, #0xFF00 -> 0xE3A00CFF
		It("should decode a rotated immediate", func() {
			inst := decoder.DecodeARM(0, 0xE3A00CFF)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Operand.Imm).To(Equal(uint32(0xFF00)))
			Expect(inst.Operand.Rotated).To(BeTrue())
		})

		It("should keep the condition of a conditional instruction", func() {
			inst := decoder.DecodeARM(0, 0x10811002) // ADDNE

			Expect(inst.Cond).To(Equal(cpu.CondNE))
			Expect(inst.String()).To(HavePrefix("addne"))
		})

		It("should flag a register-shifted operand using PC", func() {
			inst := decoder.DecodeARM(0, 0xE081F312) // ADD PC, R1, R2, LSL R3

			Expect(inst.Unpredictable).To(BeTrue())
		})

		It("should decode MUL", func() {
			inst := decoder.DecodeARM(0, 0xE0000291) // MUL R0, R1, R2

			Expect(inst.Op).To(Equal(insts.OpMUL))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Rm).To(Equal(uint8(1)))
			Expect(inst.Rs).To(Equal(uint8(2)))
		})
	})

	Describe("ARM transfers", func() {
		It("should decode LDR with post-index", func() {
			inst := decoder.DecodeARM(0, 0xE4910004) // LDR R0, [R1], #4

			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.PreIndex).To(BeFalse())
			Expect(inst.Width).To(Equal(uint8(4)))
			Expect(inst.Operand.Imm).To(Equal(uint32(4)))
		})

		It("should decode LDRD with an even register", func() {
			inst := decoder.DecodeARM(0, 0xE1C020D0) // LDRD R2, [R0]

			Expect(inst.Op).To(Equal(insts.OpLDRD))
			Expect(inst.Width).To(Equal(uint8(8)))
			Expect(inst.Rd).To(Equal(uint8(2)))
		})

		It("should reject LDRD with an odd register", func() {
			inst := decoder.DecodeARM(0, 0xE1C010D0)

			Expect(inst.Supported()).To(BeFalse())
		})

		It("should decode LDMIA SP!, {PC}", func() {
			inst := decoder.DecodeARM(0, 0xE8BD8000)

			Expect(inst.Op).To(Equal(insts.OpLDM))
			Expect(inst.WriteBack).To(BeTrue())
			Expect(inst.RegList).To(Equal(uint16(1 << cpu.PC)))
			Expect(inst.WritesPC()).To(BeTrue())
		})
	})

	Describe("ARM branches and system instructions", func() {
		It("should decode B to self", func() {
			inst := decoder.DecodeARM(0x40, 0xEAFFFFFE)

			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.Imm).To(Equal(uint32(0x40)))
		})

		It("should decode BX LR", func() {
			inst := decoder.DecodeARM(0, 0xE12FFF1E)

			Expect(inst.Op).To(Equal(insts.OpBX))
			Expect(inst.Rm).To(Equal(uint8(cpu.LR)))
		})

		It("should decode SVC, BKPT and MRS", func() {
			Expect(decoder.DecodeARM(0, 0xEF000011).Imm).To(Equal(uint32(0x11)))
			Expect(decoder.DecodeARM(0, 0xE1200070).Op).To(Equal(insts.OpBKPT))
			Expect(decoder.DecodeARM(0, 0xE10F0000).Op).To(Equal(insts.OpMRS))
		})

		It("should decode SETEND in the unconditional space", func() {
			inst := decoder.DecodeARM(0, 0xF1010200)

			Expect(inst.Op).To(Equal(insts.OpSETEND))
			Expect(inst.Cond).To(Equal(cpu.CondAL))
			Expect(inst.BigEndian).To(BeTrue())
		})

		It("should leave permanently undefined encodings unknown", func() {
			inst := decoder.DecodeARM(0, 0xE7F000F0)

			Expect(inst.Supported()).To(BeFalse())
			Expect(inst.String()).To(Equal(".word 0xe7f000f0"))
		})
	})
})
