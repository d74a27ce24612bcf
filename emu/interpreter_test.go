package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/mem"
)

const (
	thumbUser  uint32 = 0x1F0
	armUser    uint32 = 0x1D0
	flagN      uint32 = 1 << cpu.BitN
	flagZ      uint32 = 1 << cpu.BitZ
	flagC      uint32 = 1 << cpu.BitC
	flagV      uint32 = 1 << cpu.BitV
	thumbBit   uint32 = 1 << cpu.BitT
	systemMode uint32 = 0x1DF
)

type recordingSVC struct {
	calls   []uint32
	handled bool
}

func (s *recordingSVC) CallSVC(imm uint32) bool {
	s.calls = append(s.calls, imm)
	return s.handled
}

func loadThumb(memory *mem.Paged, code ...uint16) {
	for k, op := range code {
		memory.Write16(uint32(2*k), op)
	}
}

func loadARM(memory *mem.Paged, code ...uint32) {
	for k, w := range code {
		memory.Write32(uint32(4*k), w)
	}
}

var _ = Describe("Interpreter", func() {
	var (
		memory   *mem.Paged
		recorder *mem.Recorder
		svc      *recordingSVC
		interp   *emu.Interpreter
	)

	BeforeEach(func() {
		memory = mem.NewPaged()
		recorder = mem.NewRecorder(memory)
		svc = &recordingSVC{handled: true}
		interp = emu.NewInterpreter(recorder, emu.WithSVCHandler(svc))
		interp.SetCpsr(thumbUser)
	})

	It("should panic on nil memory", func() {
		Expect(func() { emu.NewInterpreter(nil) }).To(Panic())
	})

	Describe("Thumb data processing", func() {
		It("should execute ADDS R0, R1, #3", func() {
			loadThumb(memory, 0x1CC8)
			regs := [16]uint32{1: 5}
			interp.SetRegs(regs)

			res := interp.Step()

			Expect(res.Retired).To(BeTrue())
			Expect(res.Halted).To(BeFalse())
			Expect(interp.Regs()[0]).To(Equal(uint32(8)))
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(2)))
			Expect(interp.Cpsr()).To(Equal(thumbUser))
			Expect(recorder.Records()).To(BeEmpty())
		})

		It("should set Z and C when subtracting to zero", func() {
			loadThumb(memory, 0x2001, 0x3801) // MOVS R0, #1; SUBS R0, #1

			res := interp.Run(2)

			Expect(res.Executed).To(Equal(uint64(2)))
			Expect(interp.Regs()[0]).To(BeZero())
			Expect(interp.Cpsr()).To(Equal(thumbUser | flagZ | flagC))
		})

		It("should set N and V on signed overflow", func() {
			loadThumb(memory, 0x1840) // ADDS R0, R0, R1
			interp.SetRegs([16]uint32{0: 0x7FFFFFFF, 1: 1})

			interp.Step()

			Expect(interp.Regs()[0]).To(Equal(uint32(0x80000000)))
			Expect(interp.Cpsr()).To(Equal(thumbUser | flagN | flagV))
		})

		It("should treat LSRS #0 as a shift by 32", func() {
			loadThumb(memory, 0x0811) // LSRS R1, R2, #32
			interp.SetRegs([16]uint32{2: 0x80000000})

			interp.Step()

			Expect(interp.Regs()[1]).To(BeZero())
			Expect(interp.Cpsr()).To(Equal(thumbUser | flagZ | flagC))
		})
	})

	Describe("Thumb memory access", func() {
		It("should store a word", func() {
			loadThumb(memory, 0x6008) // STR R0, [R1]
			interp.SetRegs([16]uint32{0: 0xCAFEF00D, 1: 0x1000})

			interp.Step()

			Expect(memory.Read32(0x1000)).To(Equal(uint32(0xCAFEF00D)))
			Expect(recorder.Records()).To(Equal([]mem.WriteRecord{
				{Size: 32, Addr: 0x1000, Value: 0xCAFEF00D},
			}))
		})

		It("should push registers in ascending order", func() {
			loadThumb(memory, 0xB501) // PUSH {R0, LR}
			interp.SetRegs([16]uint32{0: 0x11, cpu.SP: 0x2000, cpu.LR: 0x22})

			interp.Step()

			Expect(interp.Regs()[cpu.SP]).To(Equal(uint32(0x1FF8)))
			Expect(recorder.Records()).To(Equal([]mem.WriteRecord{
				{Size: 32, Addr: 0x1FF8, Value: 0x11},
				{Size: 32, Addr: 0x1FFC, Value: 0x22},
			}))
		})

		It("should load a literal from the word-aligned PC", func() {
			loadThumb(memory, 0x46C0, 0x4800) // NOP; LDR R0, [PC, #0]
			memory.Write32(4, 0x12345678)

			interp.Run(2)

			Expect(interp.Regs()[0]).To(Equal(uint32(0x12345678)))
		})

		It("should interwork when popping PC", func() {
			loadThumb(memory, 0xBD00) // POP {PC}
			memory.Write32(0x1000, 0x200)
			interp.SetRegs([16]uint32{cpu.SP: 0x1000})

			interp.Step()

			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(0x200)))
			Expect(interp.Regs()[cpu.SP]).To(Equal(uint32(0x1004)))
			Expect(interp.Cpsr() & thumbBit).To(BeZero())
		})
	})

	Describe("Thumb branches", func() {
		It("should execute a BL pair", func() {
			loadThumb(memory, 0xF000, 0xF802)

			res := interp.Run(2)

			Expect(res.Executed).To(Equal(uint64(2)))
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(8)))
			Expect(interp.Regs()[cpu.LR]).To(Equal(uint32(5)))
		})

		It("should switch to ARM state on BX to an even address", func() {
			loadThumb(memory, 0x4700) // BX R0
			interp.SetRegs([16]uint32{0: 0x100})

			interp.Step()

			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(0x100)))
			Expect(interp.Cpsr()).To(Equal(thumbUser &^ thumbBit))
		})

		It("should skip a conditional branch whose condition fails", func() {
			loadThumb(memory, 0xD002) // BEQ

			res := interp.Step()

			Expect(res.Retired).To(BeTrue())
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(2)))
		})

		It("should spin on the branch-to-self fill", func() {
			loadThumb(memory, mem.FillInstruction)

			res := interp.Run(10)

			Expect(res.Executed).To(Equal(uint64(10)))
			Expect(interp.Regs()[cpu.PC]).To(BeZero())
		})
	})

	Describe("Halting instructions", func() {
		It("should pass SVC numbers to the handler and halt", func() {
			loadThumb(memory, 0xDF07, 0x46C0)

			res := interp.Run(5)

			Expect(svc.calls).To(Equal([]uint32{7}))
			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.Halted).To(BeTrue())
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(2)))
		})

		It("should report an unhandled SVC", func() {
			svc.handled = false
			loadThumb(memory, 0xDF01)

			res := interp.Run(5)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.Err).To(MatchError(emu.ErrUnhandledSVC))
		})

		It("should stop on BKPT without retiring it", func() {
			loadThumb(memory, 0xBE03)

			res := interp.Run(5)

			Expect(res.Executed).To(BeZero())
			Expect(res.Err).To(MatchError(emu.ErrBreakpoint))
			Expect(interp.Regs()[cpu.PC]).To(BeZero())
		})

		It("should stop on an undefined encoding", func() {
			loadThumb(memory, 0xDE00)

			res := interp.Run(5)

			Expect(res.Executed).To(BeZero())
			Expect(res.Err).To(MatchError(emu.ErrUndefined))
		})
	})

	Describe("Status register", func() {
		It("should ignore CPS in User mode", func() {
			loadThumb(memory, 0xB662) // CPSIE i

			interp.Step()

			Expect(interp.Cpsr()).To(Equal(thumbUser))
		})

		It("should apply CPS in a privileged mode", func() {
			loadThumb(memory, 0xB662)
			interp.SetCpsr(systemMode | thumbBit)

			interp.Step()

			Expect(interp.Cpsr()).To(Equal((systemMode | thumbBit) &^ (1 << cpu.BitI)))
		})

		It("should limit MSR to the flags in User mode", func() {
			interp.SetCpsr(armUser)
			loadARM(memory, 0xE12FF000) // MSR CPSR_fsxc, R0
			interp.SetRegs([16]uint32{0: 0xFFFFFFFF})

			interp.Step()

			Expect(interp.Cpsr()).To(Equal(armUser | 0xF80F0000))
		})
	})

	Describe("ARM", func() {
		BeforeEach(func() {
			interp.SetCpsr(armUser)
		})

		It("should execute MOV with a rotated immediate", func() {
			loadARM(memory, 0xE3A00CFF)

			interp.Step()

			Expect(interp.Regs()[0]).To(Equal(uint32(0xFF00)))
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(4)))
		})

		It("should retire a failed conditional instruction as a no-op", func() {
			loadARM(memory, 0x10811002) // ADDNE R1, R1, R2
			interp.SetCpsr(armUser | flagZ)
			interp.SetRegs([16]uint32{1: 1, 2: 2})

			res := interp.Step()

			Expect(res.Retired).To(BeTrue())
			Expect(interp.Regs()[1]).To(Equal(uint32(1)))
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(4)))
		})

		It("should read PC as the instruction address plus 8", func() {
			loadARM(memory, 0xE59F0000) // LDR R0, [PC, #0]
			memory.Write32(8, 0xDEADBEEF)

			interp.Step()

			Expect(interp.Regs()[0]).To(Equal(uint32(0xDEADBEEF)))
		})

		It("should swap bytes of data accesses in big-endian state", func() {
			loadARM(memory, 0xE5910000) // LDR R0, [R1]
			memory.Write32(0x1000, 0x11223344)
			interp.SetCpsr(armUser | 1<<cpu.BitE)
			interp.SetRegs([16]uint32{1: 0x1000})

			interp.Step()

			Expect(interp.Regs()[0]).To(Equal(uint32(0x44332211)))
		})

		It("should execute MUL", func() {
			loadARM(memory, 0xE0000291) // MUL R0, R1, R2
			interp.SetRegs([16]uint32{1: 6, 2: 7})

			interp.Step()

			Expect(interp.Regs()[0]).To(Equal(uint32(42)))
		})

		It("should treat LDRD with an odd register as undefined", func() {
			loadARM(memory, 0xE1C010D0)

			res := interp.Step()

			Expect(res.Err).To(MatchError(emu.ErrUndefined))
		})
	})

	Describe("Run", func() {
		It("should stop at the budget", func() {
			loadThumb(memory, 0x46C0, 0x46C0, 0x46C0)

			res := interp.Run(2)

			Expect(res.Executed).To(Equal(uint64(2)))
			Expect(res.Halted).To(BeFalse())
			Expect(interp.Regs()[cpu.PC]).To(Equal(uint32(4)))
			Expect(interp.InstructionCount()).To(Equal(uint64(2)))
		})

		It("should decode changed code after ClearCache", func() {
			loadThumb(memory, 0x2001) // MOVS R0, #1
			interp.Step()
			Expect(interp.Regs()[0]).To(Equal(uint32(1)))

			loadThumb(memory, 0x2002) // MOVS R0, #2
			interp.ClearCache()
			interp.SetRegs([16]uint32{})
			interp.Step()

			Expect(interp.Regs()[0]).To(Equal(uint32(2)))
		})
	})
})
