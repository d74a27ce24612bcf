package jit_test

import (
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/bridge"
	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/jit"
	"github.com/sarchlab/armjit/mem"
)

const (
	thumbUser uint32 = 0x1F0
	armUser   uint32 = 0x1D0
	flagZ     uint32 = 1 << cpu.BitZ
	nop       uint16 = 0x46C0 // MOV R8, R8
)

// host implements jit.Callbacks over recorded paged memory.
type host struct {
	*mem.Recorder
	paged    *mem.Paged
	fallback *bridge.Fallback
	engine   *jit.Jit

	svcs       []uint32
	handled    bool
	fallbacks  []uint32
	haltOnSave bool
}

func newHost() *host {
	paged := mem.NewPaged()
	h := &host{
		Recorder: mem.NewRecorder(paged),
		paged:    paged,
		handled:  true,
	}
	h.fallback = bridge.New(h, nil)
	return h
}

func (h *host) InterpreterFallback(pc uint32, j *jit.Jit) {
	h.fallbacks = append(h.fallbacks, pc)
	h.fallback.Execute(pc, j)
}

func (h *host) CallSVC(imm uint32) bool {
	h.svcs = append(h.svcs, imm)
	return h.handled
}

func (h *host) Write32(addr uint32, value uint32) {
	h.Recorder.Write32(addr, value)
	if h.haltOnSave {
		h.engine.Halt(nil)
	}
}

func (h *host) thumb(code ...uint16) {
	for k, op := range code {
		h.paged.Write16(uint32(2*k), op)
	}
}

func (h *host) arm(code ...uint32) {
	for k, w := range code {
		h.paged.Write32(uint32(4*k), w)
	}
}

var _ = Describe("Jit", func() {
	var (
		h      *host
		engine *jit.Jit
	)

	BeforeEach(func() {
		h = newHost()
		engine = jit.New(h)
		h.engine = engine
		engine.SetCpsr(thumbUser)
	})

	It("should panic on nil callbacks", func() {
		Expect(func() { jit.New(nil) }).To(Panic())
	})

	It("should start idle", func() {
		Expect(engine.State()).To(Equal(jit.StateIdle))
		Expect(engine.State().String()).To(Equal("idle"))
	})

	Describe("Execution", func() {
		It("should execute ADDS R0, R1, #3", func() {
			arena := mem.NewArena(16)
			arena.SetHalfword(0, 0x1CC8)
			recorder := mem.NewRecorder(arena)
			a := &host{Recorder: recorder, fallback: bridge.New(recorder, nil)}
			e := jit.New(a)
			e.SetCpsr(thumbUser)
			e.SetRegs([16]uint32{1: 5})

			res := e.Run(1)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.State).To(Equal(jit.StateExhausted))
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(e.Regs()[0]).To(Equal(uint32(8)))
			Expect(e.Regs()[cpu.PC]).To(Equal(uint32(2)))
			Expect(e.Cpsr()).To(Equal(thumbUser))
			Expect(recorder.Records()).To(BeEmpty())
		})

		It("should do nothing for a zero budget", func() {
			h.thumb(nop)

			res := engine.Run(0)

			Expect(res.Executed).To(BeZero())
			Expect(res.State).To(Equal(jit.StateExhausted))
			Expect(engine.CachedBlocks()).To(BeZero())
		})

		It("should resume across Run calls", func() {
			h.thumb(nop, nop, nop, mem.FillInstruction)

			first := engine.Run(2)
			Expect(first.Executed).To(Equal(uint64(2)))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(4)))

			second := engine.Run(2)
			Expect(second.Executed).To(Equal(uint64(2)))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(6)))
			Expect(engine.Stats().Executed).To(Equal(uint64(4)))
		})

		It("should spin in a branch to self until the budget is spent", func() {
			h.thumb(mem.FillInstruction)

			res := engine.Run(100)

			Expect(res.Executed).To(Equal(uint64(100)))
			Expect(engine.Regs()[cpu.PC]).To(BeZero())
			Expect(engine.Stats().BlocksCompiled).To(Equal(uint64(1)))
			Expect(engine.Stats().Cache.Hits).To(Equal(uint64(99)))
		})

		It("should execute a BL pair", func() {
			h.thumb(0xF000, 0xF802)

			engine.Run(2)

			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(8)))
			Expect(engine.Regs()[cpu.LR]).To(Equal(uint32(5)))
		})

		It("should push registers in ascending order", func() {
			h.thumb(0xB501) // PUSH {R0, LR}
			engine.SetRegs([16]uint32{0: 0x11, cpu.SP: 0x2000, cpu.LR: 0x22})

			engine.Run(1)

			Expect(engine.Regs()[cpu.SP]).To(Equal(uint32(0x1FF8)))
			Expect(h.Records()).To(Equal([]mem.WriteRecord{
				{Size: 32, Addr: 0x1FF8, Value: 0x11},
				{Size: 32, Addr: 0x1FFC, Value: 0x22},
			}))
		})

		It("should switch instruction sets on BX", func() {
			h.thumb(0x4700)                    // BX R0
			h.paged.Write32(0x100, 0xE3A00CFF) // MOV R0, #0xFF00
			engine.SetRegs([16]uint32{0: 0x100})

			res := engine.Run(2)

			Expect(res.Executed).To(Equal(uint64(2)))
			Expect(engine.Cpsr()).To(Equal(armUser))
			Expect(engine.Regs()[0]).To(Equal(uint32(0xFF00)))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(0x104)))
		})
	})

	Describe("ARM", func() {
		BeforeEach(func() {
			engine.SetCpsr(armUser)
		})

		It("should skip an instruction whose condition fails", func() {
			h.arm(0x10811002) // ADDNE R1, R1, R2
			engine.SetCpsr(armUser | flagZ)
			engine.SetRegs([16]uint32{1: 1, 2: 2})

			res := engine.Run(1)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(engine.Regs()[1]).To(Equal(uint32(1)))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(4)))
		})

		It("should shift by a register", func() {
			h.arm(0xE0810312) // ADD R0, R1, R2, LSL R3
			engine.SetRegs([16]uint32{1: 1, 2: 1, 3: 4})

			engine.Run(1)

			Expect(engine.Regs()[0]).To(Equal(uint32(17)))
		})

		It("should swap loaded words in big-endian state", func() {
			h.arm(0xE5910000) // LDR R0, [R1]
			h.paged.Write32(0x1000, 0x11223344)
			engine.SetCpsr(armUser | 1<<cpu.BitE)
			engine.SetRegs([16]uint32{1: 0x1000})

			engine.Run(1)

			Expect(engine.Regs()[0]).To(Equal(uint32(0x44332211)))
		})

		It("should run MUL through the interpreter", func() {
			h.arm(0xE0000291) // MUL R0, R1, R2
			engine.SetRegs([16]uint32{1: 6, 2: 7})

			res := engine.Run(1)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(engine.Regs()[0]).To(Equal(uint32(42)))
			Expect(h.fallbacks).To(Equal([]uint32{0}))
		})
	})

	Describe("Halting", func() {
		It("should halt after a handled SVC", func() {
			h.thumb(0xDF07, nop)

			res := engine.Run(10)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.State).To(Equal(jit.StateHalted))
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(h.svcs).To(Equal([]uint32{7}))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(2)))
		})

		It("should report an unhandled SVC", func() {
			h.handled = false
			h.thumb(0xDF01)

			res := engine.Run(10)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.Err).To(MatchError(jit.ErrUnhandledSVC))
		})

		It("should stop on BKPT without retiring it", func() {
			h.thumb(nop, 0xBE00)

			res := engine.Run(10)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.Err).To(MatchError(jit.ErrBreakpoint))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(2)))
		})

		It("should halt after the instruction during which the host calls Halt", func() {
			h.haltOnSave = true
			h.thumb(0x6008, nop) // STR R0, [R1]
			engine.SetRegs([16]uint32{1: 0x1000})

			res := engine.Run(10)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.State).To(Equal(jit.StateHalted))
			Expect(res.Err).To(MatchError(jit.ErrHalted))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(2)))
		})

		It("should retire a fallback during which the host calls Halt", func() {
			h.haltOnSave = true
			engine.SetCpsr(armUser)
			h.arm(0xE8800002, 0xE1A00000) // STM R0, {R1}; NOP
			engine.SetRegs([16]uint32{0: 0x1000, 1: 0x55})

			res := engine.Run(10)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.Err).To(MatchError(jit.ErrHalted))
			Expect(h.fallbacks).To(Equal([]uint32{0}))
			Expect(h.paged.Read32(0x1000)).To(Equal(uint32(0x55)))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(4)))
		})

		It("should clear a previous halt on the next Run", func() {
			h.handled = false
			h.thumb(0xDF01, nop)
			engine.Run(10)

			res := engine.Run(1)

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(jit.StateExhausted))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(4)))
		})
	})

	Describe("Interpreter fallback", func() {
		It("should execute CPS in the interpreter and resume compiled code", func() {
			h.thumb(0xB662, nop) // CPSIE i; NOP

			res := engine.Run(2)

			Expect(res.Executed).To(Equal(uint64(2)))
			Expect(h.fallbacks).To(Equal([]uint32{0}))
			Expect(engine.Stats().Fallbacks).To(Equal(uint64(1)))
			Expect(engine.Cpsr()).To(Equal(thumbUser))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(4)))
		})

		It("should change the data endianness with SETEND", func() {
			h.thumb(0xB658, 0x6808) // SETEND BE; LDR R0, [R1]
			h.paged.Write32(0x1000, 0x11223344)
			engine.SetRegs([16]uint32{1: 0x1000})

			engine.Run(2)

			Expect(engine.Cpsr() & (1 << cpu.BitE)).NotTo(BeZero())
			Expect(engine.Regs()[0]).To(Equal(uint32(0x44332211)))
		})

		It("should halt on an undefined instruction without retiring it", func() {
			h.thumb(nop, 0xDE00)

			res := engine.Run(10)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(res.Err).To(MatchError(emu.ErrUndefined))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(2)))
		})

		It("should align PC after an interworking fallback", func() {
			h.thumb(0x4778) // BX PC
			res := engine.Run(1)

			Expect(res.Executed).To(Equal(uint64(1)))
			Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(4)))
			Expect(engine.Cpsr()).To(Equal(armUser))
		})
	})

	Describe("Translation cache", func() {
		It("should reuse compiled blocks", func() {
			h.thumb(nop, mem.FillInstruction)

			engine.Run(2)
			engine.SetRegs([16]uint32{})
			engine.Run(2)

			Expect(engine.Stats().BlocksCompiled).To(Equal(uint64(1)))
			Expect(engine.Stats().InstructionsCompiled).To(Equal(uint64(2)))
			Expect(engine.CachedBlocks()).To(Equal(1))
		})

		It("should drop everything on a cold clear", func() {
			h.thumb(mem.FillInstruction)
			engine.Run(1)

			engine.ClearCache(false)
			Expect(engine.CachedBlocks()).To(BeZero())

			engine.ClearCache(false)
			Expect(engine.CachedBlocks()).To(BeZero())
		})

		It("should give the same results after any sequence of clears", func() {
			h.thumb(0x6008, 0x1C40, nop, mem.FillInstruction) // STR R0, [R1]; ADDS R0, R0, #1
			h.paged.Protect(0, mem.PageSize, true)
			initial := [16]uint32{0: 7, 1: 0x2000}

			run := func() ([16]uint32, uint32, []mem.WriteRecord) {
				engine.SetCpsr(thumbUser)
				engine.SetRegs(initial)
				engine.Run(3)
				return engine.Regs(), engine.Cpsr(), h.Take()
			}

			regs, cpsr, writes := run()
			Expect(writes).To(HaveLen(1))

			engine.ClearCache(false)
			engine.ClearCache(true)
			regs2, cpsr2, writes2 := run()

			engine.ClearCache(true)
			engine.ClearCache(true)
			regs3, cpsr3, writes3 := run()

			Expect(regs2).To(Equal(regs))
			Expect(cpsr2).To(Equal(cpsr))
			Expect(writes2).To(Equal(writes))
			Expect(regs3).To(Equal(regs))
			Expect(cpsr3).To(Equal(cpsr))
			Expect(writes3).To(Equal(writes))
		})

		It("should keep read-only translations on a warm clear", func() {
			h.thumb(mem.FillInstruction)
			h.paged.Write16(0x2000, mem.FillInstruction)
			h.paged.Protect(0, mem.PageSize, true)

			engine.Run(1)
			engine.SetRegs([16]uint32{cpu.PC: 0x2000})
			engine.Run(1)
			Expect(engine.CachedBlocks()).To(Equal(2))

			engine.ClearCache(true)

			Expect(engine.CachedBlocks()).To(Equal(1))
		})

		It("should invalidate translations overlapping a range", func() {
			h.thumb(nop, nop, mem.FillInstruction)
			engine.Run(1)

			engine.InvalidateCacheRange(0x100, 0x200)
			Expect(engine.CachedBlocks()).To(Equal(1))

			engine.InvalidateCacheRange(4, 5)
			Expect(engine.CachedBlocks()).To(BeZero())
		})

		It("should invalidate a block at the top of the address space", func() {
			h.paged.Write16(0xFFFFFFFE, nop)
			engine.SetRegs([16]uint32{cpu.PC: 0xFFFFFFFE})
			engine.Run(1)
			Expect(engine.CachedBlocks()).To(Equal(1))

			engine.InvalidateCacheRange(0xFFFFFFFE, 0xFFFFFFFF)

			Expect(engine.CachedBlocks()).To(BeZero())
		})

		It("should fold literals from read-only memory", func() {
			h.thumb(nop, 0x4801, mem.FillInstruction) // LDR R0, [PC, #4]
			h.paged.Write32(8, 0xAAAA5555)
			h.paged.Protect(0, mem.PageSize, true)

			engine.Run(2)
			Expect(engine.Regs()[0]).To(Equal(uint32(0xAAAA5555)))

			h.paged.Load(8, []byte{0x78, 0x56, 0x34, 0x12})
			engine.SetRegs([16]uint32{})
			engine.Run(2)
			Expect(engine.Regs()[0]).To(Equal(uint32(0xAAAA5555)))

			engine.ClearCache(false)
			engine.SetRegs([16]uint32{})
			engine.Run(2)
			Expect(engine.Regs()[0]).To(Equal(uint32(0x12345678)))
		})

		It("should drop a block when its folded literal is invalidated", func() {
			h.thumb(nop, 0x4801, mem.FillInstruction)
			h.paged.Write32(8, 0xAAAA5555)
			h.paged.Protect(0, mem.PageSize, true)
			engine.Run(2)

			engine.InvalidateCacheRange(8, 12)

			Expect(engine.CachedBlocks()).To(BeZero())
		})

		It("should load literals from writable memory at run time", func() {
			h.thumb(nop, 0x4801, mem.FillInstruction)
			h.paged.Write32(8, 0xAAAA5555)

			engine.Run(2)
			h.paged.Load(8, []byte{0x78, 0x56, 0x34, 0x12})
			engine.SetRegs([16]uint32{})
			engine.Run(2)

			Expect(engine.Regs()[0]).To(Equal(uint32(0x12345678)))
		})

		It("should key translations by mode", func() {
			h.thumb(mem.FillInstruction)
			engine.Run(1)

			engine.SetCpsr(armUser)
			engine.SetRegs([16]uint32{})
			engine.Run(1)

			Expect(engine.Stats().BlocksCompiled).To(Equal(uint64(2)))
		})
	})
})

var _ = Describe("Emitter", func() {
	var (
		h       *host
		emitter *jit.Emitter
		thumb   = cpu.Mode{Thumb: true}
	)

	BeforeEach(func() {
		h = newHost()
		emitter = jit.NewEmitter(h, jit.DefaultMaxBlockLength, logr.Discard())
	})

	It("should end a block at a branch", func() {
		h.thumb(nop, nop, nop, mem.FillInstruction)

		block := emitter.Compile(0, thumb)

		Expect(block.Len()).To(Equal(4))
		Expect(block.End).To(Equal(uint32(8)))
		Expect(block.Exit).To(Equal(jit.ExitBranch))
		Expect(block.String()).To(ContainSubstring("exit=branch"))
	})

	It("should end a block at the maximum length", func() {
		h.thumb(nop, nop, nop, mem.FillInstruction)
		emitter = jit.NewEmitter(h, 2, logr.Discard())

		block := emitter.Compile(0, thumb)

		Expect(block.Len()).To(Equal(2))
		Expect(block.End).To(Equal(uint32(4)))
		Expect(block.Exit).To(Equal(jit.ExitFallThrough))
	})

	It("should end a block at an interpreter fallback", func() {
		h.thumb(nop, 0xB662, nop)

		block := emitter.Compile(0, thumb)

		Expect(block.Len()).To(Equal(2))
		Expect(block.Exit).To(Equal(jit.ExitFallback))
	})

	It("should end a block at SVC and BKPT", func() {
		h.thumb(0xDF00, 0xBE00)

		Expect(emitter.Compile(0, thumb).Exit).To(Equal(jit.ExitSVC))
		Expect(emitter.Compile(2, thumb).Exit).To(Equal(jit.ExitHalt))
	})

	It("should end a block at a load to PC", func() {
		h.thumb(nop, 0xBD00, nop) // POP {PC}

		block := emitter.Compile(0, thumb)

		Expect(block.Len()).To(Equal(2))
		Expect(block.Exit).To(Equal(jit.ExitBranch))
	})
})
