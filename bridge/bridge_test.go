package bridge_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/bridge"
	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/jit"
	"github.com/sarchlab/armjit/mem"
)

type callbacks struct {
	*mem.Paged
	fallback *bridge.Fallback
}

func (c *callbacks) InterpreterFallback(pc uint32, j *jit.Jit) {
	c.fallback.Execute(pc, j)
}

func (c *callbacks) CallSVC(uint32) bool { return false }

var _ = Describe("Fallback", func() {
	var (
		paged    *mem.Paged
		fallback *bridge.Fallback
		engine   *jit.Jit
	)

	BeforeEach(func() {
		paged = mem.NewPaged()
		fallback = bridge.New(paged, nil)
		engine = jit.New(&callbacks{Paged: paged, fallback: fallback})
		engine.SetCpsr(0x1D0)
	})

	It("should copy the engine state in and the result out", func() {
		paged.Write32(0x40, 0xE0000291) // MUL R0, R1, R2
		engine.SetRegs([16]uint32{1: 3, 2: 5, cpu.PC: 0x99})

		fallback.Execute(0x40, engine)

		Expect(engine.Regs()[0]).To(Equal(uint32(15)))
		Expect(engine.Regs()[1]).To(Equal(uint32(3)))
		Expect(engine.Regs()[cpu.PC]).To(Equal(uint32(0x44)))
		Expect(fallback.Interpreter().InstructionCount()).To(Equal(uint64(1)))
	})

	It("should carry status register changes back", func() {
		paged.Write32(0, 0xE328F20F) // MSR CPSR_f, #0xF0000000
		engine.SetRegs([16]uint32{})

		fallback.Execute(0, engine)

		Expect(engine.Cpsr()).To(Equal(uint32(0xF00001D0)))
	})

	It("should halt the engine on an interpreter error", func() {
		paged.Write32(0, 0xE7F000F0)

		res := engine.Run(5)

		Expect(res.Executed).To(BeZero())
		Expect(res.State).To(Equal(jit.StateHalted))
		Expect(res.Err).To(MatchError(emu.ErrUndefined))
	})

	It("should see code changed between fallbacks", func() {
		paged.Write32(0, 0xE10F0000) // MRS R0, CPSR
		fallback.Execute(0, engine)
		Expect(engine.Regs()[0]).To(Equal(uint32(0x1D0)))

		paged.Write32(0, 0xE10F1000) // MRS R1, CPSR
		engine.SetRegs([16]uint32{})
		fallback.Execute(0, engine)
		Expect(engine.Regs()[1]).To(Equal(uint32(0x1D0)))
	})
})
