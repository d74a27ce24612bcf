package fuzz_test

import (
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/fuzz"
	"github.com/sarchlab/armjit/insts"
)

var _ = Describe("Generator", func() {
	var rng *rand.Rand

	BeforeEach(func() {
		rng = rand.New(rand.NewPCG(1, 2))
	})

	It("should panic on a malformed template", func() {
		Expect(func() { fuzz.NewGenerator("bad", "0101") }).To(Panic())
	})

	It("should keep fixed bits and stay within the width", func() {
		g := fuzz.NewGenerator("ADD/SUB imm3", "000111oxxxxxxxxx")
		Expect(g.Width()).To(Equal(16))

		for k := 0; k < 1000; k++ {
			inst := g.Generate(rng)
			Expect(g.Matches(inst)).To(BeTrue())
			Expect(inst >> 16).To(BeZero())
			Expect(inst >> 10).To(Equal(uint32(0b000111)))
		}
	})

	It("should regenerate encodings rejected by a predicate", func() {
		g := fuzz.NewGenerator("even", "xxxxxxxxxxxxxxxx",
			func(inst uint32) bool { return inst&1 == 0 })

		for k := 0; k < 1000; k++ {
			Expect(g.Generate(rng) & 1).To(BeZero())
		}
	})

	It("should never generate branches in Thumb set 1", func() {
		set := fuzz.ThumbSet1()
		decoder := insts.NewDecoder()

		for k := 0; k < 5000; k++ {
			inst := decoder.DecodeThumb(0, uint16(set.Generate(rng)))
			Expect(inst.Op).NotTo(BeElementOf(insts.OpB, insts.OpBL, insts.OpBX, insts.OpBLX, insts.OpSVC))
		}
	})

	It("should exclude unpredictable high register CMP operands", func() {
		set := fuzz.ThumbSet1()
		decoder := insts.NewDecoder()

		for k := 0; k < 5000; k++ {
			inst := decoder.DecodeThumb(0, uint16(set.Generate(rng)))
			if inst.Op == insts.OpCMP && inst.Operand.Kind == insts.OperandReg {
				Expect(inst.Rn).NotTo(Equal(uint8(15)))
				Expect(inst.Operand.Rm).NotTo(Equal(uint8(15)))
			}
		}
	})

	It("should never generate the undefined or SVC conditions in Thumb set 2", func() {
		set := fuzz.ThumbSet2()
		decoder := insts.NewDecoder()

		for k := 0; k < 5000; k++ {
			inst := decoder.DecodeThumb(0, uint16(set.Generate(rng)))
			Expect(inst.Op).NotTo(BeElementOf(insts.OpUDF, insts.OpSVC))
		}
	})

	It("should never generate the unconditional space or PC destinations in the ARM set", func() {
		set := fuzz.ARMSet()

		for k := 0; k < 5000; k++ {
			inst := set.Generate(rng)
			Expect(inst >> 28).NotTo(Equal(uint32(0xF)))
			Expect((inst >> 12) & 0xF).NotTo(Equal(uint32(15)))
		}
	})

	It("should look sets up by name", func() {
		for _, name := range []string{"thumb1", "thumb2", "arm"} {
			set, err := fuzz.SetByName(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Name).To(Equal(name))
		}

		_, err := fuzz.SetByName("thumb3")
		Expect(err).To(HaveOccurred())
	})

	It("should start Thumb sets in Thumb state", func() {
		Expect(fuzz.ThumbSet1().InitialCpsr()).To(Equal(uint32(0x1F0)))
		Expect(fuzz.ARMSet().InitialCpsr()).To(Equal(uint32(0x1D0)))
	})
})
