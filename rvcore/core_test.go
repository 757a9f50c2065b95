package rvcore_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvbench/rvcore"
	"github.com/sarchlab/rvbench/rvcore/asm"
	"github.com/sarchlab/rvbench/sim"
)

func tick(c *rvcore.Core) {
	c.SetClock(false)
	c.Eval()
	c.SetClock(true)
	c.Eval()
}

func boot(c *rvcore.Core, words ...uint32) {
	copy(c.Memory(), asm.Program(words...))

	c.SetReset(true)
	tick(c)
	c.SetReset(false)
}

// runToTrap ticks the core until it traps and returns the number of cycles.
func runToTrap(c *rvcore.Core, limit int) int {
	for i := 1; i <= limit; i++ {
		tick(c)
		if c.Finished() {
			return i
		}
	}

	return -1
}

var _ = Describe("Core", func() {
	var (
		console *bytes.Buffer
		core    *rvcore.Core
	)

	BeforeEach(func() {
		console = new(bytes.Buffer)
		core = rvcore.MakeBuilder().WithConsole(console).Build()
	})

	It("should start with zeroed memory of the configured size", func() {
		Expect(core.Memory()).To(HaveLen(rvcore.DefaultMemorySize))
		Expect(core.Memory()).To(Equal(make([]byte, rvcore.DefaultMemorySize)))
	})

	It("should implement the device and prober interfaces", func() {
		var _ sim.Device = core
		var _ sim.SignalProber = core
	})

	It("should reset to the reset address", func() {
		core = rvcore.MakeBuilder().WithResetPC(0x100).Build()

		core.SetReset(true)
		tick(core)

		Expect(core.State().PC).To(Equal(uint32(0x100)))
		Expect(core.Finished()).To(BeFalse())
	})

	It("should only act on rising edges", func() {
		boot(core, asm.ADDI(asm.T0, asm.Zero, 1), asm.EBREAK)

		core.SetClock(true)
		core.Eval()
		Expect(core.State().Instret).To(BeZero())

		core.SetClock(false)
		core.Eval()
		Expect(core.State().Instret).To(BeZero())

		core.SetClock(true)
		core.Eval()
		core.Eval()
		Expect(core.State().Instret).To(Equal(uint64(1)))

		core.SetClock(false)
		core.Eval()
		Expect(core.State().Instret).To(Equal(uint64(1)))
		Expect(core.State().Cycle).To(Equal(uint64(1)))
	})

	It("should execute arithmetic", func() {
		boot(core,
			asm.ADDI(asm.T0, asm.Zero, 7),
			asm.ADDI(asm.T1, asm.Zero, -3),
			asm.ADD(asm.T2, asm.T0, asm.T1),
			asm.SUB(asm.S0, asm.T1, asm.T0),
			asm.SLLI(asm.S1, asm.T0, 4),
			asm.SRAI(asm.A0, asm.T1, 1),
			asm.ANDI(asm.A1, asm.T0, 3),
			asm.LUI(asm.A2, 0x12345),
			asm.AUIPC(asm.A3, 1),
			asm.EBREAK,
		)

		Expect(runToTrap(core, 100)).To(BeNumerically(">", 0))

		regs := core.State().Regs
		Expect(regs[asm.T2]).To(Equal(uint32(4)))
		Expect(int32(regs[asm.S0])).To(Equal(int32(-10)))
		Expect(regs[asm.S1]).To(Equal(uint32(112)))
		Expect(int32(regs[asm.A0])).To(Equal(int32(-2)))
		Expect(regs[asm.A1]).To(Equal(uint32(3)))
		Expect(regs[asm.A2]).To(Equal(uint32(0x12345000)))
		Expect(regs[asm.A3]).To(Equal(uint32(0x1000 + 8*4)))
		Expect(core.TrapCause()).To(ContainSubstring("ebreak"))
	})

	It("should never write x0", func() {
		boot(core, asm.ADDI(asm.Zero, asm.Zero, 5), asm.EBREAK)

		runToTrap(core, 20)

		Expect(core.State().Regs[0]).To(Equal(uint32(0)))
	})

	It("should hold the core for the latency of an instruction", func() {
		boot(core, asm.ADDI(asm.T0, asm.Zero, 7), asm.ADDI(asm.T0, asm.T0, 1))

		tick(core)
		Expect(core.TraceValid()).To(BeTrue())
		Expect(core.TraceData()).To(Equal(uint64(7)))

		for i := 1; i < rvcore.DefaultLatency.ALU; i++ {
			tick(core)
			Expect(core.TraceValid()).To(BeFalse())
		}

		tick(core)
		Expect(core.TraceValid()).To(BeTrue())
		Expect(core.TraceData()).To(Equal(uint64(8)))
	})

	It("should trace taken branches with their target", func() {
		boot(core,
			asm.JAL(asm.RA, 8),
			asm.NOP,
			asm.EBREAK,
		)

		tick(core)

		Expect(core.TraceValid()).To(BeTrue())
		Expect(core.TraceData()).To(Equal(rvcore.TraceBranch | 8))
		Expect(core.State().Regs[asm.RA]).To(Equal(uint32(4)))
	})

	It("should not trace branches that are not taken", func() {
		boot(core, asm.BNE(asm.Zero, asm.Zero, 8), asm.EBREAK)

		tick(core)

		Expect(core.TraceValid()).To(BeFalse())
		Expect(core.State().PC).To(Equal(uint32(4)))
	})

	It("should trace memory accesses with their address", func() {
		boot(core,
			asm.ADDI(asm.T0, asm.Zero, 0x100),
			asm.SW(asm.T0, asm.T0, 4),
			asm.LW(asm.T1, asm.T0, 4),
			asm.EBREAK,
		)

		var trace []uint64
		for !core.Finished() {
			tick(core)
			if core.TraceValid() {
				trace = append(trace, core.TraceData())
			}
		}

		Expect(trace).To(Equal([]uint64{
			0x100,
			rvcore.TraceAddr | 0x104,
			rvcore.TraceAddr | 0x104,
		}))
		Expect(core.State().Regs[asm.T1]).To(Equal(uint32(0x100)))
	})

	It("should load and store bytes and halves", func() {
		boot(core,
			asm.ADDI(asm.T0, asm.Zero, 0x200),
			asm.ADDI(asm.T1, asm.Zero, -2),
			asm.SB(asm.T1, asm.T0, 0),
			asm.SH(asm.T1, asm.T0, 2),
			asm.LB(asm.S0, asm.T0, 0),
			asm.LBU(asm.S1, asm.T0, 0),
			asm.LH(asm.A0, asm.T0, 2),
			asm.EBREAK,
		)

		runToTrap(core, 200)

		regs := core.State().Regs
		Expect(int32(regs[asm.S0])).To(Equal(int32(-2)))
		Expect(regs[asm.S1]).To(Equal(uint32(0xfe)))
		Expect(int32(regs[asm.A0])).To(Equal(int32(-2)))
		Expect(core.Memory()[0x200:0x204]).To(Equal([]byte{0xfe, 0, 0xfe, 0xff}))
	})

	It("should multiply and divide", func() {
		boot(core,
			asm.ADDI(asm.T0, asm.Zero, -7),
			asm.ADDI(asm.T1, asm.Zero, 2),
			asm.MUL(asm.S0, asm.T0, asm.T1),
			asm.DIV(asm.S1, asm.T0, asm.T1),
			asm.REM(asm.A0, asm.T0, asm.T1),
			asm.DIV(asm.A1, asm.T0, asm.Zero),
			asm.REM(asm.A2, asm.T0, asm.Zero),
			asm.MULHU(asm.A3, asm.T0, asm.T1),
			asm.EBREAK,
		)

		runToTrap(core, 500)

		regs := core.State().Regs
		Expect(int32(regs[asm.S0])).To(Equal(int32(-14)))
		Expect(int32(regs[asm.S1])).To(Equal(int32(-3)))
		Expect(int32(regs[asm.A0])).To(Equal(int32(-1)))
		Expect(regs[asm.A1]).To(Equal(uint32(0xffffffff)))
		Expect(int32(regs[asm.A2])).To(Equal(int32(-7)))
		Expect(regs[asm.A3]).To(Equal(uint32(1)))
	})

	It("should read the counters", func() {
		boot(core,
			asm.NOP,
			asm.CSRR(asm.T0, 0xc00),
			asm.CSRR(asm.T1, 0xc02),
			asm.EBREAK,
		)

		runToTrap(core, 100)

		regs := core.State().Regs
		Expect(regs[asm.T0]).To(Equal(uint32(rvcore.DefaultLatency.ALU + 1)))
		Expect(regs[asm.T1]).To(Equal(uint32(2)))
	})

	It("should print bytes stored to the console", func() {
		boot(core,
			asm.LUI(asm.T0, rvcore.ConsoleAddr>>12),
			asm.ADDI(asm.T1, asm.Zero, 'h'),
			asm.SW(asm.T1, asm.T0, 0),
			asm.ADDI(asm.T1, asm.Zero, 'i'),
			asm.SB(asm.T1, asm.T0, 0),
			asm.EBREAK,
		)

		runToTrap(core, 200)

		Expect(console.String()).To(Equal("hi"))
	})

	It("should mark the tests passed", func() {
		boot(core,
			asm.LUI(asm.T0, rvcore.PassAddr>>12),
			asm.LUI(asm.T1, 0x75bd),
			asm.ADDI(asm.T1, asm.T1, -747),
			asm.SW(asm.T1, asm.T0, 0),
			asm.EBREAK,
		)

		runToTrap(core, 200)

		Expect(core.TestsPassed()).To(BeTrue())
		Expect(core.State().TestsPassed).To(BeTrue())
	})

	DescribeTable("should trap",
		func(cause string, words ...uint32) {
			boot(core, words...)

			Expect(runToTrap(core, 100)).To(BeNumerically(">", 0))
			Expect(core.TrapCause()).To(ContainSubstring(cause))
			Expect(core.TraceValid()).To(BeFalse())
		},
		Entry("on ecall", "ecall", asm.ECALL),
		Entry("on illegal instructions", "illegal instruction", uint32(0xffffffff)),
		Entry("on unsupported CSRs", "illegal instruction", asm.CSRR(asm.T0, 0x300)),
		Entry("on misaligned loads", "misaligned load",
			asm.ADDI(asm.T0, asm.Zero, 2), asm.LW(asm.T1, asm.T0, 0)),
		Entry("on out of range loads", "load out of range",
			asm.LUI(asm.T0, 0x40), asm.LW(asm.T1, asm.T0, 0)),
		Entry("on out of range stores", "store out of range",
			asm.LUI(asm.T0, 0x40), asm.SW(asm.T1, asm.T0, 0)),
		Entry("on misaligned jumps", "misaligned jump", asm.JAL(asm.Zero, 6)),
		Entry("when running off the end of memory", "fetch out of range",
			asm.LUI(asm.T0, 0x20), asm.JALR(asm.Zero, asm.T0, 0)),
	)

	It("should stay halted after a trap", func() {
		boot(core, asm.EBREAK)
		runToTrap(core, 10)

		pc := core.State().PC
		tick(core)
		tick(core)

		Expect(core.State().PC).To(Equal(pc))
		Expect(core.Finished()).To(BeTrue())
	})

	It("should clear a trap on reset", func() {
		boot(core, asm.EBREAK)
		runToTrap(core, 10)

		core.SetReset(true)
		tick(core)

		Expect(core.Finished()).To(BeFalse())
		Expect(core.State().PC).To(Equal(uint32(0)))
	})

	It("should expose internal signals", func() {
		boot(core, asm.NOP, asm.EBREAK)
		tick(core)

		probes := core.Probes()

		Expect(probes).To(ContainElement(sim.Signal{Name: "pc", Width: 32, Value: 4}))
		Expect(probes).To(ContainElement(
			sim.Signal{Name: "instr", Width: 32, Value: uint64(asm.NOP)}))
		Expect(probes).To(ContainElement(sim.Signal{Name: "trap", Width: 1, Value: 0}))
	})

	It("should hand out a copy of its state", func() {
		boot(core, asm.ADDI(asm.T0, asm.Zero, 1), asm.EBREAK)
		tick(core)

		state, ok := core.Inspect().(rvcore.State)
		Expect(ok).To(BeTrue())

		Expect(state.Regs).To(HaveLen(32))
		state.Regs[asm.T0] = 99
		Expect(core.State().Regs[asm.T0]).To(Equal(uint32(1)))
	})

	It("should panic on a bad memory size", func() {
		Expect(func() { rvcore.MakeBuilder().WithMemorySize(0).Build() }).To(Panic())
		Expect(func() { rvcore.MakeBuilder().WithMemorySize(6).Build() }).To(Panic())
	})

	Context("when clocked by the driver", func() {
		countdown := []uint32{
			asm.ADDI(asm.T0, asm.Zero, 3),
			asm.ADDI(asm.T0, asm.T0, -1),
			asm.BNE(asm.T0, asm.Zero, -4),
			asm.EBREAK,
		}

		It("should finish with an exact cycle count", func() {
			copy(core.Memory(), asm.Program(countdown...))

			out := sim.Run(core, 1000)

			Expect(out.Status).To(Equal(sim.StatusFinished))
			Expect(out.Cycles).To(Equal(uint64(26)))
		})

		It("should time out when the budget is too small", func() {
			copy(core.Memory(), asm.Program(countdown...))

			out := sim.Run(core, 10)

			Expect(out.Status).To(Equal(sim.StatusTimedOut))
			Expect(out.Cycles).To(Equal(uint64(10)))
		})
	})
})
