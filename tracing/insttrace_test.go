package tracing

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvbench/sim"
)

var _ = Describe("InstTraceWriter", func() {
	var (
		buf    *bytes.Buffer
		writer *InstTraceWriter
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		writer = NewInstTraceWriter(buf)
	})

	edge := func(cycle uint64, data uint64) sim.HookCtx {
		return sim.HookCtx{
			Pos: sim.HookPosActiveEdge,
			Item: sim.Snapshot{
				Cycle:      cycle,
				TraceValid: true,
				TraceData:  data,
			},
		}
	}

	It("should write nine hex digits per record", func() {
		writer.Func(edge(0, 0x2a))
		writer.Func(edge(3, 0x1_0000_0008))
		writer.Func(edge(7, 0xff_ffff_ffff))

		Expect(writer.Flush()).To(Succeed())
		Expect(buf.String()).To(Equal("00000002a\n100000008\nfffffffff\n"))
		Expect(writer.Count()).To(Equal(uint64(3)))
	})

	It("should skip edges without a valid record", func() {
		writer.Func(sim.HookCtx{
			Pos:  sim.HookPosActiveEdge,
			Item: sim.Snapshot{Cycle: 1, TraceData: 0x5},
		})

		Expect(writer.Flush()).To(Succeed())
		Expect(buf.Len()).To(BeZero())
	})

	It("should ignore steps that are not active edges", func() {
		writer.Func(sim.HookCtx{
			Pos:  sim.HookPosStep,
			Item: sim.Snapshot{TraceValid: true, TraceData: 0x5},
		})

		Expect(writer.Flush()).To(Succeed())
		Expect(buf.Len()).To(BeZero())
	})

	It("should reject records out of cycle order", func() {
		writer.Func(edge(5, 0x1))
		writer.Func(edge(5, 0x2))
		writer.Func(edge(4, 0x3))
		writer.Func(edge(6, 0x4))

		Expect(writer.Flush()).To(MatchError(
			ContainSubstring("cycle 5 does not follow cycle 5")))
		Expect(buf.String()).To(Equal("000000001\n000000004\n"))
	})

	It("should trace a program in retirement order", func() {
		out := runProgram(countdown, writer)

		Expect(out.Status).To(Equal(sim.StatusFinished))
		Expect(buf.String()).To(Equal(
			"000000003\n" +
				"000000002\n" +
				"100000004\n" +
				"000000001\n" +
				"100000004\n" +
				"000000000\n"))
	})

	It("should write to a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run.trace")

		writer, err := CreateInstTraceFile(path)
		Expect(err).NotTo(HaveOccurred())

		writer.Func(edge(1, 0xabc))
		Expect(writer.Close()).To(Succeed())
		Expect(writer.Close()).To(Succeed())

		writer.Func(edge(2, 0xdef))

		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("000000abc\n"))
	})
})
