// Package rvcore provides a cycle-evaluated RV32IM core that can be clocked by
// the simulation driver.
//
// The core acts on rising clock edges only. It resets while reset is asserted
// and otherwise issues one instruction whenever the previous one has used up
// its latency. Retired instructions are reported on the trace port the way
// the PicoRV32 trace interface does it. A trap stops the core and asks the
// simulation to finish.
package rvcore

import (
	"io"

	"github.com/sarchlab/rvbench/sim"
)

// Memory-mapped addresses understood by the core.
const (
	ConsoleAddr uint32 = 0x1000_0000
	PassAddr    uint32 = 0x2000_0000
	PassMagic   uint32 = 123456789
)

// DefaultMemorySize is the size of the memory of the core in bytes.
const DefaultMemorySize = 128 * 1024

// Flags on the upper four bits of a trace record.
const (
	TraceBranch uint64 = 0x1 << 32
	TraceAddr   uint64 = 0x2 << 32
	traceMask   uint64 = 1<<sim.TraceDataWidth - 1
)

// Latency lists the number of cycles each kind of instruction occupies the
// core.
type Latency struct {
	ALU         int
	Load        int
	Store       int
	Branch      int
	BranchTaken int
	Jump        int
	JumpReg     int
	Mul         int
	Div         int
	CSR         int
}

// DefaultLatency approximates a non-pipelined PicoRV32.
var DefaultLatency = Latency{
	ALU:         3,
	Load:        5,
	Store:       5,
	Branch:      3,
	BranchTaken: 5,
	Jump:        3,
	JumpReg:     6,
	Mul:         5,
	Div:         36,
	CSR:         3,
}

// State is a copy of the architectural state of the core.
type State struct {
	PC          uint32
	Instr       uint32
	Regs        []uint32
	Cycle       uint64
	Instret     uint64
	Trap        bool
	TrapCause   string
	TestsPassed bool
}

// Core is an RV32IM core with its memory.
type Core struct {
	mem     []byte
	console io.Writer
	latency Latency
	resetPC uint32

	clk           bool
	lastClk       bool
	resetAsserted bool

	regs        [32]uint32
	pc          uint32
	instr       uint32
	wait        int
	cycle       uint64
	instret     uint64
	trap        bool
	trapCause   string
	testsPassed bool

	traceValid bool
	traceData  uint64
}

// SetClock drives the clock input.
func (c *Core) SetClock(high bool) {
	c.clk = high
}

// SetReset drives the reset input.
func (c *Core) SetReset(asserted bool) {
	c.resetAsserted = asserted
}

// Eval updates the core for the current clock and reset levels.
func (c *Core) Eval() {
	rising := c.clk && !c.lastClk
	c.lastClk = c.clk

	if !rising {
		return
	}

	if c.resetAsserted {
		c.reset()
		return
	}

	c.traceValid = false

	if c.trap {
		return
	}

	c.cycle++

	if c.wait > 0 {
		c.wait--
		return
	}

	c.wait = c.execute() - 1
	if c.wait < 0 {
		c.wait = 0
	}
}

func (c *Core) reset() {
	c.regs = [32]uint32{}
	c.pc = c.resetPC
	c.instr = 0
	c.wait = 0
	c.cycle = 0
	c.instret = 0
	c.trap = false
	c.trapCause = ""
	c.testsPassed = false
	c.traceValid = false
	c.traceData = 0
}

// Finished tells if the core has trapped.
func (c *Core) Finished() bool {
	return c.trap
}

// TraceValid tells if the trace port carries a record.
func (c *Core) TraceValid() bool {
	return c.traceValid
}

// TraceData returns the value on the trace port.
func (c *Core) TraceData() uint64 {
	return c.traceData
}

// Memory returns the memory of the core.
func (c *Core) Memory() []byte {
	return c.mem
}

// Probes returns internal signals for waveform dumps.
func (c *Core) Probes() []sim.Signal {
	return []sim.Signal{
		{Name: "pc", Width: 32, Value: uint64(c.pc)},
		{Name: "instr", Width: 32, Value: uint64(c.instr)},
		{Name: "trap", Width: 1, Value: boolBit(c.trap)},
	}
}

// Inspect returns a copy of the architectural state.
func (c *Core) Inspect() any {
	return c.State()
}

// State returns a copy of the architectural state.
func (c *Core) State() State {
	return State{
		PC:          c.pc,
		Instr:       c.instr,
		Regs:        append([]uint32(nil), c.regs[:]...),
		Cycle:       c.cycle,
		Instret:     c.instret,
		Trap:        c.trap,
		TrapCause:   c.trapCause,
		TestsPassed: c.testsPassed,
	}
}

// TestsPassed tells if the program has written the pass marker.
func (c *Core) TestsPassed() bool {
	return c.testsPassed
}

// TrapCause describes why the core trapped. It is empty if the core has not
// trapped.
func (c *Core) TrapCause() string {
	return c.trapCause
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
