package rvcore

import (
	"encoding/binary"
	"fmt"
	"math"
)

func (c *Core) readReg(i uint32) uint32 {
	if i == 0 {
		return 0
	}

	return c.regs[i]
}

func (c *Core) writeReg(i, v uint32) {
	if i == 0 {
		return
	}

	c.regs[i] = v
	c.emit(uint64(v))
}

func (c *Core) emit(data uint64) {
	c.traceValid = true
	c.traceData = data & traceMask
}

func (c *Core) raise(format string, args ...any) int {
	c.trap = true
	c.trapCause = fmt.Sprintf(format, args...)
	c.traceValid = false

	return 1
}

// execute runs the instruction at pc and returns the number of cycles it
// takes.
func (c *Core) execute() int {
	if c.pc%4 != 0 {
		return c.raise("misaligned fetch at 0x%08x", c.pc)
	}

	if uint64(c.pc)+4 > uint64(len(c.mem)) {
		return c.raise("fetch out of range at 0x%08x", c.pc)
	}

	inst := binary.LittleEndian.Uint32(c.mem[c.pc:])
	c.instr = inst
	d := decode(inst)

	next := c.pc + 4
	cycles := c.latency.ALU

	switch d.opcode {
	case opLUI:
		c.writeReg(d.rd, d.immU())
	case opAUIPC:
		c.writeReg(d.rd, c.pc+d.immU())
	case opJAL:
		next = c.pc + d.immJ()
		c.writeReg(d.rd, c.pc+4)
		c.emit(TraceBranch | uint64(next))
		cycles = c.latency.Jump
	case opJALR:
		next = (c.readReg(d.rs1) + d.immI()) &^ 1
		c.writeReg(d.rd, c.pc+4)
		c.emit(TraceBranch | uint64(next))
		cycles = c.latency.JumpReg
	case opBranch:
		taken, ok := c.branchTaken(d)
		if !ok {
			return c.illegal(d)
		}

		cycles = c.latency.Branch
		if taken {
			next = c.pc + d.immB()
			c.emit(TraceBranch | uint64(next))
			cycles = c.latency.BranchTaken
		}
	case opLoad:
		if !c.load(d) {
			return 1
		}
		cycles = c.latency.Load
	case opStore:
		if !c.store(d) {
			return 1
		}
		cycles = c.latency.Store
	case opImm:
		v, ok := c.aluImm(d)
		if !ok {
			return c.illegal(d)
		}
		c.writeReg(d.rd, v)
	case opReg:
		v, n, ok := c.aluReg(d)
		if !ok {
			return c.illegal(d)
		}
		c.writeReg(d.rd, v)
		cycles = n
	case opMiscMem:
		// FENCE and FENCE.I have nothing to order in this core.
	case opSystem:
		return c.system(d)
	default:
		return c.illegal(d)
	}

	if next%4 != 0 {
		return c.raise("misaligned jump from 0x%08x to 0x%08x", c.pc, next)
	}

	c.pc = next
	c.instret++

	return cycles
}

func (c *Core) illegal(d decoded) int {
	return c.raise("illegal instruction 0x%08x at 0x%08x", d.raw, c.pc)
}

func (c *Core) branchTaken(d decoded) (taken, ok bool) {
	a := c.readReg(d.rs1)
	b := c.readReg(d.rs2)

	switch d.funct3 {
	case 0x0:
		return a == b, true
	case 0x1:
		return a != b, true
	case 0x4:
		return int32(a) < int32(b), true
	case 0x5:
		return int32(a) >= int32(b), true
	case 0x6:
		return a < b, true
	case 0x7:
		return a >= b, true
	default:
		return false, false
	}
}

func (c *Core) aluImm(d decoded) (uint32, bool) {
	a := c.readReg(d.rs1)
	imm := d.immI()
	shamt := imm & 0x1f

	switch d.funct3 {
	case 0x0:
		return a + imm, true
	case 0x2:
		return boolWord(int32(a) < int32(imm)), true
	case 0x3:
		return boolWord(a < imm), true
	case 0x4:
		return a ^ imm, true
	case 0x6:
		return a | imm, true
	case 0x7:
		return a & imm, true
	case 0x1:
		if d.funct7 != 0 {
			return 0, false
		}
		return a << shamt, true
	case 0x5:
		switch d.funct7 {
		case 0x00:
			return a >> shamt, true
		case 0x20:
			return uint32(int32(a) >> shamt), true
		}
	}

	return 0, false
}

func (c *Core) aluReg(d decoded) (v uint32, cycles int, ok bool) {
	a := c.readReg(d.rs1)
	b := c.readReg(d.rs2)

	if d.funct7 == 0x01 {
		return c.mulDiv(d.funct3, a, b)
	}

	cycles = c.latency.ALU

	switch {
	case d.funct7 == 0x00:
		switch d.funct3 {
		case 0x0:
			return a + b, cycles, true
		case 0x1:
			return a << (b & 0x1f), cycles, true
		case 0x2:
			return boolWord(int32(a) < int32(b)), cycles, true
		case 0x3:
			return boolWord(a < b), cycles, true
		case 0x4:
			return a ^ b, cycles, true
		case 0x5:
			return a >> (b & 0x1f), cycles, true
		case 0x6:
			return a | b, cycles, true
		case 0x7:
			return a & b, cycles, true
		}
	case d.funct7 == 0x20 && d.funct3 == 0x0:
		return a - b, cycles, true
	case d.funct7 == 0x20 && d.funct3 == 0x5:
		return uint32(int32(a) >> (b & 0x1f)), cycles, true
	}

	return 0, 0, false
}

func (c *Core) mulDiv(funct3, a, b uint32) (uint32, int, bool) {
	mul := c.latency.Mul
	div := c.latency.Div

	switch funct3 {
	case 0x0:
		return a * b, mul, true
	case 0x1:
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32), mul, true
	case 0x2:
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32), mul, true
	case 0x3:
		return uint32(uint64(a) * uint64(b) >> 32), mul, true
	case 0x4:
		return divSigned(a, b), div, true
	case 0x5:
		if b == 0 {
			return math.MaxUint32, div, true
		}
		return a / b, div, true
	case 0x6:
		return remSigned(a, b), div, true
	case 0x7:
		if b == 0 {
			return a, div, true
		}
		return a % b, div, true
	}

	return 0, 0, false
}

func divSigned(a, b uint32) uint32 {
	x, y := int32(a), int32(b)

	switch {
	case y == 0:
		return math.MaxUint32
	case x == math.MinInt32 && y == -1:
		return a
	default:
		return uint32(x / y)
	}
}

func remSigned(a, b uint32) uint32 {
	x, y := int32(a), int32(b)

	switch {
	case y == 0:
		return a
	case x == math.MinInt32 && y == -1:
		return 0
	default:
		return uint32(x % y)
	}
}

func (c *Core) system(d decoded) int {
	switch d.raw {
	case instECALL:
		return c.raise("ecall at 0x%08x", c.pc)
	case instEBREAK:
		return c.raise("ebreak at 0x%08x", c.pc)
	}

	// Only reading the counters with CSRRS rd, csr, x0 is supported.
	if d.funct3 != 0x2 || d.rs1 != 0 {
		return c.illegal(d)
	}

	var v uint32

	switch d.csr() {
	case csrCycle, csrTime:
		v = uint32(c.cycle)
	case csrCycleH, csrTimeH:
		v = uint32(c.cycle >> 32)
	case csrInstret:
		v = uint32(c.instret)
	case csrInstretH:
		v = uint32(c.instret >> 32)
	default:
		return c.illegal(d)
	}

	c.writeReg(d.rd, v)
	c.pc += 4
	c.instret++

	return c.latency.CSR
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}
