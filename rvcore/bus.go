package rvcore

import "encoding/binary"

func accessSize(funct3 uint32) (size uint32, ok bool) {
	switch funct3 & 0x3 {
	case 0x0:
		return 1, true
	case 0x1:
		return 2, true
	case 0x2:
		return 4, true
	default:
		return 0, false
	}
}

func isMMIO(addr uint32) bool {
	return addr == ConsoleAddr || addr == PassAddr
}

func (c *Core) checkAccess(kind string, addr, size uint32) bool {
	if addr%size != 0 {
		c.raise("misaligned %s at 0x%08x", kind, addr)
		return false
	}

	if isMMIO(addr) {
		return true
	}

	if uint64(addr)+uint64(size) > uint64(len(c.mem)) {
		c.raise("%s out of range at 0x%08x", kind, addr)
		return false
	}

	return true
}

func (c *Core) load(d decoded) bool {
	size, ok := accessSize(d.funct3)
	if !ok || d.funct3 == 0x6 || d.funct3 == 0x7 {
		c.illegal(d)
		return false
	}

	addr := c.readReg(d.rs1) + d.immI()
	if !c.checkAccess("load", addr, size) {
		return false
	}

	var v uint32

	if !isMMIO(addr) {
		v = c.readMem(addr, size)
	}

	switch d.funct3 {
	case 0x0:
		v = uint32(int32(int8(v)))
	case 0x1:
		v = uint32(int32(int16(v)))
	}

	if d.rd != 0 {
		c.regs[d.rd] = v
	}
	c.emit(TraceAddr | uint64(addr))

	return true
}

func (c *Core) store(d decoded) bool {
	size, ok := accessSize(d.funct3)
	if !ok || d.funct3 > 0x2 {
		c.illegal(d)
		return false
	}

	addr := c.readReg(d.rs1) + d.immS()
	if !c.checkAccess("store", addr, size) {
		return false
	}

	v := c.readReg(d.rs2)

	switch addr {
	case ConsoleAddr:
		_, _ = c.console.Write([]byte{byte(v)})
	case PassAddr:
		if v == PassMagic {
			c.testsPassed = true
		}
	default:
		c.writeMem(addr, size, v)
	}

	c.emit(TraceAddr | uint64(addr))

	return true
}

func (c *Core) readMem(addr, size uint32) uint32 {
	switch size {
	case 1:
		return uint32(c.mem[addr])
	case 2:
		return uint32(binary.LittleEndian.Uint16(c.mem[addr:]))
	default:
		return binary.LittleEndian.Uint32(c.mem[addr:])
	}
}

func (c *Core) writeMem(addr, size, v uint32) {
	switch size {
	case 1:
		c.mem[addr] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(c.mem[addr:], uint16(v))
	default:
		binary.LittleEndian.PutUint32(c.mem[addr:], v)
	}
}
