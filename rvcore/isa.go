package rvcore

// Major opcodes.
const (
	opLoad    = 0x03
	opMiscMem = 0x0f
	opImm     = 0x13
	opAUIPC   = 0x17
	opStore   = 0x23
	opReg     = 0x33
	opLUI     = 0x37
	opBranch  = 0x63
	opJALR    = 0x67
	opJAL     = 0x6f
	opSystem  = 0x73
)

// Counter CSRs readable with rdcycle and friends.
const (
	csrCycle    = 0xc00
	csrTime     = 0xc01
	csrInstret  = 0xc02
	csrCycleH   = 0xc80
	csrTimeH    = 0xc81
	csrInstretH = 0xc82
)

const (
	instECALL  = 0x00000073
	instEBREAK = 0x00100073
)

type decoded struct {
	raw    uint32
	opcode uint32
	rd     uint32
	funct3 uint32
	rs1    uint32
	rs2    uint32
	funct7 uint32
}

func decode(inst uint32) decoded {
	return decoded{
		raw:    inst,
		opcode: inst & 0x7f,
		rd:     (inst >> 7) & 0x1f,
		funct3: (inst >> 12) & 0x7,
		rs1:    (inst >> 15) & 0x1f,
		rs2:    (inst >> 20) & 0x1f,
		funct7: (inst >> 25) & 0x7f,
	}
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func (d decoded) immI() uint32 { return uint32(signExtend(d.raw>>20, 12)) }

func (d decoded) immS() uint32 {
	low := (d.raw >> 7) & 0x1f
	high := (d.raw >> 25) & 0x7f

	return uint32(signExtend(high<<5|low, 12))
}

func (d decoded) immB() uint32 {
	imm := (d.raw>>31)&1<<12 |
		(d.raw>>25)&0x3f<<5 |
		(d.raw>>8)&0xf<<1 |
		(d.raw>>7)&1<<11

	return uint32(signExtend(imm, 13))
}

func (d decoded) immU() uint32 { return d.raw & 0xfffff000 }

func (d decoded) immJ() uint32 {
	imm := (d.raw>>31)&1<<20 |
		(d.raw>>21)&0x3ff<<1 |
		(d.raw>>20)&1<<11 |
		(d.raw>>12)&0xff<<12

	return uint32(signExtend(imm, 21))
}

func (d decoded) csr() uint32 { return d.raw >> 20 }
