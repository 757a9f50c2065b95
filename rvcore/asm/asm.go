// Package asm encodes RV32IM instructions and wraps them into ELF32 images.
// It is meant for building small test programs.
package asm

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Register numbers with their ABI names.
const (
	Zero uint32 = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
)

// R encodes an R-type instruction.
func R(op, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

// I encodes an I-type instruction.
func I(op, rd, f3, rs1 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xfff
	return u<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

// S encodes an S-type instruction.
func S(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xfff
	return (u>>5)&0x7f<<25 | rs2<<20 | rs1<<15 | f3<<12 | u&0x1f<<7 | op
}

// B encodes a B-type instruction. imm is the byte offset of the target.
func B(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12)&1<<31 | (u>>5)&0x3f<<25 | rs2<<20 | rs1<<15 |
		f3<<12 | (u>>1)&0xf<<8 | (u>>11)&1<<7 | op
}

// U encodes a U-type instruction. imm20 is the upper 20 bits.
func U(op, rd, imm20 uint32) uint32 {
	return imm20<<12 | rd<<7 | op
}

// J encodes a J-type instruction. imm is the byte offset of the target.
func J(op, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20)&1<<31 | (u>>1)&0x3ff<<21 | (u>>11)&1<<20 |
		(u>>12)&0xff<<12 | rd<<7 | op
}

// The functions below encode single instructions by mnemonic.
func ADDI(rd, rs1 uint32, imm int32) uint32 { return I(0x13, rd, 0, rs1, imm) }
func ANDI(rd, rs1 uint32, imm int32) uint32 { return I(0x13, rd, 7, rs1, imm) }
func SLLI(rd, rs1, sh uint32) uint32        { return I(0x13, rd, 1, rs1, int32(sh)) }
func SRAI(rd, rs1, sh uint32) uint32        { return I(0x13, rd, 5, rs1, int32(0x400|sh)) }
func ADD(rd, rs1, rs2 uint32) uint32        { return R(0x33, rd, 0, rs1, rs2, 0) }
func SUB(rd, rs1, rs2 uint32) uint32        { return R(0x33, rd, 0, rs1, rs2, 0x20) }
func MUL(rd, rs1, rs2 uint32) uint32        { return R(0x33, rd, 0, rs1, rs2, 1) }
func MULHU(rd, rs1, rs2 uint32) uint32      { return R(0x33, rd, 3, rs1, rs2, 1) }
func DIV(rd, rs1, rs2 uint32) uint32        { return R(0x33, rd, 4, rs1, rs2, 1) }
func REM(rd, rs1, rs2 uint32) uint32        { return R(0x33, rd, 6, rs1, rs2, 1) }
func LUI(rd, imm20 uint32) uint32           { return U(0x37, rd, imm20) }
func AUIPC(rd, imm20 uint32) uint32         { return U(0x17, rd, imm20) }
func JAL(rd uint32, imm int32) uint32       { return J(0x6f, rd, imm) }
func JALR(rd, rs1 uint32, imm int32) uint32 { return I(0x67, rd, 0, rs1, imm) }
func BEQ(rs1, rs2 uint32, imm int32) uint32 { return B(0x63, 0, rs1, rs2, imm) }
func BNE(rs1, rs2 uint32, imm int32) uint32 { return B(0x63, 1, rs1, rs2, imm) }
func BLT(rs1, rs2 uint32, imm int32) uint32 { return B(0x63, 4, rs1, rs2, imm) }
func LB(rd, rs1 uint32, imm int32) uint32   { return I(0x03, rd, 0, rs1, imm) }
func LH(rd, rs1 uint32, imm int32) uint32   { return I(0x03, rd, 1, rs1, imm) }
func LW(rd, rs1 uint32, imm int32) uint32   { return I(0x03, rd, 2, rs1, imm) }
func LBU(rd, rs1 uint32, imm int32) uint32  { return I(0x03, rd, 4, rs1, imm) }
func SB(rs2, rs1 uint32, imm int32) uint32  { return S(0x23, 0, rs1, rs2, imm) }
func SH(rs2, rs1 uint32, imm int32) uint32  { return S(0x23, 1, rs1, rs2, imm) }
func SW(rs2, rs1 uint32, imm int32) uint32  { return S(0x23, 2, rs1, rs2, imm) }

// CSRR reads a CSR into rd.
func CSRR(rd, csr uint32) uint32 { return csr<<20 | 2<<12 | rd<<7 | 0x73 }

// Instructions without operands.
const (
	NOP    uint32 = 0x00000013
	FENCE  uint32 = 0x0ff0000f
	ECALL  uint32 = 0x00000073
	EBREAK uint32 = 0x00100073
)

// Program lays out instruction words as little-endian bytes.
func Program(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}

	return b
}

// A Segment is a loadable segment of an image.
type Segment struct {
	Addr    uint32
	Data    []byte
	MemSize uint32
}

// ELF lays out a little-endian RISC-V ELF32 executable with one PT_LOAD
// program header per segment. A MemSize smaller than the data is raised to
// the data size.
func ELF(entry uint32, segments ...Segment) []byte {
	const (
		ehdrSize = 52
		phdrSize = 32
	)

	le := binary.LittleEndian
	buf := new(bytes.Buffer)

	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F'}
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	buf.Write(ident[:])

	header := []any{
		uint16(elf.ET_EXEC),
		uint16(elf.EM_RISCV),
		uint32(elf.EV_CURRENT),
		entry,
		uint32(ehdrSize),
		uint32(0),
		uint32(0),
		uint16(ehdrSize),
		uint16(phdrSize),
		uint16(len(segments)),
		uint16(40),
		uint16(0),
		uint16(0),
	}
	for _, field := range header {
		_ = binary.Write(buf, le, field)
	}

	offset := uint32(ehdrSize + phdrSize*len(segments))
	for _, s := range segments {
		memSize := max(s.MemSize, uint32(len(s.Data)))

		phdr := []uint32{
			uint32(elf.PT_LOAD),
			offset,
			s.Addr,
			s.Addr,
			uint32(len(s.Data)),
			memSize,
			uint32(elf.PF_R | elf.PF_W | elf.PF_X),
			4,
		}
		_ = binary.Write(buf, le, phdr)

		offset += uint32(len(s.Data))
	}

	for _, s := range segments {
		buf.Write(s.Data)
	}

	return buf.Bytes()
}
