// Package loader places the loadable segments of an ELF32 image into the flat
// memory of a device.
package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
)

// A Segment is one loadable region of an image.
type Segment struct {
	Index       int
	Offset      uint32
	LoadAddress uint32
	FileSize    uint32
	MemorySize  uint32
}

// End returns the first address after the segment in memory.
func (s Segment) End() uint64 {
	return uint64(s.LoadAddress) + uint64(s.MemorySize)
}

// An Image describes what has been loaded.
type Image struct {
	Path     string
	Entry    uint32
	Machine  elf.Machine
	Segments []Segment
}

// A Loader copies ELF images into memory.
type Loader struct {
	logger       *log.Logger
	checkOverlap bool
}

// Builder can build loaders.
type Builder struct {
	logger       *log.Logger
	checkOverlap bool
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{}
}

// WithLogger sets the logger that receives the informational output and the
// warnings of the loader.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// WithOverlapCheck makes the loader reject images whose segments overlap in
// memory. Overlaps are accepted by default.
func (b Builder) WithOverlapCheck() Builder {
	b.checkOverlap = true
	return b
}

// Build creates a new loader.
func (b Builder) Build() *Loader {
	l := &Loader{
		logger:       b.logger,
		checkOverlap: b.checkOverlap,
	}

	if l.logger == nil {
		l.logger = log.New(os.Stdout, "", 0)
	}

	return l
}

// Load loads the image at path into mem with a default loader.
func Load(path string, mem []byte) (*Image, error) {
	return MakeBuilder().Build().Load(path, mem)
}

// Load maps the image at path and copies its loadable segments into mem. The
// whole of mem is cleared first. If an error is returned after the copy has
// started, the segments copied before the failing one stay in mem.
func (l *Loader) Load(path string, mem []byte) (*Image, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, newError(ErrIOFailure, path, err)
	}
	defer release()

	f, err := l.parse(path, data)
	if err != nil {
		return nil, err
	}

	if f.Machine != elf.EM_RISCV {
		l.logger.Printf("Warning: ELF file is not for RISC-V (machine type: %d)",
			f.Machine)
	}

	clear(mem)

	img := &Image{
		Path:    path,
		Entry:   f.Entry,
		Machine: f.Machine,
	}

	l.logger.Printf("Loading ELF file: %s", path)
	l.logger.Printf("Entry point: 0x%08x", img.Entry)

	for i, prog := range f.Progs {
		if elf.ProgType(prog.Type) != elf.PT_LOAD {
			continue
		}

		seg := segmentOf(i, prog)

		l.logger.Printf("  Segment %d: addr=0x%08x size=0x%08x (file=0x%08x)",
			i, seg.LoadAddress, seg.MemorySize, seg.FileSize)

		if err := l.place(path, data, mem, seg, img.Segments); err != nil {
			return nil, err
		}

		img.Segments = append(img.Segments, seg)
	}

	l.logger.Printf("ELF loaded successfully")

	return img, nil
}

// header is what the loader reads from an image. Section headers, the
// version fields and the byte order marker are never looked at.
type header struct {
	Entry   uint32
	Machine elf.Machine
	Progs   []elf.Prog32
}

func (l *Loader) parse(path string, data []byte) (*header, error) {
	if len(data) < len(elf.ELFMAG) ||
		!bytes.Equal(data[:len(elf.ELFMAG)], []byte(elf.ELFMAG)) {
		return nil, newError(ErrNotAnImage, path, nil)
	}

	if len(data) <= elf.EI_CLASS {
		return nil, newError(ErrNotAnImage, path, nil)
	}

	class := elf.Class(data[elf.EI_CLASS])
	if class != elf.ELFCLASS32 {
		return nil, &LoadError{
			Kind:    ErrUnsupportedClass,
			Path:    path,
			Segment: noSegment,
			Detail:  fmt.Sprintf("class is %v", class),
		}
	}

	var ehdr elf.Header32

	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &ehdr)
	if err != nil {
		return nil, newError(ErrNotAnImage, path, err)
	}

	progs, err := readProgs(data, ehdr)
	if err != nil {
		return nil, &LoadError{
			Kind:    ErrNotAnImage,
			Path:    path,
			Segment: noSegment,
			Detail:  "program header table is beyond the end of the file",
			Err:     err,
		}
	}

	return &header{
		Entry:   ehdr.Entry,
		Machine: elf.Machine(ehdr.Machine),
		Progs:   progs,
	}, nil
}

func readProgs(data []byte, ehdr elf.Header32) ([]elf.Prog32, error) {
	if ehdr.Phnum == 0 {
		return nil, nil
	}

	if uint64(ehdr.Phoff) > uint64(len(data)) {
		return nil, fmt.Errorf("offset 0x%08x", ehdr.Phoff)
	}

	progs := make([]elf.Prog32, ehdr.Phnum)
	r := bytes.NewReader(data[ehdr.Phoff:])

	if err := binary.Read(r, binary.LittleEndian, progs); err != nil {
		return nil, err
	}

	return progs, nil
}

func segmentOf(index int, prog elf.Prog32) Segment {
	addr := prog.Paddr
	if addr == 0 {
		addr = prog.Vaddr
	}

	return Segment{
		Index:       index,
		Offset:      prog.Off,
		LoadAddress: addr,
		FileSize:    prog.Filesz,
		MemorySize:  prog.Memsz,
	}
}

func (l *Loader) place(
	path string,
	data, mem []byte,
	seg Segment,
	placed []Segment,
) error {
	capacity := uint64(len(mem))

	if uint64(seg.LoadAddress) >= capacity || seg.End() > capacity {
		return newSegmentError(ErrSegmentOutOfBounds, path, seg.Index,
			"0x%08x + 0x%08x > 0x%08x",
			seg.LoadAddress, seg.MemorySize, capacity)
	}

	if seg.FileSize > seg.MemorySize {
		return newSegmentError(ErrNotAnImage, path, seg.Index,
			"file size 0x%08x is larger than memory size 0x%08x",
			seg.FileSize, seg.MemorySize)
	}

	fileEnd := uint64(seg.Offset) + uint64(seg.FileSize)
	if fileEnd > uint64(len(data)) {
		return newSegmentError(ErrNotAnImage, path, seg.Index,
			"file range 0x%08x + 0x%08x is beyond the end of the file",
			seg.Offset, seg.FileSize)
	}

	if l.checkOverlap {
		if other, ok := overlapping(seg, placed); ok {
			return newSegmentError(ErrSegmentOverlap, path, seg.Index,
				"overlaps segment %d", other.Index)
		}
	}

	dst := mem[seg.LoadAddress:seg.End()]
	n := copy(dst, data[seg.Offset:fileEnd])
	clear(dst[n:])

	return nil
}

func overlapping(seg Segment, placed []Segment) (Segment, bool) {
	if seg.MemorySize == 0 {
		return Segment{}, false
	}

	for _, p := range placed {
		if p.MemorySize == 0 {
			continue
		}

		if uint64(seg.LoadAddress) < p.End() &&
			uint64(p.LoadAddress) < seg.End() {
			return p, true
		}
	}

	return Segment{}, false
}
