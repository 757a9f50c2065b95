package rvcore

import (
	"fmt"
	"io"
)

// Builder can build cores.
type Builder struct {
	memorySize int
	console    io.Writer
	latency    Latency
	resetPC    uint32
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		memorySize: DefaultMemorySize,
		console:    io.Discard,
		latency:    DefaultLatency,
	}
}

// WithMemorySize sets the memory size in bytes.
func (b Builder) WithMemorySize(size int) Builder {
	b.memorySize = size
	return b
}

// WithConsole sets where the bytes stored to the console address go.
func (b Builder) WithConsole(w io.Writer) Builder {
	b.console = w
	return b
}

// WithLatency sets the instruction latencies.
func (b Builder) WithLatency(l Latency) Builder {
	b.latency = l
	return b
}

// WithResetPC sets the address that the core starts from after reset.
func (b Builder) WithResetPC(pc uint32) Builder {
	b.resetPC = pc
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.memorySize <= 0 || b.memorySize%4 != 0 {
		panic(fmt.Sprintf(
			"memory size must be a positive multiple of 4, got %d",
			b.memorySize))
	}

	if b.console == nil {
		panic("console cannot be nil")
	}
}

// Build creates a core with zeroed memory.
func (b Builder) Build() *Core {
	b.parametersMustBeValid()

	c := &Core{
		mem:           make([]byte, b.memorySize),
		console:       b.console,
		latency:       b.latency,
		resetPC:       b.resetPC,
		resetAsserted: true,
	}
	c.reset()

	return c
}
