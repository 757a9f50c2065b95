package tracing

import (
	"io"
	"strconv"

	"github.com/sarchlab/rvbench/sim"
)

// VCDWriter dumps the pins of the device into a Value Change Dump.
//
// The header is written when the first snapshot arrives, using the signals of
// that snapshot. Later snapshots only dump the signals that have changed.
type VCDWriter struct {
	out       *output
	timescale string
	scope     string

	widths []int
	ids    []string
	values []uint64

	started  bool
	lastTime sim.VTime
}

// NewVCDWriter creates a VCDWriter that writes to w.
func NewVCDWriter(w io.Writer) *VCDWriter {
	return newVCDWriter(newOutput(w))
}

// CreateVCDFile creates a VCDWriter that writes to the file at path.
func CreateVCDFile(path string) (*VCDWriter, error) {
	o, err := createOutput(path)
	if err != nil {
		return nil, err
	}

	return newVCDWriter(o), nil
}

func newVCDWriter(o *output) *VCDWriter {
	return &VCDWriter{
		out:       o,
		timescale: "1ns",
		scope:     "testbench",
	}
}

// Func records the snapshot of every simulation step.
func (v *VCDWriter) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosStep {
		return
	}

	v.Record(ctx.Item.(sim.Snapshot))
}

// Record dumps a snapshot. Snapshots must arrive in non-decreasing time
// order; one that goes back in time is dropped and reported on Flush.
func (v *VCDWriter) Record(s sim.Snapshot) {
	signals := s.Signals()

	if !v.started {
		v.writeHeader(signals)
		v.out.printf("#%d\n$dumpvars\n", s.Time)
		for i, sig := range signals {
			v.writeValue(i, sig.Value)
		}
		v.out.printf("$end\n")

		v.started = true
		v.lastTime = s.Time

		return
	}

	if s.Time < v.lastTime {
		v.out.reject("vcd: time %d is before time %d", s.Time, v.lastTime)
		return
	}

	if len(signals) != len(v.ids) {
		v.out.reject("vcd: got %d signals at time %d, declared %d",
			len(signals), s.Time, len(v.ids))
		return
	}

	stamped := false
	for i, sig := range signals {
		if v.mask(i, sig.Value) == v.values[i] {
			continue
		}

		if !stamped && s.Time != v.lastTime {
			v.out.printf("#%d\n", s.Time)
		}
		stamped = true

		v.writeValue(i, sig.Value)
	}

	if stamped {
		v.lastTime = s.Time
	}
}

func (v *VCDWriter) writeHeader(signals []sim.Signal) {
	v.out.printf("$version rvbench $end\n")
	v.out.printf("$timescale %s $end\n", v.timescale)
	v.out.printf("$scope module %s $end\n", v.scope)

	for i, sig := range signals {
		id := vcdIdentifier(i)

		v.widths = append(v.widths, sig.Width)
		v.ids = append(v.ids, id)
		v.values = append(v.values, 0)

		if sig.Width == 1 {
			v.out.printf("$var wire 1 %s %s $end\n", id, sig.Name)
		} else {
			v.out.printf("$var wire %d %s %s [%d:0] $end\n",
				sig.Width, id, sig.Name, sig.Width-1)
		}
	}

	v.out.printf("$upscope $end\n$enddefinitions $end\n")
}

func (v *VCDWriter) mask(i int, value uint64) uint64 {
	if v.widths[i] >= 64 {
		return value
	}

	return value & (1<<v.widths[i] - 1)
}

func (v *VCDWriter) writeValue(i int, value uint64) {
	value = v.mask(i, value)
	v.values[i] = value

	if v.widths[i] == 1 {
		v.out.printf("%d%s\n", value, v.ids[i])
		return
	}

	v.out.printf("b%s %s\n", strconv.FormatUint(value, 2), v.ids[i])
}

// Flush writes the buffered text and reports any error met so far.
func (v *VCDWriter) Flush() error {
	return v.out.flush()
}

// Close flushes and closes the destination. Closing twice is allowed.
func (v *VCDWriter) Close() error {
	return v.out.close()
}

// vcdIdentifier returns the short identifier of the n-th variable, using the
// printable characters from '!' to '~'.
func vcdIdentifier(n int) string {
	const base = '~' - '!' + 1

	var id []byte
	for {
		id = append(id, byte('!'+n%base))
		n /= base
		if n == 0 {
			return string(id)
		}
	}
}
