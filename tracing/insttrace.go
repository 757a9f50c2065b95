package tracing

import (
	"io"

	"github.com/sarchlab/rvbench/sim"
)

const traceMask = 1<<sim.TraceDataWidth - 1

// InstTraceWriter writes one line of nine hex digits for every active edge
// on which the device presents a valid trace record.
type InstTraceWriter struct {
	out *output

	recorded  bool
	lastCycle uint64
	count     uint64
}

// NewInstTraceWriter creates an InstTraceWriter that writes to w.
func NewInstTraceWriter(w io.Writer) *InstTraceWriter {
	return &InstTraceWriter{out: newOutput(w)}
}

// CreateInstTraceFile creates an InstTraceWriter that writes to the file at
// path.
func CreateInstTraceFile(path string) (*InstTraceWriter, error) {
	o, err := createOutput(path)
	if err != nil {
		return nil, err
	}

	return &InstTraceWriter{out: o}, nil
}

// Func records the snapshots of active edges.
func (t *InstTraceWriter) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosActiveEdge {
		return
	}

	t.Record(ctx.Item.(sim.Snapshot))
}

// Record writes the trace record of a snapshot if it carries one. Records
// must arrive in increasing cycle order.
func (t *InstTraceWriter) Record(s sim.Snapshot) {
	if !s.TraceValid {
		return
	}

	if t.recorded && s.Cycle <= t.lastCycle {
		t.out.reject("trace: cycle %d does not follow cycle %d",
			s.Cycle, t.lastCycle)
		return
	}

	t.out.printf("%09x\n", s.TraceData&traceMask)

	t.recorded = true
	t.lastCycle = s.Cycle
	t.count++
}

// Count returns the number of records written.
func (t *InstTraceWriter) Count() uint64 {
	return t.count
}

// Flush writes the buffered lines and reports any error met so far.
func (t *InstTraceWriter) Flush() error {
	return t.out.flush()
}

// Close flushes and closes the destination. Closing twice is allowed.
func (t *InstTraceWriter) Close() error {
	return t.out.close()
}
