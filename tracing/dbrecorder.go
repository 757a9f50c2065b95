package tracing

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvbench/datarecording"
	"github.com/sarchlab/rvbench/sim"
)

// Names of the tables written by DBRecorder.
const (
	InstTraceTable  = "inst_trace"
	RunSummaryTable = "run_summary"
)

// InstTraceEntry is a row of the instruction trace table.
type InstTraceEntry struct {
	Cycle uint64
	Time  uint64
	Value uint64
	Kind  string
}

// RunSummaryEntry is the row written when a run ends.
type RunSummaryEntry struct {
	Image  string
	Cycles uint64
	Time   uint64
	Status string
}

// TraceKind classifies a trace record by its flag bits.
func TraceKind(data uint64) string {
	switch (data & traceMask) >> 32 {
	case 0x0:
		return "reg"
	case 0x1:
		return "branch"
	case 0x2:
		return "addr"
	default:
		return "other"
	}
}

// DBRecorder stores the instruction trace and the outcome of a run into a
// DataRecorder.
type DBRecorder struct {
	recorder datarecording.DataRecorder
	image    string
	err      error
}

// NewDBRecorder creates the trace tables in the recorder. The image is the
// path of the program being simulated and goes into the summary row.
func NewDBRecorder(
	recorder datarecording.DataRecorder,
	image string,
) (*DBRecorder, error) {
	err := recorder.CreateTable(InstTraceTable, InstTraceEntry{})
	if err != nil {
		return nil, err
	}

	err = recorder.CreateTable(RunSummaryTable, RunSummaryEntry{})
	if err != nil {
		return nil, err
	}

	return &DBRecorder{recorder: recorder, image: image}, nil
}

// Func records valid trace records on active edges and the outcome when the
// run ends.
func (r *DBRecorder) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosActiveEdge:
		s := ctx.Item.(sim.Snapshot)
		if !s.TraceValid {
			return
		}

		r.insert(InstTraceTable, InstTraceEntry{
			Cycle: s.Cycle,
			Time:  uint64(s.Time),
			Value: s.TraceData & traceMask,
			Kind:  TraceKind(s.TraceData),
		})
	case sim.HookPosRunEnd:
		out := ctx.Item.(sim.Outcome)

		r.insert(RunSummaryTable, RunSummaryEntry{
			Image:  r.image,
			Cycles: out.Cycles,
			Time:   uint64(out.Time),
			Status: out.Status.String(),
		})
	}
}

func (r *DBRecorder) insert(table string, entry any) {
	if r.err != nil {
		return
	}

	if err := r.recorder.InsertData(table, entry); err != nil {
		r.err = fmt.Errorf("recording %s: %w", table, err)
	}
}

// Flush writes the buffered rows into the database.
func (r *DBRecorder) Flush() error {
	if r.err != nil {
		return r.err
	}

	return r.recorder.Flush()
}

// Close flushes and closes the underlying recorder.
func (r *DBRecorder) Close() error {
	return errors.Join(r.err, r.recorder.Close())
}
