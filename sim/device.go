package sim

// A Device is a cycle-evaluated hardware model that the Driver can clock.
//
// The Driver only sees the pins listed here. Everything else, including how
// the device uses its memory after loading, is internal to the device.
type Device interface {
	// SetClock drives the clock input to the given level.
	SetClock(high bool)

	// SetReset drives the reset input. Reset is active while asserted.
	SetReset(asserted bool)

	// Eval settles the device once for the current input levels.
	Eval()

	// Finished reports whether the device has requested the simulation to
	// stop.
	Finished() bool

	// TraceValid reports whether TraceData carries a record this cycle.
	TraceValid() bool

	// TraceData returns the value on the trace-data pins.
	TraceData() uint64

	// Memory returns the raw backing memory of the device so that a program
	// image can be placed into it before the simulation starts.
	Memory() []byte
}

// A Signal is a named value sampled from a device.
type Signal struct {
	Name  string
	Width int
	Value uint64
}

// A SignalProber is a device that can expose internal signals in addition to
// its pins. Waveform recorders dump them next to the pins.
type SignalProber interface {
	Probes() []Signal
}

// A Snapshot is the state of the device pins at one simulation step.
type Snapshot struct {
	Time          VTime
	Cycle         uint64
	Clock         bool
	ResetAsserted bool
	TraceValid    bool
	TraceData     uint64
	Probes        []Signal
}

// Signals lists the pins of the snapshot followed by the probed signals, in a
// stable order.
func (s Snapshot) Signals() []Signal {
	signals := make([]Signal, 0, 4+len(s.Probes))
	signals = append(signals,
		Signal{Name: "clk", Width: 1, Value: boolToBit(s.Clock)},
		Signal{Name: "resetn", Width: 1, Value: boolToBit(!s.ResetAsserted)},
		Signal{Name: "trace_valid", Width: 1, Value: boolToBit(s.TraceValid)},
		Signal{Name: "trace_data", Width: TraceDataWidth, Value: s.TraceData},
	)
	signals = append(signals, s.Probes...)

	return signals
}

// TraceDataWidth is the number of bits on the trace-data pins.
const TraceDataWidth = 36

func boolToBit(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
