package sim

import (
	"errors"
	"fmt"
	"io"
)

// Status is the state of a simulation run.
type Status int

// The states of a simulation run. Finished and TimedOut are terminal.
const (
	StatusResetting Status = iota
	StatusRunning
	StatusFinished
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusResetting:
		return "RESETTING"
	case StatusRunning:
		return "RUNNING"
	case StatusFinished:
		return "FINISHED"
	case StatusTimedOut:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal tells if no more steps follow the status.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusTimedOut
}

// Outcome is the result of a simulation run.
type Outcome struct {
	Cycles uint64
	Time   VTime
	Status Status

	// FlushErr collects the errors reported by the sinks when they were
	// flushed at the end of the run.
	FlushErr error
}

// A Sink is a hook that buffers what it records. The Driver flushes all its
// sinks when a run ends, no matter how it ends.
type Sink interface {
	Hook
	Flush() error
}

// A Driver clocks a device through the reset sequence and runs it until the
// device finishes or the cycle budget runs out.
type Driver struct {
	*HookableBase

	device  Device
	clock   *Clock
	status  Status
	timeout uint64
	sinks   []Sink

	progress         io.Writer
	progressInterval uint64
}

// Device returns the device driven by the driver.
func (d *Driver) Device() Device {
	return d.device
}

// Clock returns the clock state of the driver.
func (d *Driver) Clock() *Clock {
	return d.clock
}

// Status returns the current state of the run.
func (d *Driver) Status() Status {
	return d.status
}

// Timeout returns the cycle budget.
func (d *Driver) Timeout() uint64 {
	return d.timeout
}

// AddSink registers a sink. The sink receives the same hook calls as any
// other hook and is flushed when the run ends.
func (d *Driver) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
	d.AcceptHook(s)
}

// Run runs the simulation loop to completion.
func (d *Driver) Run() (out Outcome) {
	defer func() {
		out.FlushErr = d.flushSinks()
	}()

	d.device.SetClock(d.clock.Level)
	d.device.SetReset(d.clock.ResetAsserted)

	for !d.device.Finished() && d.clock.Cycle < d.timeout {
		d.step()
	}

	if d.device.Finished() {
		d.status = StatusFinished
	} else {
		d.status = StatusTimedOut
	}

	out = Outcome{
		Cycles: d.clock.Cycle,
		Time:   d.clock.Time,
		Status: d.status,
	}

	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosRunEnd, Item: out})

	return out
}

func (d *Driver) step() {
	if d.clock.ReleaseReset() {
		d.device.SetReset(false)
		d.status = StatusRunning
	}

	d.device.SetClock(d.clock.Toggle())
	d.device.Eval()

	hooked := d.NumHooks() > 0

	var snapshot Snapshot
	if hooked {
		snapshot = d.snapshot()
		d.InvokeHook(HookCtx{Domain: d, Pos: HookPosStep, Item: snapshot})
	}

	if d.clock.ActiveEdge() {
		if hooked {
			d.InvokeHook(HookCtx{Domain: d, Pos: HookPosActiveEdge, Item: snapshot})
		}

		cycle := d.clock.CountCycle()
		d.reportProgress(cycle)
	}

	d.clock.Advance()
}

func (d *Driver) snapshot() Snapshot {
	s := Snapshot{
		Time:          d.clock.Time,
		Cycle:         d.clock.Cycle,
		Clock:         d.clock.Level,
		ResetAsserted: d.clock.ResetAsserted,
		TraceValid:    d.device.TraceValid(),
		TraceData:     d.device.TraceData(),
	}

	if prober, ok := d.device.(SignalProber); ok {
		s.Probes = prober.Probes()
	}

	return s
}

func (d *Driver) reportProgress(cycle uint64) {
	if d.progress == nil || d.progressInterval == 0 {
		return
	}

	if cycle%d.progressInterval == 0 {
		fmt.Fprintf(d.progress, "Cycle: %d\r", cycle)
	}
}

func (d *Driver) flushSinks() error {
	var errs []error

	for _, s := range d.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Run clocks the device for at most timeout cycles with the given sinks
// attached and the default testbench timing.
func Run(device Device, timeout uint64, sinks ...Sink) Outcome {
	return MakeBuilder().
		WithTimeout(timeout).
		WithSinks(sinks...).
		Build(device).
		Run()
}
