package sim

import "io"

// DefaultTimeout is the default cycle budget.
const DefaultTimeout uint64 = 1000000

// DefaultProgressInterval is the number of cycles between two progress
// reports.
const DefaultProgressInterval uint64 = 10000

// Builder can be used to build a Driver.
type Builder struct {
	timeout          uint64
	progress         io.Writer
	progressInterval uint64
	sinks            []Sink
	hooks            []Hook
}

// MakeBuilder creates a new builder with the default testbench timing.
func MakeBuilder() Builder {
	return Builder{
		timeout:          DefaultTimeout,
		progressInterval: DefaultProgressInterval,
	}
}

// WithTimeout sets the cycle budget.
func (b Builder) WithTimeout(cycles uint64) Builder {
	b.timeout = cycles
	return b
}

// WithProgress enables printing the cycle count to w every interval cycles.
func (b Builder) WithProgress(w io.Writer, interval uint64) Builder {
	b.progress = w
	b.progressInterval = interval

	return b
}

// WithSinks attaches sinks to the driver.
func (b Builder) WithSinks(sinks ...Sink) Builder {
	b.sinks = append(append([]Sink(nil), b.sinks...), sinks...)
	return b
}

// WithHooks attaches hooks that are not flushed at the end of the run.
func (b Builder) WithHooks(hooks ...Hook) Builder {
	b.hooks = append(append([]Hook(nil), b.hooks...), hooks...)
	return b
}

func (b Builder) parametersMustBeValid(device Device) {
	if device == nil {
		panic("device cannot be nil")
	}

	if b.timeout == 0 {
		panic("timeout must be positive")
	}

	if b.progress != nil && b.progressInterval == 0 {
		panic("progress interval must be positive")
	}
}

// Build creates a driver for the device.
func (b Builder) Build(device Device) *Driver {
	b.parametersMustBeValid(device)

	d := &Driver{
		HookableBase:     NewHookableBase(),
		device:           device,
		clock:            NewClock(DefaultHalfPeriod, DefaultResetSettle),
		status:           StatusResetting,
		timeout:          b.timeout,
		progress:         b.progress,
		progressInterval: b.progressInterval,
	}

	for _, h := range b.hooks {
		d.AcceptHook(h)
	}

	for _, s := range b.sinks {
		d.AddSink(s)
	}

	return d
}
