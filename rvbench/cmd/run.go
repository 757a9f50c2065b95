package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/sarchlab/rvbench/config"
	"github.com/sarchlab/rvbench/datarecording"
	"github.com/sarchlab/rvbench/loader"
	"github.com/sarchlab/rvbench/monitoring"
	"github.com/sarchlab/rvbench/rvcore"
	"github.com/sarchlab/rvbench/sim"
	"github.com/sarchlab/rvbench/tracing"
	"github.com/spf13/cobra"
)

const separator = "---------------------------------------------------"

type runner struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
	code   int

	timeout      int64
	memSize      int
	overlapCheck bool
	monitor      bool
	monitorPort  int
	monitorEvery uint64
	openBrowser  bool

	closers []func() error
}

func (r *runner) run(cmd *cobra.Command, args []string) error {
	if cmd.ArgsLenAtDash() >= 0 {
		return argumentErrorf("unknown option: --")
	}

	plus, positional := splitArgs(args)

	image, err := r.validate(positional)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.stdout, "rvbench RV32 CLI Simulator\n")
	fmt.Fprintf(r.stdout, "Device: rvcore RV32IM with %d bytes of memory\n\n",
		r.memSize)

	core := rvcore.MakeBuilder().
		WithMemorySize(r.memSize).
		WithConsole(r.stdout).
		Build()

	fmt.Fprintf(r.stdout, "Loading ELF: %s\n", image)

	if err := r.load(image, core.Memory()); err != nil {
		fmt.Fprintf(r.stderr, "Error: %v\n", err)
		fmt.Fprintf(r.stderr, "Failed to load ELF file\n")

		return &reportedError{err: err}
	}

	fmt.Fprintln(r.stdout)

	defer r.closeAll()

	driver, err := r.buildDriver(core, image, plus)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.stdout, "\nStarting simulation (timeout: %d cycles)...\n",
		r.timeout)
	fmt.Fprintf(r.stdout, "%s\n\n", separator)

	out := driver.Run()
	if out.FlushErr != nil {
		fmt.Fprintf(r.stderr, "Warning: %v\n", out.FlushErr)
	}

	r.printSummary(out, core)

	if out.Status == sim.StatusTimedOut {
		r.code = ExitTimeout
	}

	return nil
}

func (r *runner) validate(positional []string) (string, error) {
	for _, arg := range positional {
		if strings.HasPrefix(arg, "-") {
			return "", argumentErrorf("unknown option: %s", arg)
		}
	}

	switch {
	case len(positional) == 0:
		return "", argumentErrorf("no ELF file specified")
	case len(positional) > 1:
		return "", argumentErrorf("multiple ELF files specified: %v", positional)
	}

	if r.timeout <= 0 {
		return "", argumentErrorf("invalid timeout value %d, "+
			"the timeout must be a positive number of cycles", r.timeout)
	}

	if err := config.ValidateMemorySize(r.memSize); err != nil {
		return "", &ArgumentError{Msg: err.Error()}
	}

	if r.monitorPort < 0 || r.monitorPort > 65535 {
		return "", argumentErrorf("invalid monitor port %d", r.monitorPort)
	}

	if r.monitorEvery == 0 {
		return "", argumentErrorf("the monitor interval must be positive")
	}

	return positional[0], nil
}

func (r *runner) load(image string, mem []byte) error {
	b := loader.MakeBuilder().WithLogger(log.New(r.stdout, "", 0))
	if r.overlapCheck {
		b = b.WithOverlapCheck()
	}

	_, err := b.Build().Load(image, mem)

	return err
}

func (r *runner) buildDriver(
	core *rvcore.Core,
	image string,
	plus plusArgs,
) (*sim.Driver, error) {
	b := sim.MakeBuilder().WithTimeout(uint64(r.timeout))
	if plus.verbose {
		b = b.WithProgress(r.stdout, sim.DefaultProgressInterval)
	}

	driver := b.Build(core)

	if plus.vcd {
		w, err := tracing.CreateVCDFile(r.cfg.VCDFile)
		if err != nil {
			return nil, fmt.Errorf("cannot create VCD file: %w", err)
		}

		r.closers = append(r.closers, w.Close)
		driver.AddSink(w)
		fmt.Fprintf(r.stdout, "VCD tracing enabled -> %s\n", r.cfg.VCDFile)
	}

	if plus.trace {
		w, err := tracing.CreateInstTraceFile(r.cfg.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("cannot create trace file: %w", err)
		}

		r.closers = append(r.closers, w.Close)
		driver.AddSink(w)
		fmt.Fprintf(r.stdout, "Instruction tracing enabled -> %s\n",
			r.cfg.TraceFile)
	}

	if plus.db {
		if err := r.attachRecorder(driver, image); err != nil {
			return nil, err
		}
	}

	if r.monitor {
		if err := r.attachMonitor(driver); err != nil {
			return nil, err
		}
	}

	return driver, nil
}

func (r *runner) attachRecorder(driver *sim.Driver, image string) error {
	backend, err := datarecording.New(r.cfg.DBFile)
	if err != nil {
		return fmt.Errorf("cannot create database: %w", err)
	}

	recorder, err := tracing.NewDBRecorder(backend, image)
	if err != nil {
		return errors.Join(fmt.Errorf("cannot create database: %w", err),
			backend.Close())
	}

	r.closers = append(r.closers, recorder.Close)
	driver.AddSink(recorder)
	fmt.Fprintf(r.stdout, "Database recording enabled -> %s\n",
		datarecording.Filename(backend))

	return nil
}

func (r *runner) attachMonitor(driver *sim.Driver) error {
	m := monitoring.NewMonitor().
		WithLogger(log.New(r.stderr, "", 0)).
		WithPortNumber(r.monitorPort).
		WithUpdateInterval(r.monitorEvery).
		WithBrowser(r.openBrowser)
	m.RegisterDriver(driver)

	if _, err := m.StartServer(); err != nil {
		return fmt.Errorf("cannot start monitoring server: %w", err)
	}

	r.closers = append(r.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return m.StopServer(ctx)
	})

	return nil
}

func (r *runner) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			fmt.Fprintf(r.stderr, "Warning: %v\n", err)
		}
	}

	r.closers = nil
}

func (r *runner) printSummary(out sim.Outcome, core *rvcore.Core) {
	fmt.Fprintf(r.stdout, "\n%s\n", separator)
	fmt.Fprintf(r.stdout, "Simulation finished:\n")
	fmt.Fprintf(r.stdout, "  Cycles: %d\n", out.Cycles)
	fmt.Fprintf(r.stdout, "  Time: %d ns\n", out.Time)
	fmt.Fprintf(r.stdout, "  Status: %s\n", out.Status)

	if cause := core.TrapCause(); cause != "" {
		fmt.Fprintf(r.stdout, "  Trap: %s\n", cause)
	}

	if core.TestsPassed() {
		fmt.Fprintf(r.stdout, "ALL TESTS PASSED\n")
	}
}
