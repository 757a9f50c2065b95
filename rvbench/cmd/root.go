// Package cmd provides the command-line interface for rvbench.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sarchlab/rvbench/config"
	"github.com/sarchlab/rvbench/monitoring"
	"github.com/spf13/cobra"
)

// Exit codes of rvbench.
const (
	ExitFinished = 0
	ExitError    = 1
	ExitTimeout  = 2
)

// An ArgumentError reports a command line that cannot be run. The usage is
// printed along with it.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

// A reportedError has already been printed by the command.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

func argumentErrorf(format string, args ...any) *ArgumentError {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// Execute runs rvbench with the arguments of the process and returns the exit
// code.
func Execute() int {
	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	return Run(cfg, os.Args[1:], os.Stdout, os.Stderr)
}

// Run runs rvbench with the given defaults and arguments and returns the exit
// code.
func Run(cfg config.Config, args []string, stdout, stderr io.Writer) int {
	r := &runner{
		cfg:    cfg,
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := newRootCmd(r)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return r.code
	}

	var reported *reportedError
	if errors.As(err, &reported) {
		return ExitError
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)

	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		fmt.Fprintf(stderr, "\n%s", rootCmd.UsageString())
	}

	return ExitError
}

func newRootCmd(r *runner) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rvbench [options] <elf_file>",
		Short: "rvbench runs RV32 ELF programs on a cycle-level core.",
		Long: `rvbench loads an RV32 ELF program into the memory of a ` +
			`cycle-level core, releases reset and runs the core until the ` +
			`program stops or the cycle budget runs out.

Plus arguments:
  +vcd              Generate VCD waveform (` + r.cfg.VCDFile + `)
  +trace            Generate instruction trace (` + r.cfg.TraceFile + `)
  +verbose          Enable verbose output
  +db               Record the trace into a SQLite database

Exit codes: 0 finished, 1 argument or load error, 2 timeout.`,
		Example: strings.Join([]string{
			"  rvbench firmware/firmware.elf",
			"  rvbench +vcd +trace program.elf",
			"  rvbench --timeout=5000000 dhrystone.elf",
		}, "\n"),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          r.run,
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ArgumentError{Msg: err.Error()}
	})

	flags := rootCmd.Flags()
	flags.Int64Var(&r.timeout, "timeout", int64(r.cfg.Timeout),
		"Set simulation timeout in cycles")
	flags.IntVar(&r.memSize, "mem-size", r.cfg.MemorySize,
		"Memory size of the core in bytes")
	flags.BoolVar(&r.overlapCheck, "overlap-check", false,
		"Reject images whose segments overlap in memory")
	flags.BoolVar(&r.monitor, "monitor", false,
		"Serve the progress of the run over HTTP")
	flags.IntVar(&r.monitorPort, "monitor-port", r.cfg.MonitorPort,
		"Port of the monitoring server, 0 picks a free one")
	flags.Uint64Var(&r.monitorEvery, "monitor-interval",
		monitoring.DefaultUpdateInterval,
		"Cycles between two updates of the monitored state")
	flags.BoolVar(&r.openBrowser, "open-browser", false,
		"Open the monitoring page in a browser")

	return rootCmd
}

// plusArgs are the simulator switches given as +name arguments.
type plusArgs struct {
	vcd     bool
	trace   bool
	verbose bool
	db      bool
}

// splitArgs separates plus arguments from positional arguments. Unknown plus
// arguments are ignored.
func splitArgs(args []string) (plusArgs, []string) {
	var (
		plus       plusArgs
		positional []string
	)

	for _, arg := range args {
		if !strings.HasPrefix(arg, "+") {
			positional = append(positional, arg)
			continue
		}

		switch arg {
		case "+vcd":
			plus.vcd = true
		case "+trace":
			plus.trace = true
		case "+verbose":
			plus.verbose = true
		case "+db":
			plus.db = true
		}
	}

	return plus, positional
}
