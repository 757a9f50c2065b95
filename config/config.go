// Package config collects the defaults of an rvbench run from an optional
// .env file and RVBENCH_* environment variables. Command-line flags override
// what is found here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Names of the environment variables.
const (
	EnvTimeout     = "RVBENCH_TIMEOUT"
	EnvMemorySize  = "RVBENCH_MEM_SIZE"
	EnvVCDFile     = "RVBENCH_VCD_FILE"
	EnvTraceFile   = "RVBENCH_TRACE_FILE"
	EnvDBFile      = "RVBENCH_DB_FILE"
	EnvMonitorPort = "RVBENCH_MONITOR_PORT"
)

// DefaultEnvFile is the .env file read by Load when no other file is given.
const DefaultEnvFile = ".env"

// Config holds the settings of a run.
type Config struct {
	Timeout     uint64
	MemorySize  int
	VCDFile     string
	TraceFile   string
	DBFile      string
	MonitorPort int
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Timeout:    1000000,
		MemorySize: 128 * 1024,
		VCDFile:    "testbench.vcd",
		TraceFile:  "testbench.trace",
	}
}

// An Error reports a setting that cannot be used.
type Error struct {
	Key   string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the .env file at path, if it exists, and the process
// environment. Variables set in the environment win over the file.
func Load(path string) (Config, error) {
	values := map[string]string{}

	if path != "" {
		fileValues, err := godotenv.Read(path)
		switch {
		case err == nil:
			values = fileValues
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := values[key]

		return v, ok
	})
}

// FromLookup builds the settings from a lookup function with the semantics
// of os.LookupEnv.
func FromLookup(lookup func(key string) (string, bool)) (Config, error) {
	c := Default()

	if v, ok := lookup(EnvTimeout); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err == nil && n == 0 {
			err = errors.New("must be positive")
		}
		if err != nil {
			return Config{}, &Error{Key: EnvTimeout, Value: v, Err: err}
		}
		c.Timeout = n
	}

	if v, ok := lookup(EnvMemorySize); ok {
		n, err := ParseMemorySize(v)
		if err != nil {
			return Config{}, &Error{Key: EnvMemorySize, Value: v, Err: err}
		}
		c.MemorySize = n
	}

	if v, ok := lookup(EnvMonitorPort); ok {
		n, err := strconv.Atoi(v)
		if err == nil && (n < 0 || n > 65535) {
			err = errors.New("out of range")
		}
		if err != nil {
			return Config{}, &Error{Key: EnvMonitorPort, Value: v, Err: err}
		}
		c.MonitorPort = n
	}

	if v, ok := lookup(EnvVCDFile); ok && v != "" {
		c.VCDFile = v
	}

	if v, ok := lookup(EnvTraceFile); ok && v != "" {
		c.TraceFile = v
	}

	if v, ok := lookup(EnvDBFile); ok {
		c.DBFile = v
	}

	return c, nil
}

// ParseMemorySize parses a memory size in bytes. The size must be a positive
// multiple of 4.
func ParseMemorySize(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	return n, ValidateMemorySize(n)
}

// ValidateMemorySize checks that n is a positive multiple of 4.
func ValidateMemorySize(n int) error {
	if n <= 0 || n%4 != 0 {
		return fmt.Errorf("memory size %d is not a positive multiple of 4", n)
	}

	return nil
}
