package tracing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tebeka/atexit"
)

// output is a buffered text destination. Write errors are sticky and so are
// records that the writers reject; both are reported by flush and close.
type output struct {
	w      *bufio.Writer
	closer io.Closer
	exitID atexit.HandlerID

	ioErr     error
	rejectErr error
	closed    bool
}

func newOutput(w io.Writer) *output {
	return &output{w: bufio.NewWriter(w)}
}

// createOutput creates or truncates the file at path. The file is closed at
// exit if its owner has not closed it by then.
func createOutput(path string) (*output, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	o := newOutput(f)
	o.closer = f

	o.exitID = atexit.Register(func() { _ = o.finish() })

	return o, nil
}

func (o *output) writable() bool {
	return !o.closed && o.ioErr == nil
}

func (o *output) printf(format string, args ...any) {
	if !o.writable() {
		return
	}

	if _, err := fmt.Fprintf(o.w, format, args...); err != nil {
		o.ioErr = err
	}
}

func (o *output) reject(format string, args ...any) {
	if o.rejectErr == nil {
		o.rejectErr = fmt.Errorf(format, args...)
	}
}

func (o *output) err() error {
	return errors.Join(o.ioErr, o.rejectErr)
}

func (o *output) flush() error {
	if o.writable() {
		if err := o.w.Flush(); err != nil {
			o.ioErr = err
		}
	}

	return o.err()
}

// close finishes the output and drops its exit handler.
func (o *output) close() error {
	if o.exitID != 0 {
		_ = o.exitID.Cancel()
		o.exitID = 0
	}

	return o.finish()
}

func (o *output) finish() error {
	if o.closed {
		return o.err()
	}

	_ = o.flush()
	o.closed = true

	if o.closer != nil {
		if err := o.closer.Close(); err != nil && o.ioErr == nil {
			o.ioErr = err
		}
	}

	return o.err()
}
