package loader

import (
	"errors"
	"fmt"
)

// The kinds of load failures. A *LoadError matches its kind with errors.Is.
var (
	ErrIOFailure          = errors.New("cannot read image")
	ErrNotAnImage         = errors.New("not a valid ELF file")
	ErrUnsupportedClass   = errors.New("only 32-bit ELF files are supported")
	ErrSegmentOutOfBounds = errors.New("segment exceeds memory bounds")
	ErrSegmentOverlap     = errors.New("segment overlaps an earlier segment")
)

// noSegment marks a LoadError that is not about a particular segment.
const noSegment = -1

// A LoadError describes why an image could not be loaded.
type LoadError struct {
	Kind    error
	Path    string
	Segment int
	Detail  string
	Err     error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Path, e.Kind)

	if e.Segment != noSegment {
		msg += fmt.Sprintf(" (segment %d)", e.Segment)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns both the kind and the underlying cause.
func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

func newError(kind error, path string, err error) *LoadError {
	return &LoadError{Kind: kind, Path: path, Segment: noSegment, Err: err}
}

func newSegmentError(
	kind error,
	path string,
	segment int,
	format string,
	args ...any,
) *LoadError {
	return &LoadError{
		Kind:    kind,
		Path:    path,
		Segment: segment,
		Detail:  fmt.Sprintf(format, args...),
	}
}
