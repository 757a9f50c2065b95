//go:build unix

package loader

import (
	"errors"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the whole file read-only. The file descriptor is closed before
// returning; the mapping stays valid until release is called.
func mapFile(path string) (data []byte, release func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	size := st.Size()
	if size == 0 {
		return nil, nil, errors.New("cannot map an empty file")
	}

	if size > math.MaxInt {
		return nil, nil, errors.New("file too large to map")
	}

	data, err = unix.Mmap(
		int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	return data, func() error { return unix.Munmap(data) }, nil
}
