//go:build !unix

package loader

import (
	"errors"
	"os"
)

func mapFile(path string) (data []byte, release func() error, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	if len(data) == 0 {
		return nil, nil, errors.New("cannot map an empty file")
	}

	return data, func() error { return nil }, nil
}
