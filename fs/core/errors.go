package core

import (
	"errors"
	"io/fs"
)

var (
	// ErrNotExist is returned when a file or directory does not exist.
	ErrNotExist = fs.ErrNotExist

	// ErrUnsupported is returned when an operation is not supported by the provider.
	ErrUnsupported = errors.New("operation not supported")
)
