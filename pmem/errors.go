// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmem

import (
	"errors"

	"periph.io/x/pcimem/fifo"
)

var (
	// ErrOutOfBounds is returned when an access would fall outside the
	// mapping.
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrMisaligned is returned when an offset is not a multiple of the
	// access width.
	ErrMisaligned = errors.New("misaligned access")
	// ErrClosed is returned when the region was already closed.
	ErrClosed = errors.New("region is closed")
	// ErrTimeout is returned by FIFO transfers when the device never reported
	// capacity within the configured poll policy.
	ErrTimeout = fifo.ErrTimeout

	errEmpty = errors.New("file is empty")
)

// OpenError is returned when the backing file cannot be opened for read and
// write.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return "pmem: open " + e.Path + ": " + e.Err.Error()
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// MapError is returned when the backing file was opened but could not be
// mapped. The file is closed before MapError is returned.
type MapError struct {
	Path string
	Err  error
}

func (e *MapError) Error() string {
	return "pmem: mmap " + e.Path + ": " + e.Err.Error()
}

func (e *MapError) Unwrap() error {
	return e.Err
}
