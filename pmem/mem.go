// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmem

import (
	"context"
	"io"

	"periph.io/x/conn/v3"
	"periph.io/x/pcimem/fifo"
)

// Mem is the access interface implemented by both Region and Mock.
//
// The variant is selected once when the handle is created.
type Mem interface {
	conn.Resource
	io.Closer

	// Len returns the size of the address space in bytes. A Mock without a
	// declared size returns 0.
	Len() int

	// ReadWord reads the 32 bits word at off.
	ReadWord(off uint64) (uint32, error)
	// WriteWord writes v as a 32 bits word at off.
	WriteWord(off uint64, v uint32) error
	// ReadRange reads len(w) consecutive words starting at off, one word at a
	// time.
	ReadRange(off uint64, w []uint32) error
	// WriteRange writes w as consecutive words starting at off, one word at a
	// time.
	WriteRange(off uint64, w []uint32) error
	// ReadRangeFast block copies len(w) words starting at off. It must only be
	// used on memory without read side effects. It panics if the range is
	// outside the mapping.
	ReadRangeFast(off uint64, w []uint32)
	// WriteRangeFast block copies w starting at off. It must only be used on
	// memory without write side effects. It panics if the range is outside the
	// mapping.
	WriteRangeFast(off uint64, w []uint32)

	// Load reads a value of size s at off.
	Load(off uint64, s Size) (uint64, error)
	// Store writes the low s bytes of v at off.
	Store(off uint64, s Size, v uint64) error

	// ReadFIFO drains len(w) words from the FIFO port, polling the fill level
	// register before each chunk.
	ReadFIFO(ctx context.Context, level, port uint64, w []uint32) (int, error)
	// WriteFIFO pushes w into the FIFO port, polling the fill level register
	// before each chunk.
	WriteFIFO(ctx context.Context, level, port uint64, w []uint32) (int, error)
	// ReadFIFORaw reads the FIFO port len(w) times without polling. The caller
	// guarantees the FIFO holds enough words.
	ReadFIFORaw(port uint64, w []uint32)
	// WriteFIFORaw writes w to the FIFO port without polling. The caller
	// guarantees the FIFO has enough room.
	WriteFIFORaw(port uint64, w []uint32)
}

// Opts configures Open and NewMock.
type Opts struct {
	// Poll is the policy used by ReadFIFO and WriteFIFO. The zero value polls
	// forever.
	Poll fifo.Policy
	// Trace is where Mock writes its trace. Defaults to os.Stderr. Ignored by
	// Region.
	Trace io.Writer
	// Size declares the address space of a Mock, enabling bounds checks. 0
	// disables them. Ignored by Region, which uses the file size.
	Size int
}

// Size is the width of an access.
type Size uint8

// Access widths.
const (
	Byte   Size = 1
	Half   Size = 2
	Word   Size = 4
	Double Size = 8
)

func (s Size) String() string {
	switch s {
	case Byte:
		return "BYTE"
	case Half:
		return "HALF"
	case Word:
		return "WORD"
	case Double:
		return "DWORD"
	default:
		return "INVALID"
	}
}

func (s Size) valid() bool {
	return s == Byte || s == Half || s == Word || s == Double
}

// check validates an access of n items of size bytes at off against an
// address space of length bytes. length < 0 disables the bounds check.
func check(off uint64, size uint64, n int, length int) error {
	if off%size != 0 {
		return ErrMisaligned
	}
	if length < 0 {
		return nil
	}
	l := uint64(length)
	if off > l || uint64(n)*size > l-off {
		return ErrOutOfBounds
	}
	return nil
}

var _ fifo.Device = Mem(nil)
