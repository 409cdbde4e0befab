// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmem

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// TracePrefix starts every line written by Mock.
const TracePrefix = "Pcimem[mock]> "

// Mock implements Mem without touching memory or the file system.
//
// Every operation is written to the trace as one line: the operation name
// padded to 12 columns, the offset as 0x%08x and, for writes, the value.
// Range and FIFO writes add one DATA line per word. Each operation ends with
// an empty line.
//
// Reads return zero and leave the caller's buffers untouched. The Fast and Raw
// variants are no-ops and are not traced.
type Mock struct {
	name   string
	log    *log.Logger
	size   int
	closed bool
}

// NewMock returns a Mock named after the resource it stands for.
//
// A nil opts traces to os.Stderr without bounds checks.
func NewMock(name string, opts *Opts) *Mock {
	var w io.Writer = os.Stderr
	m := &Mock{name: name}
	if opts != nil {
		if opts.Trace != nil {
			w = opts.Trace
		}
		m.size = opts.Size
	}
	m.log = log.New(w, TracePrefix, 0)
	m.trace("Opened %s", name)
	m.brk()
	return m
}

// String implements conn.Resource.
func (m *Mock) String() string {
	return m.name
}

// Halt implements conn.Resource. It is a no-op.
func (m *Mock) Halt() error {
	return nil
}

// Close implements io.Closer.
func (m *Mock) Close() error {
	if m.closed {
		return fmt.Errorf("pmem (%s): %w", m.name, ErrClosed)
	}
	m.closed = true
	m.trace("Closed")
	m.brk()
	return nil
}

// Len returns the declared size, 0 if none.
func (m *Mock) Len() int {
	return m.size
}

// ReadWord implements Mem. It always returns 0.
func (m *Mock) ReadWord(off uint64) (uint32, error) {
	v, err := m.Load(off, Word)
	return uint32(v), err
}

// WriteWord implements Mem.
func (m *Mock) WriteWord(off uint64, v uint32) error {
	return m.Store(off, Word, uint64(v))
}

// ReadRange implements Mem.
func (m *Mock) ReadRange(off uint64, w []uint32) error {
	if err := m.check(off, 4, len(w)); err != nil {
		return m.wrap("read range", off, err)
	}
	m.trace("%-12s0x%08x * %d", "READ RANGE", off, len(w))
	m.brk()
	return nil
}

// WriteRange implements Mem.
func (m *Mock) WriteRange(off uint64, w []uint32) error {
	if err := m.check(off, 4, len(w)); err != nil {
		return m.wrap("write range", off, err)
	}
	m.trace("%-12s0x%08x * %d:", "WRITE RANGE", off, len(w))
	for i, v := range w {
		m.data(off+4*uint64(i), v)
	}
	m.brk()
	return nil
}

// ReadRangeFast implements Mem. It is a no-op.
func (m *Mock) ReadRangeFast(off uint64, w []uint32) {
}

// WriteRangeFast implements Mem. It is a no-op.
func (m *Mock) WriteRangeFast(off uint64, w []uint32) {
}

// Load implements Mem. It always returns 0.
func (m *Mock) Load(off uint64, s Size) (uint64, error) {
	if !s.valid() {
		return 0, m.wrap("load", off, fmt.Errorf("invalid size %d", s))
	}
	if err := m.check(off, uint64(s), 1); err != nil {
		return 0, m.wrap("read "+s.String(), off, err)
	}
	m.trace("%-12s0x%08x", "READ "+s.String(), off)
	m.brk()
	return 0, nil
}

// Store implements Mem.
func (m *Mock) Store(off uint64, s Size, v uint64) error {
	if !s.valid() {
		return m.wrap("store", off, fmt.Errorf("invalid size %d", s))
	}
	if err := m.check(off, uint64(s), 1); err != nil {
		return m.wrap("write "+s.String(), off, err)
	}
	m.trace("%-12s0x%08x 0x%0*x", "WRITE "+s.String(), off, 2*int(s), v)
	m.brk()
	return nil
}

// ReadFIFO implements Mem.
//
// The whole transfer is traced as one line; the fill level is not polled.
func (m *Mock) ReadFIFO(ctx context.Context, level, port uint64, w []uint32) (int, error) {
	if err := m.check(level, 4, 1); err != nil {
		return 0, m.wrap("read fifo level", level, err)
	}
	if err := m.check(port, 4, 1); err != nil {
		return 0, m.wrap("read fifo", port, err)
	}
	m.trace("%-12s0x%08x * %d", "READ FIFO", port, len(w))
	m.brk()
	return len(w), nil
}

// WriteFIFO implements Mem.
//
// Every word is traced in order against the constant port; the fill level is
// not polled.
func (m *Mock) WriteFIFO(ctx context.Context, level, port uint64, w []uint32) (int, error) {
	if err := m.check(level, 4, 1); err != nil {
		return 0, m.wrap("write fifo level", level, err)
	}
	if err := m.check(port, 4, 1); err != nil {
		return 0, m.wrap("write fifo", port, err)
	}
	m.trace("%-12s0x%08x * %d:", "WRITE FIFO", port, len(w))
	for _, v := range w {
		m.data(port, v)
	}
	m.brk()
	return len(w), nil
}

// ReadFIFORaw implements Mem. It is a no-op.
func (m *Mock) ReadFIFORaw(port uint64, w []uint32) {
}

// WriteFIFORaw implements Mem. It is a no-op.
func (m *Mock) WriteFIFORaw(port uint64, w []uint32) {
}

//

func (m *Mock) check(off uint64, size uint64, n int) error {
	if m.closed {
		return ErrClosed
	}
	length := -1
	if m.size > 0 {
		length = m.size
	}
	return check(off, size, n, length)
}

func (m *Mock) trace(format string, v ...interface{}) {
	m.log.Printf(format, v...)
}

func (m *Mock) data(off uint64, v uint32) {
	m.trace("      %-6s0x%08x 0x%08x", "DATA", off, v)
}

// brk writes the empty line separating operations.
func (m *Mock) brk() {
	_, _ = io.WriteString(m.log.Writer(), "\n")
}

func (m *Mock) wrap(op string, off uint64, err error) error {
	return fmt.Errorf("pmem (%s): %s at 0x%08x: %w", m.name, op, off, err)
}

var _ Mem = &Mock{}
