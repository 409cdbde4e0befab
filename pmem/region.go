// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmem

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"periph.io/x/pcimem/fifo"
)

// Region is a shared read/write mapping of a whole resource file.
//
// A Region is owned by a single user. Only Halt may be called concurrently
// with the other methods.
type Region struct {
	path string
	f    *os.File
	mem  []byte
	poll fifo.Policy

	mu     sync.Mutex
	cancel context.CancelFunc // of the in-flight FIFO transfer
}

// Open maps the whole file at path with read and write access.
//
// The file is opened with synchronized writes and mapped shared, so writes
// are visible to the device and to other mappers of the same file.
//
// A nil opts uses the defaults.
func Open(path string, opts *Opts) (*Region, error) {
	f, err := os.OpenFile(path, openFlags, 0)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &MapError{Path: path, Err: err}
	}
	size := fi.Size()
	if size <= 0 {
		_ = f.Close()
		return nil, &MapError{Path: path, Err: errEmpty}
	}
	if size > math.MaxInt {
		_ = f.Close()
		return nil, &MapError{Path: path, Err: fmt.Errorf("size %d is too large", size)}
	}
	mem, err := mmap(f, int(size))
	if err != nil {
		_ = f.Close()
		return nil, &MapError{Path: path, Err: err}
	}
	r := &Region{path: path, f: f, mem: mem}
	if opts != nil {
		r.poll = opts.Poll
	}
	logf("pmem: mapped %s (%d bytes)", path, size)
	// Release the mapping if the Region is dropped without Close.
	runtime.SetFinalizer(r, (*Region).Close)
	return r, nil
}

// String implements conn.Resource.
func (r *Region) String() string {
	return r.path
}

// Halt implements conn.Resource.
//
// It interrupts a pending ReadFIFO or WriteFIFO, which then returns an error
// wrapping context.Canceled.
func (r *Region) Halt() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// Close unmaps the region and closes the file.
//
// Failures to unmap or close are not reported; the kernel reclaims both on
// process exit. Closing twice returns ErrClosed.
func (r *Region) Close() error {
	if r.mem == nil {
		return fmt.Errorf("pmem (%s): %w", r.path, ErrClosed)
	}
	runtime.SetFinalizer(r, nil)
	if err := munmap(r.mem); err != nil {
		logf("pmem: munmap %s: %v", r.path, err)
	}
	r.mem = nil
	if err := r.f.Close(); err != nil {
		logf("pmem: close %s: %v", r.path, err)
	}
	r.f = nil
	return nil
}

// Len returns the size of the mapping in bytes.
func (r *Region) Len() int {
	return len(r.mem)
}

// ReadWord implements Mem.
func (r *Region) ReadWord(off uint64) (uint32, error) {
	if err := r.check(off, 4, 1); err != nil {
		return 0, r.wrap("read word", off, err)
	}
	return atomic.LoadUint32(r.word(off)), nil
}

// WriteWord implements Mem.
func (r *Region) WriteWord(off uint64, v uint32) error {
	if err := r.check(off, 4, 1); err != nil {
		return r.wrap("write word", off, err)
	}
	atomic.StoreUint32(r.word(off), v)
	return nil
}

// ReadRange implements Mem.
//
// Each word is read individually since registers may have read side effects
// that a block copy would trigger in the wrong order or more than once.
func (r *Region) ReadRange(off uint64, w []uint32) error {
	if err := r.check(off, 4, len(w)); err != nil {
		return r.wrap("read range", off, err)
	}
	for i := range w {
		w[i] = atomic.LoadUint32(r.word(off + 4*uint64(i)))
	}
	return nil
}

// WriteRange implements Mem.
func (r *Region) WriteRange(off uint64, w []uint32) error {
	if err := r.check(off, 4, len(w)); err != nil {
		return r.wrap("write range", off, err)
	}
	for i, v := range w {
		atomic.StoreUint32(r.word(off+4*uint64(i)), v)
	}
	return nil
}

// ReadRangeFast implements Mem.
func (r *Region) ReadRangeFast(off uint64, w []uint32) {
	if len(w) == 0 {
		return
	}
	copy(wordBytes(w), r.mem[off:off+4*uint64(len(w))])
	// The finalizer must not unmap during the copy.
	runtime.KeepAlive(r)
}

// WriteRangeFast implements Mem.
func (r *Region) WriteRangeFast(off uint64, w []uint32) {
	if len(w) == 0 {
		return
	}
	copy(r.mem[off:off+4*uint64(len(w))], wordBytes(w))
	runtime.KeepAlive(r)
}

// Load implements Mem.
func (r *Region) Load(off uint64, s Size) (uint64, error) {
	if !s.valid() {
		return 0, r.wrap("load", off, fmt.Errorf("invalid size %d", s))
	}
	if err := r.check(off, uint64(s), 1); err != nil {
		return 0, r.wrap("read "+s.String(), off, err)
	}
	p := unsafe.Pointer(&r.mem[off])
	switch s {
	case Byte:
		return uint64(load8((*uint8)(p))), nil
	case Half:
		return uint64(load16((*uint16)(p))), nil
	case Word:
		return uint64(atomic.LoadUint32((*uint32)(p))), nil
	default:
		return atomic.LoadUint64((*uint64)(p)), nil
	}
}

// Store implements Mem.
func (r *Region) Store(off uint64, s Size, v uint64) error {
	if !s.valid() {
		return r.wrap("store", off, fmt.Errorf("invalid size %d", s))
	}
	if err := r.check(off, uint64(s), 1); err != nil {
		return r.wrap("write "+s.String(), off, err)
	}
	p := unsafe.Pointer(&r.mem[off])
	switch s {
	case Byte:
		store8((*uint8)(p), uint8(v))
	case Half:
		store16((*uint16)(p), uint16(v))
	case Word:
		atomic.StoreUint32((*uint32)(p), uint32(v))
	default:
		atomic.StoreUint64((*uint64)(p), v)
	}
	return nil
}

//

func (r *Region) check(off uint64, size uint64, n int) error {
	if r.mem == nil {
		return ErrClosed
	}
	return check(off, size, n, len(r.mem))
}

// word returns a pointer to the word at off. It panics if the word is not
// fully inside the mapping.
func (r *Region) word(off uint64) *uint32 {
	_ = r.mem[off+3]
	return (*uint32)(unsafe.Pointer(&r.mem[off]))
}

func (r *Region) wrap(op string, off uint64, err error) error {
	return fmt.Errorf("pmem (%s): %s at 0x%08x: %w", r.path, op, off, err)
}

// wordBytes returns the memory backing w as bytes, in host order.
func wordBytes(w []uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&w[0])), 4*len(w))
}

// The narrow accessors must not be merged or split by the compiler.

//go:noinline
func load8(p *uint8) uint8 {
	return *p
}

//go:noinline
func load16(p *uint16) uint16 {
	return *p
}

//go:noinline
func store8(p *uint8, v uint8) {
	*p = v
}

//go:noinline
func store16(p *uint16, v uint16) {
	*p = v
}

var _ Mem = &Region{}
