// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmem

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"periph.io/x/pcimem/fifo"
)

// ReadFIFO implements Mem.
//
// The fill level register at level is read before each chunk and at most that
// many words are read from port, which stays constant while the cursor in w
// advances. The wait is bounded by Opts.Poll, ctx and Halt.
//
// It returns the number of words read.
func (r *Region) ReadFIFO(ctx context.Context, level, port uint64, w []uint32) (int, error) {
	return r.copyFIFO(ctx, "read fifo", level, port, w, true)
}

// WriteFIFO implements Mem.
//
// It returns the number of words written.
func (r *Region) WriteFIFO(ctx context.Context, level, port uint64, w []uint32) (int, error) {
	return r.copyFIFO(ctx, "write fifo", level, port, w, false)
}

// ReadFIFORaw implements Mem.
//
// There is no polling and no bounds check; it panics if port is outside the
// mapping.
func (r *Region) ReadFIFORaw(port uint64, w []uint32) {
	if len(w) == 0 {
		return
	}
	p := r.word(port)
	for i := range w {
		w[i] = atomic.LoadUint32(p)
	}
	// p does not keep the mapping alive; r does.
	runtime.KeepAlive(r)
}

// WriteFIFORaw implements Mem.
//
// There is no polling and no bounds check; it panics if port is outside the
// mapping.
func (r *Region) WriteFIFORaw(port uint64, w []uint32) {
	if len(w) == 0 {
		return
	}
	p := r.word(port)
	for _, v := range w {
		atomic.StoreUint32(p, v)
	}
	runtime.KeepAlive(r)
}

//

func (r *Region) copyFIFO(ctx context.Context, op string, level, port uint64, w []uint32, fromFIFO bool) (int, error) {
	if err := r.check(level, 4, 1); err != nil {
		return 0, r.wrap(op+" level", level, err)
	}
	if err := r.check(port, 4, 1); err != nil {
		return 0, r.wrap(op, port, err)
	}
	ctx, done := r.transfer(ctx)
	defer done()
	n, err := fifo.Copy(ctx, r, &r.poll, level, port, w, fromFIFO)
	if err != nil {
		return n, fmt.Errorf("pmem (%s): %s at 0x%08x after %d of %d words: %w", r.path, op, port, n, len(w), err)
	}
	return n, nil
}

// transfer registers a cancellable context for Halt.
func (r *Region) transfer(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	return ctx, func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}
}
