// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fifo implements the flow controlled copy between a hardware FIFO
// port and a linear buffer.
//
// The device exposes two 32 bits registers: a fill level register reporting
// how many words can currently be drained from (or pushed into) the FIFO, and
// the FIFO port itself. Every access to the port consumes (or produces) one
// word, so the port address stays constant while the buffer cursor advances.
//
// The fill level must be read again before each chunk since the device
// drains or fills the FIFO asynchronously.
package fifo

import (
	"context"
	"errors"
	"time"

	"periph.io/x/conn/v3/physic"
)

// ErrTimeout is returned when the fill level register did not report any
// capacity within the limits of the Policy.
var ErrTimeout = errors.New("fifo: no capacity reported before the poll limit")

// Device is the word level access needed to run a transfer.
//
// Offsets are in bytes.
type Device interface {
	ReadWord(off uint64) (uint32, error)
	WriteWord(off uint64, v uint32) error
}

// Policy bounds how long a transfer waits for the device to report capacity.
//
// The zero value busy polls forever, which is appropriate for hardware known
// to always eventually drain or fill its FIFO.
type Policy struct {
	// MaxPolls is the maximum number of consecutive polls reporting a fill
	// level of zero before giving up. 0 means unbounded.
	MaxPolls int
	// Timeout is the maximum time spent without any progress. 0 means
	// unbounded.
	Timeout time.Duration
	// Rate is the polling rate used while the fill level is zero. 0 means
	// busy polling without yielding.
	Rate physic.Frequency
}

// Read drains len(w) words from port into w.
//
// It returns the number of words transferred, which is len(w) unless an error
// occurred.
func Read(ctx context.Context, d Device, p *Policy, level, port uint64, w []uint32) (int, error) {
	return Copy(ctx, d, p, level, port, w, true)
}

// Write pushes the words in w into port.
//
// It returns the number of words transferred, which is len(w) unless an error
// occurred.
func Write(ctx context.Context, d Device, p *Policy, level, port uint64, w []uint32) (int, error) {
	return Copy(ctx, d, p, level, port, w, false)
}

// Copy moves len(w) words between the FIFO port and w.
//
// When fromFIFO is true, words are read from port into w, otherwise words
// from w are written to port. Before each chunk, the fill level register at
// level is read and the chunk is clamped to min(fill level, remaining).
//
// A nil Policy is the same as the zero Policy. The context is checked once per
// poll; cancelling it aborts the transfer with the context's error.
func Copy(ctx context.Context, d Device, p *Policy, level, port uint64, w []uint32, fromFIFO bool) (int, error) {
	if p == nil {
		p = &Policy{}
	}
	var period time.Duration
	if p.Rate != 0 {
		period = p.Rate.Period()
	}
	done := 0
	empty := 0
	var stalled time.Time
	for remaining := len(w); remaining > 0; {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		lvl, err := d.ReadWord(level)
		if err != nil {
			return done, err
		}
		n := remaining
		if uint64(lvl) < uint64(remaining) {
			n = int(lvl)
		}
		if n == 0 {
			empty++
			if p.MaxPolls > 0 && empty >= p.MaxPolls {
				return done, ErrTimeout
			}
			if p.Timeout > 0 {
				if stalled.IsZero() {
					stalled = time.Now()
				} else if time.Since(stalled) >= p.Timeout {
					return done, ErrTimeout
				}
			}
			if period > 0 {
				if err := sleep(ctx, period); err != nil {
					return done, err
				}
			}
			continue
		}
		empty = 0
		stalled = time.Time{}
		remaining -= n
		m, err := chunk(d, port, w[done:done+n], fromFIFO)
		done += m
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

// chunk moves one already clamped chunk. The port address is constant.
func chunk(d Device, port uint64, w []uint32, fromFIFO bool) (int, error) {
	if fromFIFO {
		for i := range w {
			v, err := d.ReadWord(port)
			if err != nil {
				return i, err
			}
			w[i] = v
		}
		return len(w), nil
	}
	for i, v := range w {
		if err := d.WriteWord(port, v); err != nil {
			return i, err
		}
	}
	return len(w), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
