// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"periph.io/x/pcimem/pmem"
)

// dumper prints values read at consecutive offsets.
//
// When not verbose, a run of identical values is printed once followed by a
// "..." line.
type dumper struct {
	w       io.Writer
	size    pmem.Size
	verbose bool

	n      int
	prev   uint64
	dupped bool
}

func (d *dumper) add(off, v uint64) {
	digits := 2 * int(d.size)
	switch {
	case d.verbose:
		fmt.Fprintf(d.w, "Value at offset 0x%X: 0x%0*X\n", off, digits, v)
	case d.n == 0 || v != d.prev:
		fmt.Fprintf(d.w, "0x%04X: 0x%0*X\n", off, digits, v)
		d.dupped = false
	case !d.dupped:
		fmt.Fprintf(d.w, "...\n")
		d.dupped = true
	}
	d.prev = v
	d.n++
}
