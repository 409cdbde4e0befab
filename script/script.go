// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package script runs line oriented register scripts against a pmem.Mem.
//
// Each line is one of:
//
//	write 0x<offset> 0x<value>
//	read 0x<offset>
//	expect 0x<offset> 0x<value>
//
// Empty lines and lines starting with '#' are ignored. All accesses are 32
// bits words. A read prints "0x<offset> 0x<value>" to the output. An expect
// reads the word and counts a failure when it differs from the value; the
// script keeps going.
package script

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"periph.io/x/pcimem/pmem"
)

// Result summarizes the expect operations of a script.
type Result struct {
	Total  int
	Failed int
}

func (r Result) String() string {
	return fmt.Sprintf("Expected checks: %d / %d", r.Total-r.Failed, r.Total)
}

// Opts configures Run.
type Opts struct {
	// Log receives the diagnostics: mismatches always, each step when Verbose
	// is set. Defaults to log.Default().
	Log *log.Logger
	// Verbose logs every parsed line and access.
	Verbose bool
}

// Run executes the script read from in against m, writing read results to
// out.
//
// It stops at the first malformed line or failed access. A mismatched expect
// is not an error; it is counted in the returned Result.
func Run(m pmem.Mem, in io.Reader, out io.Writer, opts *Opts) (Result, error) {
	r := runner{m: m, out: out, log: log.Default()}
	if opts != nil {
		if opts.Log != nil {
			r.log = opts.Log
		}
		r.verbose = opts.Verbose
	}
	s := bufio.NewScanner(in)
	for lineno := 1; s.Scan(); lineno++ {
		if err := r.line(s.Text()); err != nil {
			return r.res, fmt.Errorf("script: line %d: %w", lineno, err)
		}
	}
	if err := s.Err(); err != nil {
		return r.res, fmt.Errorf("script: %w", err)
	}
	return r.res, nil
}

//

type runner struct {
	m       pmem.Mem
	out     io.Writer
	log     *log.Logger
	verbose bool
	res     Result
}

func (r *runner) line(l string) error {
	l = strings.TrimSpace(l)
	if l == "" || l[0] == '#' {
		return nil
	}
	if r.verbose {
		r.log.Printf("Read line: %s", l)
	}
	op, off, v, err := parse(l)
	if err != nil {
		return err
	}
	switch op {
	case "write":
		if r.verbose {
			r.log.Printf("Writing to 0x%x: 0x%x", off, v)
		}
		return r.m.WriteWord(off, v)
	case "read":
		got, err := r.m.ReadWord(off)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(r.out, "0x%x 0x%x\n", off, got)
		return err
	default:
		got, err := r.m.ReadWord(off)
		if err != nil {
			return err
		}
		r.res.Total++
		if got != v {
			r.res.Failed++
			r.log.Printf("Read UNEXPECTED value: 0x%x (expected 0x%x)", got, v)
		} else if r.verbose {
			r.log.Printf("Read expected value (0x%x)", got)
		}
		return nil
	}
}

// parse splits a line into its operation, offset and value.
func parse(l string) (string, uint64, uint32, error) {
	f := strings.Fields(l)
	want := 3
	switch f[0] {
	case "write", "expect":
	case "read":
		want = 2
	default:
		return "", 0, 0, fmt.Errorf("invalid op %q", f[0])
	}
	if len(f) != want {
		return "", 0, 0, fmt.Errorf("%s takes %d arguments, got %d", f[0], want-1, len(f)-1)
	}
	off, err := strconv.ParseUint(f[1], 0, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid offset %q", f[1])
	}
	var v uint64
	if want == 3 {
		if v, err = strconv.ParseUint(f[2], 0, 32); err != nil {
			return "", 0, 0, fmt.Errorf("invalid value %q", f[2])
		}
	}
	return f[0], off, uint32(v), nil
}
