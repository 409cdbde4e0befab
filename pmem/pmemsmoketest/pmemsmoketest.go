// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pmemsmoketest verifies that a PCI memory BAR can be mapped and that
// a scratch area in it keeps what is written to it.
//
// The scratch area content is restored once the test completes.
package pmemsmoketest

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"periph.io/x/pcimem"
	"periph.io/x/pcimem/pmem"
	"periph.io/x/pcimem/sysfs"
)

// SmokeTest is imported by pcimem.
type SmokeTest struct {
}

// Name implements the SmokeTest interface.
func (s *SmokeTest) Name() string {
	return "pmem"
}

// Description implements the SmokeTest interface.
func (s *SmokeTest) Description() string {
	return "Tests word and range accesses on a scratch area of a PCI BAR"
}

// Run implements the SmokeTest interface.
func (s *SmokeTest) Run(f *flag.FlagSet, args []string) (err error) {
	file := f.String("file", "", "resource file to map")
	dev := f.String("dev", "", "PCI device address, i.e. 0000:00:07.0; alternative to -file")
	bar := f.Int("bar", 0, "BAR to map with -dev")
	off := f.Uint64("offset", 0, "offset of the scratch area")
	words := f.Int("words", 16, "size of the scratch area in words")
	mock := f.Bool("mock", false, "trace the accesses instead of doing them")
	if err := f.Parse(args); err != nil {
		return err
	}
	if f.NArg() != 0 {
		f.Usage()
		return errors.New("unrecognized arguments")
	}
	if *words < 2 {
		return errors.New("-words must be at least 2")
	}
	path := *file
	switch {
	case path != "" && *dev != "":
		return errors.New("use only one of -file or -dev")
	case path == "" && *dev == "":
		return errors.New("-file or -dev is required")
	case *dev != "":
		if path, err = sysfs.ResourcePath(*dev, *bar); err != nil {
			return err
		}
	}

	m, err := pcimem.Open(path, *mock)
	if err != nil {
		return err
	}
	defer func() {
		if err2 := m.Close(); err == nil {
			err = err2
		}
	}()
	_, isMock := m.(*pmem.Mock)

	saved := make([]uint32, *words)
	if err := m.ReadRange(*off, saved); err != nil {
		return err
	}
	defer func() {
		if err2 := m.WriteRange(*off, saved); err == nil {
			err = err2
		}
	}()

	if err := wordTest(&loggingMem{m}, *off, !isMock); err != nil {
		return err
	}
	if err := rangeTest(m, *off, *words, !isMock); err != nil {
		return err
	}
	return wordPerfTest(m, *off)
}

// wordTest writes patterns to a single word and reads them back.
func wordTest(m pmem.Mem, off uint64, verify bool) error {
	fmt.Printf("  Word access at 0x%x on %s:\n", off, m)
	for _, v := range []uint32{0, 0xffffffff, 0xa5a5a5a5, 0x5a5a5a5a, 0x0fa1afe1} {
		if err := m.WriteWord(off, v); err != nil {
			return err
		}
		got, err := m.ReadWord(off)
		if err != nil {
			return err
		}
		if verify && got != v {
			return fmt.Errorf("%s: at 0x%x: expected 0x%08x, got 0x%08x", m, off, v, got)
		}
	}
	return nil
}

// rangeTest writes a walking one pattern with each range variant and reads
// it back with the other.
func rangeTest(m pmem.Mem, off uint64, n int, verify bool) error {
	fmt.Printf("  Range access of %d words:\n", n)
	in := make([]uint32, n)
	for i := range in {
		in[i] = 1 << (uint(i) % 32)
	}
	out := make([]uint32, n)
	if err := m.WriteRange(off, in); err != nil {
		return err
	}
	if err := checkRange(m, off, out, verify); err != nil {
		return err
	}
	m.ReadRangeFast(off, out)
	if err := compare(m, off, in, out, verify); err != nil {
		return err
	}
	for i := range in {
		in[i] = ^in[i]
	}
	m.WriteRangeFast(off, in)
	if err := m.ReadRange(off, out); err != nil {
		return err
	}
	if err := compare(m, off, in, out, verify); err != nil {
		return err
	}
	fmt.Printf("    OK\n")
	return nil
}

func checkRange(m pmem.Mem, off uint64, out []uint32, verify bool) error {
	if err := m.ReadRange(off, out); err != nil {
		return err
	}
	for i := range out {
		if want := uint32(1) << (uint(i) % 32); verify && out[i] != want {
			return fmt.Errorf("%s: at 0x%x: expected 0x%08x, got 0x%08x", m, off+4*uint64(i), want, out[i])
		}
	}
	return nil
}

func compare(m pmem.Mem, off uint64, in, out []uint32, verify bool) error {
	if !verify {
		return nil
	}
	for i := range in {
		if out[i] != in[i] {
			return fmt.Errorf("%s: at 0x%x: expected 0x%08x, got 0x%08x", m, off+4*uint64(i), in[i], out[i])
		}
	}
	return nil
}

// wordPerfTest reads and writes a word in a tight loop to evaluate the
// latency of the bus.
//
// It doesn't evaluate correctness.
func wordPerfTest(m pmem.Mem, off uint64) error {
	fmt.Printf("  Word access performance on %s:\n", m)
	const loops = 1000
	fmt.Printf("    %d reads:  ", loops)
	start := time.Now()
	for i := 0; i < loops; i++ {
		if _, err := m.ReadWord(off); err != nil {
			return err
		}
	}
	s := time.Since(start)
	fmt.Printf("%s; %s/op\n", s, s/loops)
	fmt.Printf("    %d writes: ", loops)
	start = time.Now()
	for i := 0; i < loops; i++ {
		if err := m.WriteWord(off, uint32(i)); err != nil {
			return err
		}
	}
	s = time.Since(start)
	fmt.Printf("%s; %s/op\n", s, s/loops)
	return nil
}

// loggingMem logs each word access with its duration.
type loggingMem struct {
	pmem.Mem
}

func (m *loggingMem) ReadWord(off uint64) (uint32, error) {
	start := time.Now()
	v, err := m.Mem.ReadWord(off)
	if err != nil {
		fmt.Printf("    %s %s.ReadWord(0x%x) = %v\n", time.Since(start), m, off, err)
		return 0, err
	}
	fmt.Printf("    %s %s.ReadWord(0x%x) = 0x%08x\n", time.Since(start), m, off, v)
	return v, nil
}

func (m *loggingMem) WriteWord(off uint64, v uint32) error {
	start := time.Now()
	if err := m.Mem.WriteWord(off, v); err != nil {
		fmt.Printf("    %s %s.WriteWord(0x%x, 0x%08x) = %v\n", time.Since(start), m, off, v, err)
		return err
	}
	fmt.Printf("    %s %s.WriteWord(0x%x, 0x%08x)\n", time.Since(start), m, off, v)
	return nil
}
