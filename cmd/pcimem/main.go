// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// pcimem reads and writes the memory of a PCI device BAR from userspace.
//
// Usage:
//
//	pcimem [flags] <sysfile> <offset> [<type>[*<count>] [<data>]]
//	pcimem [flags] -f <script> <sysfile>
//	pcimem [flags] -lua <file> <sysfile>
//	pcimem smoketest [flags]
//
// sysfile is the sysfs resource file to map, i.e.
// /sys/bus/pci/devices/0000:00:07.0/resource0, or a PCI address when -bar is
// specified. type is one of b (byte), h (halfword), w (word) or d
// (double-word); count is the number of items to read.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/pcimem"
	"periph.io/x/pcimem/fifo"
	"periph.io/x/pcimem/pmem"
	"periph.io/x/pcimem/pmem/pmemsmoketest"
	"periph.io/x/pcimem/pmemlua"
	"periph.io/x/pcimem/script"
	"periph.io/x/pcimem/sysfs"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitBadType = 2
)

// maxFIFOWords bounds the buffer of a -fifo transfer.
const maxFIFOWords = 1 << 20

// errBadType is returned for an unknown access type.
type errBadType byte

func (e errBadType) Error() string {
	return fmt.Sprintf("Illegal data type '%c'.", byte(e))
}

// errChecksFailed is returned when a script has mismatched expects.
var errChecksFailed = errors.New("checks failed")

type cli struct {
	stdout  io.Writer
	stderr  io.Writer
	log     *log.Logger
	verbose bool
}

func mainImpl(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 0 && args[0] == "smoketest" {
		s := &pmemsmoketest.SmokeTest{}
		f := flag.NewFlagSet(s.Name(), flag.ContinueOnError)
		f.SetOutput(stderr)
		return s.Run(f, args[1:])
	}

	f := flag.NewFlagSet("pcimem", flag.ContinueOnError)
	f.SetOutput(stderr)
	mock := f.Bool("mock", false, "trace the accesses to stderr instead of doing them")
	verbose := f.Bool("v", isTerminal(stdout), "verbose output")
	scriptFile := f.String("f", "", "run the read/write/expect script in this file")
	luaFile := f.String("lua", "", "run this Lua script, with the module \"pcimem\" bound to the region")
	bar := f.Int("bar", -1, "treat sysfile as a PCI address and map this BAR")
	fifoLevel := f.String("fifo", "", "access offset as a FIFO port whose fill level register is at this offset")
	pollMax := f.Int("poll-max", 0, "maximum consecutive empty FIFO polls, 0 for no limit")
	pollTimeout := f.Duration("poll-timeout", 0, "maximum FIFO stall duration, 0 for no limit")
	var pollRate physic.Frequency
	f.Var(&pollRate, "poll-rate", "rate of the empty FIFO polls, i.e. 10kHz; busy polls by default")
	f.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pcimem [flags] <sysfile> <offset> [<type>[*<count>] [<data>]]\n")
		fmt.Fprintf(stderr, "       pcimem [flags] -f <script> <sysfile>\n")
		fmt.Fprintf(stderr, "       pcimem [flags] -lua <file> <sysfile>\n")
		fmt.Fprintf(stderr, "       pcimem smoketest -h\n\n")
		fmt.Fprintf(stderr, "type is b(yte), h(alfword), w(ord) or d(ouble-word); w*100 dumps 100 words.\n\n")
		f.PrintDefaults()
	}
	if err := f.Parse(args); err != nil {
		return err
	}
	c := &cli{stdout: stdout, stderr: stderr, log: log.New(stderr, "", 0), verbose: *verbose}

	if *scriptFile != "" && *luaFile != "" {
		return errors.New("use only one of -f or -lua")
	}
	scripted := *scriptFile != "" || *luaFile != ""
	if n := f.NArg(); n == 0 || (scripted && n != 1) || (!scripted && (n < 2 || n > 4)) {
		f.Usage()
		return errors.New("unexpected arguments")
	}

	// Validate the command line before mapping anything.
	var acc access
	if !scripted {
		var err error
		if acc, err = parseAccess(f.Args()[1:]); err != nil {
			return err
		}
		if *fifoLevel != "" {
			if acc.size != pmem.Word {
				return errors.New("-fifo requires word access")
			}
			if acc.count > maxFIFOWords {
				return fmt.Errorf("-fifo count %d exceeds %d words", acc.count, maxFIFOWords)
			}
			if acc.fifoLevel, err = parseUint(*fifoLevel, 64); err != nil {
				return fmt.Errorf("invalid -fifo: %w", err)
			}
			acc.fifo = true
		}
	}

	path := f.Arg(0)
	if *bar >= 0 {
		var err error
		if path, err = sysfs.ResourcePath(path, *bar); err != nil {
			return err
		}
	}
	opts := &pmem.Opts{
		Poll:  fifo.Policy{MaxPolls: *pollMax, Timeout: *pollTimeout, Rate: pollRate},
		Trace: stderr,
	}
	err := pcimem.WithOpts(path, *mock, opts, func(m pmem.Mem) error {
		if c.verbose {
			fmt.Fprintf(stdout, "%s opened.\n", path)
			fmt.Fprintf(stdout, "Mapped %d bytes, page size is %d.\n", m.Len(), os.Getpagesize())
		}
		switch {
		case *scriptFile != "":
			return c.runScript(m, *scriptFile)
		case *luaFile != "":
			return c.runLua(ctx, m, *luaFile)
		default:
			return c.runAccess(ctx, m, &acc)
		}
	})
	if *luaFile != "" && errors.Is(err, pmem.ErrClosed) {
		// The script closed the region itself.
		return nil
	}
	return err
}

func (c *cli) runScript(m pmem.Mem, name string) error {
	in, err := os.Open(name)
	if err != nil {
		return err
	}
	defer in.Close()
	res, err := script.Run(m, in, c.stdout, &script.Opts{Log: c.log, Verbose: c.verbose})
	if err != nil {
		return err
	}
	c.log.Print(res)
	if res.Failed > 0 {
		c.log.Printf("FAILED %d checks", res.Failed)
		return errChecksFailed
	}
	return nil
}

func (c *cli) runLua(ctx context.Context, m pmem.Mem, name string) error {
	return pmemlua.DoFile(ctx, m, name)
}

func (c *cli) runAccess(ctx context.Context, m pmem.Mem, a *access) error {
	if a.fifo {
		return c.runFIFO(ctx, m, a)
	}
	if a.write {
		if err := m.Store(a.off, a.size, a.data); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Written 0x%0*X\n", 2*int(a.size), a.data)
		return nil
	}
	d := dumper{w: c.stdout, size: a.size, verbose: c.verbose}
	for i := 0; i < a.count; i++ {
		off := a.off + uint64(i)*uint64(a.size)
		v, err := m.Load(off, a.size)
		if err != nil {
			return err
		}
		d.add(off, v)
	}
	return nil
}

func (c *cli) runFIFO(ctx context.Context, m pmem.Mem, a *access) error {
	w := make([]uint32, a.count)
	if a.write {
		for i := range w {
			w[i] = uint32(a.data)
		}
		n, err := m.WriteFIFO(ctx, a.fifoLevel, a.off, w)
		fmt.Fprintf(c.stdout, "Written 0x%08X %d times\n", uint32(a.data), n)
		return err
	}
	n, err := m.ReadFIFO(ctx, a.fifoLevel, a.off, w)
	// Words drained from the port are numbered from 0.
	d := dumper{w: c.stdout, size: pmem.Word, verbose: c.verbose}
	for i, v := range w[:n] {
		d.add(uint64(i), uint64(v))
	}
	return err
}

// access is a single command line operation.
type access struct {
	off       uint64
	size      pmem.Size
	count     int
	write     bool
	data      uint64
	fifo      bool
	fifoLevel uint64
}

// parseAccess parses "<offset> [<type>[*<count>] [<data>]]".
func parseAccess(args []string) (access, error) {
	a := access{size: pmem.Word, count: 1}
	var err error
	if a.off, err = parseUint(args[0], 64); err != nil {
		return a, fmt.Errorf("invalid offset: %w", err)
	}
	if len(args) > 1 {
		t := args[1]
		if t == "" {
			return a, errBadType(' ')
		}
		switch t[0] | 0x20 {
		case 'b':
			a.size = pmem.Byte
		case 'h':
			a.size = pmem.Half
		case 'w':
			a.size = pmem.Word
		case 'd':
			a.size = pmem.Double
		default:
			return a, errBadType(t[0])
		}
		if rest := t[1:]; rest != "" {
			if rest[0] != '*' {
				return a, fmt.Errorf("invalid type %q", t)
			}
			n, err := parseUint(rest[1:], 31)
			if err != nil {
				return a, fmt.Errorf("invalid count: %w", err)
			}
			a.count = int(n)
		}
	}
	if len(args) > 2 {
		a.write = true
		if a.data, err = parseUint(args[2], 8*int(a.size)); err != nil {
			return a, fmt.Errorf("invalid data: %w", err)
		}
	}
	return a, nil
}

// parseUint accepts decimal, 0x hexadecimal and 0 octal numbers.
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, bits)
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	err := mainImpl(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	code := exitFailure
	var bad errBadType
	switch {
	case errors.As(err, &bad):
		fmt.Fprintln(os.Stderr, err)
		code = exitBadType
	case errors.Is(err, flag.ErrHelp):
		code = exitOK
	case errors.Is(err, errChecksFailed):
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "pcimem: interrupted after %s: %s.\n", time.Since(start).Round(time.Millisecond), err)
	default:
		fmt.Fprintf(os.Stderr, "pcimem: %s.\n", err)
	}
	stop()
	os.Exit(code)
}
