// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periph.io/x/pcimem/pmem"
)

func newResource(t *testing.T) string {
	p := filepath.Join(t.TempDir(), "resource0")
	if err := os.WriteFile(p, make([]byte, 4096), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func run(t *testing.T, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := mainImpl(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestWriteRead(t *testing.T) {
	p := newResource(t)
	out, _, err := run(t, "-v=false", p, "0x100", "w", "0x0fa1afe1")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Written 0x0FA1AFE1\n" {
		t.Fatalf("%q", out)
	}
	out, _, err = run(t, "-v=false", p, "0x100")
	if err != nil {
		t.Fatal(err)
	}
	if out != "0x0100: 0x0FA1AFE1\n" {
		t.Fatalf("%q", out)
	}
	out, _, err = run(t, "-v", p, "0x101", "b")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "Value at offset 0x101: 0xAF\n") {
		t.Fatalf("%q", out)
	}
	if !strings.HasPrefix(out, p+" opened.\n") {
		t.Fatalf("%q", out)
	}
}

func TestDump(t *testing.T) {
	p := newResource(t)
	if _, _, err := run(t, p, "0x8", "h", "0xbeef"); err != nil {
		t.Fatal(err)
	}
	out, _, err := run(t, "-v=false", p, "0", "h*8")
	if err != nil {
		t.Fatal(err)
	}
	want := "" +
		"0x0000: 0x0000\n" +
		"...\n" +
		"0x0008: 0xBEEF\n" +
		"0x000A: 0x0000\n" +
		"...\n"
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestMock(t *testing.T) {
	p := filepath.Join(t.TempDir(), "resource0")
	_, trace, err := run(t, "-mock", "-v=false", p, "0x10", "d", "1")
	if err != nil {
		t.Fatal(err)
	}
	want := "" +
		pmem.TracePrefix + "Opened " + p + "\n\n" +
		pmem.TracePrefix + "WRITE DWORD 0x00000010 0x0000000000000001\n\n" +
		pmem.TracePrefix + "Closed\n\n"
	if trace != want {
		t.Fatalf("got:\n%s\nwant:\n%s", trace, want)
	}
}

func TestScript(t *testing.T) {
	p := newResource(t)
	s := filepath.Join(t.TempDir(), "script.txt")
	src := "write 0x100 0x0fa1afe1\nread 0x100\nexpect 0x100 0x0fa1afe1\nexpect 0x104 0x1\n"
	if err := os.WriteFile(s, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	out, diag, err := run(t, "-v=false", "-f", s, p)
	if !errors.Is(err, errChecksFailed) {
		t.Fatalf("expected errChecksFailed, got %v", err)
	}
	if out != "0x100 0xfa1afe1\n" {
		t.Fatalf("%q", out)
	}
	want := "" +
		"Read UNEXPECTED value: 0x0 (expected 0x1)\n" +
		"Expected checks: 1 / 2\n" +
		"FAILED 1 checks\n"
	if diag != want {
		t.Fatalf("got:\n%s\nwant:\n%s", diag, want)
	}
}

func TestLua(t *testing.T) {
	p := newResource(t)
	s := filepath.Join(t.TempDir(), "init.lua")
	src := "local pcimem = require('pcimem')\npcimem.write_range(0x20, {1, 2})\npcimem.close()\n"
	if err := os.WriteFile(s, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, "-lua", s, p); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if v := binary.NativeEndian.Uint32(b[0x24:]); v != 2 {
		t.Fatalf("got %d", v)
	}
}

func TestFIFO(t *testing.T) {
	p := newResource(t)
	if _, _, err := run(t, p, "0x10", "w", "3"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, p, "0x20", "w", "0x55"); err != nil {
		t.Fatal(err)
	}
	out, _, err := run(t, "-v=false", "-fifo", "0x10", p, "0x20", "w*5")
	if err != nil {
		t.Fatal(err)
	}
	if out != "0x0000: 0x00000055\n...\n" {
		t.Fatalf("%q", out)
	}
	out, _, err = run(t, "-fifo", "0x10", p, "0x20", "w*4", "0x66")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Written 0x00000066 4 times\n" {
		t.Fatalf("%q", out)
	}
	if _, _, err = run(t, "-fifo", "0x14", "-poll-max", "3", p, "0x20", "w*4"); !errors.Is(err, pmem.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if _, _, err = run(t, "-fifo", "0x10", p, "0x20", "b*4"); err == nil {
		t.Fatal("expected error")
	}
}

func TestErrors(t *testing.T) {
	p := newResource(t)
	var bad errBadType
	if _, _, err := run(t, p, "0", "q"); !errors.As(err, &bad) || err.Error() != "Illegal data type 'q'." {
		t.Fatalf("got %v", err)
	}
	data := [][]string{
		{},
		{p},
		{p, "0", "w", "1", "2"},
		{"-f", "a", "-lua", "b", p},
		{"-f", "a", p, "0"},
		{p, "zz"},
		{p, "0", "w5"},
		{p, "0", "w*x"},
		{p, "0", "b", "0x100"},
		{p, "0x1000"},
		{p, "0x2", "w"},
		{filepath.Join(t.TempDir(), "missing"), "0"},
		{"-bar", "0", "0123:45:1f.7", "0"},
		{"-poll-rate", "fast", p, "0"},
		{"-fifo", "0x10", p, "0x20", "w*2000000"},
	}
	for i, args := range data {
		if _, _, err := run(t, args...); err == nil {
			t.Errorf("#%d: %v: expected error", i, args)
		}
	}
}

func TestFIFO_count(t *testing.T) {
	p := newResource(t)
	_, _, err := run(t, "-fifo", "0x10", p, "0x20", "w*0x7fffffff")
	if err == nil || err.Error() != "-fifo count 2147483647 exceeds 1048576 words" {
		t.Fatalf("got %v", err)
	}
}

func TestParseAccess(t *testing.T) {
	data := []struct {
		args []string
		want access
	}{
		{[]string{"0x10"}, access{off: 0x10, size: pmem.Word, count: 1}},
		{[]string{"16", "B*3"}, access{off: 16, size: pmem.Byte, count: 3}},
		{[]string{"0", "d", "0xffffffffffffffff"}, access{size: pmem.Double, count: 1, write: true, data: 0xffffffffffffffff}},
		{[]string{"0", "h*0"}, access{size: pmem.Half}},
	}
	for i, line := range data {
		got, err := parseAccess(line.args)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if got != line.want {
			t.Errorf("#%d: %+v != %+v", i, got, line.want)
		}
	}
}

func TestSmoketest(t *testing.T) {
	p := newResource(t)
	if _, _, err := run(t, "smoketest", "-file", p, "-words", "4"); err != nil {
		t.Fatal(err)
	}
}
