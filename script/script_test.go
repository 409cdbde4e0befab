// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package script

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periph.io/x/pcimem/pmem"
)

func newRegion(t *testing.T) *pmem.Region {
	p := filepath.Join(t.TempDir(), "resource0")
	if err := os.WriteFile(p, make([]byte, 4096), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := pmem.Open(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRun(t *testing.T) {
	r := newRegion(t)
	const s = `# Scratch registers.
write 0x100 0x0fa1afe1

read 0x100
expect 0x100 0x0fa1afe1
expect 0x104 0x1
   write 0x104 0x1
expect 0x104 0x1
`
	var out, diag bytes.Buffer
	res, err := Run(r, strings.NewReader(s), &out, &Opts{Log: log.New(&diag, "", 0)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Failed != 1 {
		t.Fatalf("%+v", res)
	}
	if s := res.String(); s != "Expected checks: 2 / 3" {
		t.Fatal(s)
	}
	if s := out.String(); s != "0x100 0xfa1afe1\n" {
		t.Fatalf("%q", s)
	}
	if s := diag.String(); s != "Read UNEXPECTED value: 0x0 (expected 0x1)\n" {
		t.Fatalf("%q", s)
	}
}

func TestRun_verbose(t *testing.T) {
	var trace, diag bytes.Buffer
	m := pmem.NewMock("bar0", &pmem.Opts{Trace: &trace})
	res, err := Run(m, strings.NewReader("write 0x8 0x2\nexpect 0x8 0x0\n"), &bytes.Buffer{}, &Opts{Log: log.New(&diag, "", 0), Verbose: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Failed != 0 {
		t.Fatalf("%+v", res)
	}
	want := "" +
		"Read line: write 0x8 0x2\n" +
		"Writing to 0x8: 0x2\n" +
		"Read line: expect 0x8 0x0\n" +
		"Read expected value (0x0)\n"
	if s := diag.String(); s != want {
		t.Fatalf("%q", s)
	}
	if !strings.Contains(trace.String(), "WRITE WORD  0x00000008 0x00000002") {
		t.Fatalf("%q", trace.String())
	}
}

func TestRun_errors(t *testing.T) {
	r := newRegion(t)
	data := []struct {
		s    string
		want error
	}{
		{"poke 0x0 0x1\n", nil},
		{"write 0x0\n", nil},
		{"read 0x0 0x1\n", nil},
		{"write zz 0x1\n", nil},
		{"write 0x0 0x100000000\n", nil},
		{"read 0x1000\n", pmem.ErrOutOfBounds},
		{"write 0x2 0x0\n", pmem.ErrMisaligned},
	}
	for i, line := range data {
		_, err := Run(r, strings.NewReader("write 0x0 0x0\n"+line.s), &bytes.Buffer{}, &Opts{Log: log.New(&bytes.Buffer{}, "", 0)})
		if err == nil {
			t.Errorf("#%d: expected error", i)
			continue
		}
		if !strings.HasPrefix(err.Error(), "script: line 2: ") {
			t.Errorf("#%d: %v", i, err)
		}
		if line.want != nil && !errors.Is(err, line.want) {
			t.Errorf("#%d: expected %v, got %v", i, line.want, err)
		}
	}
}
