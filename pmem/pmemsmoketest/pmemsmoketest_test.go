// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmemsmoketest

import (
	"encoding/binary"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newFlagSet() *flag.FlagSet {
	f := flag.NewFlagSet("pmem", flag.ContinueOnError)
	f.SetOutput(io.Discard)
	return f
}

func TestRun(t *testing.T) {
	p := filepath.Join(t.TempDir(), "resource0")
	b := make([]byte, 4096)
	binary.NativeEndian.PutUint32(b[0x104:], 0xcafe)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatal(err)
	}
	s := &SmokeTest{}
	if err := s.Run(newFlagSet(), []string{"-file", p, "-offset", "0x100", "-words", "40"}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	// The scratch area is restored.
	if v := binary.NativeEndian.Uint32(got[0x104:]); v != 0xcafe {
		t.Fatalf("0x%x", v)
	}
	for i := 0x108; i < 0x100+4*40; i++ {
		if got[i] != 0 {
			t.Fatalf("byte 0x%x = 0x%x", i, got[i])
		}
	}
}

func TestRun_mock(t *testing.T) {
	s := &SmokeTest{}
	if err := s.Run(newFlagSet(), []string{"-mock", "-file", filepath.Join(t.TempDir(), "resource0")}); err != nil {
		t.Fatal(err)
	}
}

func TestRun_errors(t *testing.T) {
	data := [][]string{
		{},
		{"-file", "a", "-dev", "00:07.0"},
		{"-file", "a", "extra"},
		{"-file", "a", "-words", "1"},
		{"-file", filepath.Join(t.TempDir(), "missing")},
		{"-dev", "0123:45:1f.7"},
		{"-unknown"},
	}
	s := &SmokeTest{}
	for i, args := range data {
		if err := s.Run(newFlagSet(), args); err == nil {
			t.Errorf("#%d: %v: expected error", i, args)
		}
	}
}
