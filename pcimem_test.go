// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pcimem

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periph.io/x/pcimem/pmem"
)

func TestOpen(t *testing.T) {
	p := filepath.Join(t.TempDir(), "resource0")
	if err := os.WriteFile(p, make([]byte, 4096), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := Open(p, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*pmem.Region); !ok {
		t.Fatalf("got %T", m)
	}
	if err := m.WriteWord(0x100, 0x0fa1afe1); err != nil {
		t.Fatal(err)
	}
	if v, err := m.ReadWord(0x100); err != nil || v != 0x0fa1afe1 {
		t.Fatalf("ReadWord() = 0x%x, %v", v, err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_mock(t *testing.T) {
	p := filepath.Join(t.TempDir(), "resource0")
	var buf bytes.Buffer
	m, err := OpenOpts(p, true, &pmem.Opts{Trace: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*pmem.Mock); !ok {
		t.Fatalf("got %T", m)
	}
	if err := m.WriteWord(0x100, 0x0fa1afe1); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("mock touched the file system: %v", err)
	}
	if !strings.Contains(buf.String(), "WRITE WORD  0x00000100 0x0fa1afe1") {
		t.Fatalf("unexpected trace %q", buf.String())
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	var got pmem.Mem
	errFoo := errors.New("foo")
	err := WithOpts("bar0", true, &pmem.Opts{Trace: &buf}, func(m pmem.Mem) error {
		got = m
		return errFoo
	})
	if err != errFoo {
		t.Fatalf("got %v", err)
	}
	// The handle was closed.
	if err := got.Close(); !errors.Is(err, pmem.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if !strings.HasSuffix(buf.String(), "Pcimem[mock]> Closed\n\n") {
		t.Fatalf("unexpected trace %q", buf.String())
	}
}

func TestWith_openError(t *testing.T) {
	called := false
	err := With(filepath.Join(t.TempDir(), "missing"), false, func(m pmem.Mem) error {
		called = true
		return nil
	})
	var e *pmem.OpenError
	if !errors.As(err, &e) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if called {
		t.Fatal("fn called on open failure")
	}
}
