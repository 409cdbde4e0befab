// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcimem gives userspace access to the memory of a PCI device BAR
// through its sysfs resource file.
//
// Open returns either a real mapping or a mock that only traces the accesses
// it would have done. Both implement pmem.Mem.
package pcimem

import (
	"periph.io/x/pcimem/pmem"
)

// Open maps the resource file at path, or returns a mock standing for it when
// mock is true.
//
// The mock never touches the file system; its trace goes to os.Stderr.
func Open(path string, mock bool) (pmem.Mem, error) {
	return OpenOpts(path, mock, nil)
}

// OpenOpts is Open with explicit options. A nil opts uses the defaults.
func OpenOpts(path string, mock bool, opts *pmem.Opts) (pmem.Mem, error) {
	if mock {
		return pmem.NewMock(path, opts), nil
	}
	r, err := pmem.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// With opens path, calls fn and closes the handle, whatever fn returns.
//
// The error from fn takes precedence over the one from Close.
func With(path string, mock bool, fn func(m pmem.Mem) error) error {
	return WithOpts(path, mock, nil, fn)
}

// WithOpts is With with explicit options.
func WithOpts(path string, mock bool, opts *pmem.Opts, fn func(m pmem.Mem) error) (err error) {
	m, err := OpenOpts(path, mock, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err2 := m.Close(); err == nil {
			err = err2
		}
	}()
	return fn(m)
}
