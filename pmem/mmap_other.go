// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !unix

package pmem

import (
	"errors"
	"os"
)

const openFlags = os.O_RDWR

func mmap(f *os.File, size int) ([]byte, error) {
	return nil, errors.New("memory mapping is not supported on this OS")
}

func munmap(b []byte) error {
	return errors.New("memory mapping is not supported on this OS")
}
