// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pmem maps a PCI BAR exposed as a pseudo-file and gives 32 bits
// word access to it.
//
// The file is usually a sysfs PCI resource node like
// /sys/bus/pci/devices/0000:01:00.0/resource0. The whole file is mapped; its
// size defines the valid address space.
//
// All offsets are in bytes from the start of the mapping. Checked accessors
// return ErrMisaligned or ErrOutOfBounds instead of touching memory outside
// the mapping. The Fast and Raw variants skip these checks and are meant for
// hot loops where the caller already validated the addresses.
//
// Mock implements the same Mem interface without touching any memory. It
// writes a trace of every operation instead, which is useful to verify the
// exact order of register writes without hardware.
//
// Use build tag pcimem_debug to enable verbose debugging.
package pmem
