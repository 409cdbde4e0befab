// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sysfs locates the memory resources of PCI devices as exposed by the
// Linux kernel under /sys/bus/pci/devices.
//
// Each device directory contains a "resource" table and one "resourceN" file
// per implemented BAR. Mapping a "resourceN" file gives direct access to the
// BAR; see package pmem.
package sysfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Root is the directory holding one entry per PCI device.
//
// It is a variable so it can be redirected in tests.
var Root = "/sys/bus/pci/devices"

// MaxBAR is the highest standard BAR index.
const MaxBAR = 5

// Resource flags as reported by the kernel in the resource table.
const (
	FlagIO       = 0x100
	FlagMem      = 0x200
	FlagPrefetch = 0x2000
)

// Resource is one line of a device's resource table.
type Resource struct {
	Index int
	Start uint64
	End   uint64
	Flags uint64
}

// Size returns the number of bytes spanned by the resource, 0 when the
// resource is not implemented.
func (r *Resource) Size() uint64 {
	if r.Start == 0 && r.End == 0 {
		return 0
	}
	return r.End - r.Start + 1
}

// IsMem returns true if the resource is a memory BAR, which can be mapped.
func (r *Resource) IsMem() bool {
	return r.Flags&FlagMem != 0
}

// Prefetch returns true if the memory BAR is prefetchable, meaning reads have
// no side effects.
func (r *Resource) Prefetch() bool {
	return r.Flags&FlagPrefetch != 0
}

func (r *Resource) String() string {
	kind := "io"
	if r.IsMem() {
		kind = "mem"
		if r.Prefetch() {
			kind += ",prefetch"
		}
	}
	return fmt.Sprintf("BAR%d[0x%x-0x%x %s]", r.Index, r.Start, r.End, kind)
}

// DeviceDir returns the sysfs directory of a PCI device.
//
// dev is the device address, either as domain:bus:slot.func like
// "0000:00:07.0" or as bus:slot.func, in which case domain 0000 is assumed.
func DeviceDir(dev string) (string, error) {
	switch strings.Count(dev, ":") {
	case 1:
		dev = "0000:" + dev
	case 2:
	default:
		return "", fmt.Errorf("sysfs: invalid PCI address %q", dev)
	}
	if strings.ContainsAny(dev, "/\\") {
		return "", fmt.Errorf("sysfs: invalid PCI address %q", dev)
	}
	dir := filepath.Join(Root, strings.ToLower(dev))
	if fi, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("sysfs: %w", err)
	} else if !fi.IsDir() {
		return "", fmt.Errorf("sysfs: %s is not a directory", dir)
	}
	return dir, nil
}

// Resources parses the resource table of a PCI device.
//
// Unimplemented resources are included with a zero Size, so the index in the
// returned slice is the resource index.
func Resources(dev string) ([]Resource, error) {
	dir, err := DeviceDir(dev)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "resource"))
	if err != nil {
		return nil, fmt.Errorf("sysfs: %w", err)
	}
	return parseResources(raw)
}

// ResourcePath returns the path of the file to map to access a memory BAR of
// a PCI device.
//
// It fails if the BAR is not implemented or is an I/O port BAR, since those
// cannot be mapped.
func ResourcePath(dev string, bar int) (string, error) {
	if bar < 0 || bar > MaxBAR {
		return "", fmt.Errorf("sysfs: BAR %d out of range [0, %d]", bar, MaxBAR)
	}
	res, err := Resources(dev)
	if err != nil {
		return "", err
	}
	if bar >= len(res) || res[bar].Size() == 0 {
		return "", fmt.Errorf("sysfs: %s: BAR %d is not implemented", dev, bar)
	}
	if !res[bar].IsMem() {
		return "", fmt.Errorf("sysfs: %s: BAR %d is not a memory BAR", dev, bar)
	}
	dir, err := DeviceDir(dev)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, "resource"+strconv.Itoa(bar))
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("sysfs: %w", err)
	}
	return p, nil
}

//

// parseResources parses the content of a resource pseudo-file. Each line is
// "0x<start> 0x<end> 0x<flags>".
func parseResources(raw []byte) ([]Resource, error) {
	var out []Resource
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("sysfs: invalid resource line %q", line)
		}
		var v [3]uint64
		for i, f := range fields {
			n, err := readHex(f)
			if err != nil {
				return nil, fmt.Errorf("sysfs: invalid resource line %q: %w", line, err)
			}
			v[i] = n
		}
		if v[1] < v[0] {
			return nil, fmt.Errorf("sysfs: invalid resource line %q: end before start", line)
		}
		out = append(out, Resource{Index: len(out), Start: v[0], End: v[1], Flags: v[2]})
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("sysfs: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("sysfs: empty resource table")
	}
	return out, nil
}

// readHex parses a 0x prefixed hexadecimal number as written by the kernel.
func readHex(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, errors.New("missing 0x prefix")
	}
	return strconv.ParseUint(s[2:], 16, 64)
}
