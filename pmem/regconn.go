// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pmem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
)

// RegConn exposes a 256 bytes register window of a Mem as a conn.Conn.
//
// It lets register oriented device drivers written against
// periph.io/x/conn/v3/mmr.Dev8 drive a BAR. The first byte written is the
// register offset relative to Base. The remaining bytes written, or the bytes
// read, must be whole little endian words; each word is a separate 32 bits
// access. Use mmr.Dev8 with Order set to binary.LittleEndian.
type RegConn struct {
	Mem  Mem
	Base uint64
}

// String implements conn.Resource.
func (c *RegConn) String() string {
	return fmt.Sprintf("%s@0x%x", c.Mem, c.Base)
}

// Halt implements conn.Resource.
func (c *RegConn) Halt() error {
	return c.Mem.Halt()
}

// Duplex implements conn.Conn.
func (c *RegConn) Duplex() conn.Duplex {
	return conn.Half
}

// Tx implements conn.Conn.
func (c *RegConn) Tx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("pmem: a register offset is required")
	}
	off := c.Base + uint64(w[0])
	if data := w[1:]; len(data) != 0 {
		if len(r) != 0 {
			return errors.New("pmem: cannot write and read registers in one transaction")
		}
		if len(data)%4 != 0 {
			return fmt.Errorf("pmem: %d bytes is not a whole number of words", len(data))
		}
		for i := 0; i < len(data); i += 4 {
			if err := c.Mem.WriteWord(off+uint64(i), binary.LittleEndian.Uint32(data[i:])); err != nil {
				return err
			}
		}
		return nil
	}
	if len(r)%4 != 0 {
		return fmt.Errorf("pmem: %d bytes is not a whole number of words", len(r))
	}
	for i := 0; i < len(r); i += 4 {
		v, err := c.Mem.ReadWord(off + uint64(i))
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(r[i:], v)
	}
	return nil
}

var _ conn.Conn = &RegConn{}
