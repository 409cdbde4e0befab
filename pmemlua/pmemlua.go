// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pmemlua exposes a pmem.Mem to Lua scripts as the "pcimem" module.
//
// Offsets and values are Lua numbers, word buffers are arrays starting at
// index 1. Failed accesses raise a Lua error.
//
//	local pcimem = require("pcimem")
//	pcimem.write_word(0x100, 0x0fa1afe1)
//	print(string.format("0x%08x", pcimem.read_word(0x100)))
//	local w = pcimem.read_fifo(0x10, 0x20, 64)
package pmemlua

import (
	"context"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
	"periph.io/x/pcimem/pmem"
)

// ModuleName is the name passed to require.
const ModuleName = "pcimem"

// MaxFIFOWords is the largest count accepted by read_fifo and
// read_fifo_unsafe. It also bounds range reads on a Mem without a known size.
const MaxFIFOWords = 1 << 20

// Preload registers the module in L, bound to m.
//
// FIFO transfers use the context of L, if any, so they can be cancelled with
// L.SetContext.
func Preload(L *lua.LState, m pmem.Mem) {
	b := &binding{m: m}
	L.PreloadModule(ModuleName, b.loader)
}

// DoFile runs the Lua file at path with the module bound to m.
func DoFile(ctx context.Context, m pmem.Mem, path string) error {
	L := newState(ctx, m)
	defer L.Close()
	return L.DoFile(path)
}

// DoString runs the Lua chunk src with the module bound to m.
func DoString(ctx context.Context, m pmem.Mem, src string) error {
	L := newState(ctx, m)
	defer L.Close()
	return L.DoString(src)
}

//

func newState(ctx context.Context, m pmem.Mem) *lua.LState {
	L := lua.NewState()
	if ctx != nil {
		L.SetContext(ctx)
	}
	Preload(L, m)
	return L
}

type binding struct {
	m pmem.Mem
}

func (b *binding) loader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"read_word":         b.readWord,
		"write_word":        b.writeWord,
		"read_range":        b.readRange,
		"write_range":       b.writeRange,
		"read_range_fast":   b.readRangeFast,
		"write_range_fast":  b.writeRangeFast,
		"read_fifo":         b.readFIFO,
		"write_fifo":        b.writeFIFO,
		"read_fifo_unsafe":  b.readFIFORaw,
		"write_fifo_unsafe": b.writeFIFORaw,
		"len":               b.length,
		"close":             b.close,
	})
	L.Push(mod)
	return 1
}

func (b *binding) readWord(L *lua.LState) int {
	v, err := b.m.ReadWord(checkOffset(L, 1))
	raise(L, err)
	L.Push(lua.LNumber(v))
	return 1
}

func (b *binding) writeWord(L *lua.LState) int {
	off := checkOffset(L, 1)
	raise(L, b.m.WriteWord(off, checkWord(L, L.Get(2), 2)))
	return 0
}

func (b *binding) readRange(L *lua.LState) int {
	off := checkOffset(L, 1)
	w := make([]uint32, b.checkRangeCount(L, 2))
	raise(L, b.m.ReadRange(off, w))
	L.Push(toTable(L, w))
	return 1
}

func (b *binding) writeRange(L *lua.LState) int {
	off := checkOffset(L, 1)
	raise(L, b.m.WriteRange(off, checkWords(L, 2)))
	return 0
}

func (b *binding) readRangeFast(L *lua.LState) int {
	off := checkOffset(L, 1)
	w := make([]uint32, b.checkRangeCount(L, 2))
	b.inside(L, off, len(w))
	b.m.ReadRangeFast(off, w)
	L.Push(toTable(L, w))
	return 1
}

func (b *binding) writeRangeFast(L *lua.LState) int {
	off := checkOffset(L, 1)
	w := checkWords(L, 2)
	b.inside(L, off, len(w))
	b.m.WriteRangeFast(off, w)
	return 0
}

func (b *binding) readFIFO(L *lua.LState) int {
	level := checkOffset(L, 1)
	port := checkOffset(L, 2)
	w := make([]uint32, checkCount(L, 3, MaxFIFOWords))
	n, err := b.m.ReadFIFO(ctxOf(L), level, port, w)
	raise(L, err)
	L.Push(toTable(L, w[:n]))
	return 1
}

func (b *binding) writeFIFO(L *lua.LState) int {
	level := checkOffset(L, 1)
	port := checkOffset(L, 2)
	n, err := b.m.WriteFIFO(ctxOf(L), level, port, checkWords(L, 3))
	raise(L, err)
	L.Push(lua.LNumber(n))
	return 1
}

func (b *binding) readFIFORaw(L *lua.LState) int {
	port := checkOffset(L, 1)
	w := make([]uint32, checkCount(L, 2, MaxFIFOWords))
	b.inside(L, port, 1)
	b.m.ReadFIFORaw(port, w)
	L.Push(toTable(L, w))
	return 1
}

func (b *binding) writeFIFORaw(L *lua.LState) int {
	port := checkOffset(L, 1)
	w := checkWords(L, 2)
	b.inside(L, port, 1)
	b.m.WriteFIFORaw(port, w)
	return 0
}

func (b *binding) length(L *lua.LState) int {
	L.Push(lua.LNumber(b.m.Len()))
	return 1
}

func (b *binding) close(L *lua.LState) int {
	raise(L, b.m.Close())
	return 0
}

// inside raises ErrOutOfBounds when n words at off are not within the
// mapping, before an unchecked accessor faults on it.
func (b *binding) inside(L *lua.LState, off uint64, n int) {
	l := b.m.Len()
	if l == 0 {
		return
	}
	if off > uint64(l) || 4*uint64(n) > uint64(l)-off {
		L.RaiseError("%s: 0x%x * %d: %v", b.m, off, n, pmem.ErrOutOfBounds)
	}
}

func ctxOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

func checkOffset(L *lua.LState, n int) uint64 {
	v := float64(L.CheckNumber(n))
	if v < 0 || v != math.Trunc(v) || v > 1<<53 {
		L.ArgError(n, fmt.Sprintf("invalid offset %v", v))
	}
	return uint64(v)
}

// checkRangeCount returns the word count at argument n, at most the number of
// words in the mapping.
func (b *binding) checkRangeCount(L *lua.LState, n int) int {
	l := b.m.Len()
	if l == 0 {
		return checkCount(L, n, MaxFIFOWords)
	}
	return checkCount(L, n, l/4)
}

func checkCount(L *lua.LState, n, limit int) int {
	v := L.CheckInt(n)
	if v < 0 {
		L.ArgError(n, "negative count")
	}
	if v > limit {
		L.ArgError(n, fmt.Sprintf("count %d exceeds %d words", v, limit))
	}
	return v
}

func checkWord(L *lua.LState, lv lua.LValue, n int) uint32 {
	num, ok := lv.(lua.LNumber)
	if !ok {
		L.ArgError(n, "number expected, got "+lv.Type().String())
	}
	v := float64(num)
	if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
		L.ArgError(n, fmt.Sprintf("invalid word %v", v))
	}
	return uint32(v)
}

func checkWords(L *lua.LState, n int) []uint32 {
	t := L.CheckTable(n)
	w := make([]uint32, t.Len())
	for i := range w {
		w[i] = checkWord(L, t.RawGetInt(i+1), n)
	}
	return w
}

func toTable(L *lua.LState, w []uint32) *lua.LTable {
	t := L.CreateTable(len(w), 0)
	for i, v := range w {
		t.RawSetInt(i+1, lua.LNumber(v))
	}
	return t
}
