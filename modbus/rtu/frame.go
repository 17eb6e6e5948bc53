// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/shelfmon/modbus"
	"github.com/ffutop/shelfmon/modbus/crc"
)

// Frame is the byte buffer a single RTU transaction is built in or torn
// down from. Encoding appends fields in wire order and ends with
// Finalize, which stamps the CRC. Decoding starts with Validate, which
// strips the CRC, and then pops fields from the tail of the unconsumed
// content, i.e. in the reverse of wire order. The payload size is always
// known from context (the caller declared how many registers or records
// it expects), so tail-first popping recovers exactly the same field
// values as a forward parse would.
//
// A Frame is owned by exactly one in-flight request or response and is
// discarded after the transaction.
type Frame struct {
	b []byte
}

// NewFrame wraps raw bytes received from the transport for decoding.
func NewFrame(raw []byte) *Frame {
	return &Frame{b: raw}
}

// Bytes returns the current frame content.
func (f *Frame) Bytes() []byte {
	return f.b
}

// Len returns the number of unconsumed bytes.
func (f *Frame) Len() int {
	return len(f.b)
}

// Push appends the low width bytes of v in big-endian order.
func (f *Frame) Push(width int, v uint32) {
	for i := width - 1; i >= 0; i-- {
		f.b = append(f.b, byte(v>>(8*i)))
	}
}

// PushBytes appends raw bytes as-is.
func (f *Frame) PushBytes(p []byte) {
	f.b = append(f.b, p...)
}

// PushRegisters appends 16-bit registers in big-endian wire order.
func (f *Frame) PushRegisters(regs []uint16) {
	for _, r := range regs {
		f.Push(2, uint32(r))
	}
}

// Patch overwrites one previously written byte. It exists solely for
// count fields that precede variable content and can only be computed
// after that content has been appended; it is not general random access.
func (f *Frame) Patch(offset int, v byte) error {
	if offset < 0 || offset >= len(f.b) {
		return fmt.Errorf("rtu: patch offset %d out of range [0,%d)", offset, len(f.b))
	}
	f.b[offset] = v
	return nil
}

// Finalize computes the CRC over everything pushed so far, appends it
// low byte first, and returns the completed frame.
func (f *Frame) Finalize() []byte {
	var c crc.CRC
	c.Reset().PushBytes(f.b)
	sum := c.Value()
	f.b = append(f.b, byte(sum), byte(sum>>8))
	return f.b
}

// Validate recomputes the CRC over all bytes except the trailing two
// and compares. On success the CRC is removed from the buffer so that
// subsequent pops only see frame fields.
func (f *Frame) Validate() error {
	if len(f.b) < MinSize {
		return &modbus.UnderflowError{Need: MinSize, Have: len(f.b)}
	}
	var c crc.CRC
	c.Reset().PushBytes(f.b[:len(f.b)-2])
	got := uint16(f.b[len(f.b)-1])<<8 | uint16(f.b[len(f.b)-2])
	if want := c.Value(); got != want {
		return &modbus.CRCError{Want: want, Got: got}
	}
	f.b = f.b[:len(f.b)-2]
	return nil
}

// Pop removes width bytes from the tail of the unconsumed content and
// returns them as a big-endian value.
func (f *Frame) Pop(width int) (uint32, error) {
	if len(f.b) < width {
		return 0, &modbus.UnderflowError{Need: width, Have: len(f.b)}
	}
	var v uint32
	for _, b := range f.b[len(f.b)-width:] {
		v = v<<8 | uint32(b)
	}
	f.b = f.b[:len(f.b)-width]
	return v, nil
}

// PopBytes removes n raw bytes from the tail, preserving wire order.
func (f *Frame) PopBytes(n int) ([]byte, error) {
	if len(f.b) < n {
		return nil, &modbus.UnderflowError{Need: n, Have: len(f.b)}
	}
	p := make([]byte, n)
	copy(p, f.b[len(f.b)-n:])
	f.b = f.b[:len(f.b)-n]
	return p, nil
}

// PopRegisters removes count 16-bit registers from the tail, returned
// in wire order.
func (f *Frame) PopRegisters(count int) ([]uint16, error) {
	p, err := f.PopBytes(2 * count)
	if err != nil {
		return nil, err
	}
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = uint16(p[2*i])<<8 | uint16(p[2*i+1])
	}
	return regs, nil
}

// Drained returns nil if the frame was consumed exactly to empty. A
// non-empty remainder means the device sent more than the declared
// layout, which is a framing error.
func (f *Frame) Drained() error {
	if len(f.b) != 0 {
		return &modbus.FramingError{Remaining: len(f.b)}
	}
	return nil
}
